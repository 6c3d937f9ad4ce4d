package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Document represents a file indexed by the knowledge base
type Document struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// UploadFile is one file of an upload batch
type UploadFile struct {
	Name    string
	Content io.Reader
}

// UploadResponse lists the documents created by an upload
type UploadResponse struct {
	Message   string     `json:"message"`
	Documents []Document `json:"documents"`
}

var ErrNoFiles = errors.New("at least one file is required")

// ListDocuments returns all indexed documents
func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	var docs []Document
	if err := c.getJSON(ctx, "list documents", "/documents", &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// UploadDocuments uploads a batch of files for processing
func (c *Client) UploadDocuments(ctx context.Context, files ...UploadFile) (*UploadResponse, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	form := newMultipartForm()
	for _, f := range files {
		if err := form.addFile("files", f.Name, f.Content); err != nil {
			return nil, err
		}
	}

	var resp UploadResponse
	if err := c.call(ctx, form.request("upload documents", "/documents/upload"), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteDocument deletes a document by ID
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("document ID is required")
	}
	return c.sendJSON(ctx, "delete document", http.MethodDelete, "/documents/"+url.PathEscape(id), nil, nil)
}
