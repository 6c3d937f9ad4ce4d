package client

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
)

// multipartForm buffers a multipart/form-data body in memory.
type multipartForm struct {
	buf    *bytes.Buffer
	writer *multipart.Writer
}

func newMultipartForm() *multipartForm {
	buf := &bytes.Buffer{}
	return &multipartForm{buf: buf, writer: multipart.NewWriter(buf)}
}

func (f *multipartForm) addFile(field, filename string, content io.Reader) error {
	part, err := f.writer.CreateFormFile(field, filepath.Base(filename))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return nil
}

func (f *multipartForm) addField(name, value string) error {
	if err := f.writer.WriteField(name, value); err != nil {
		return fmt.Errorf("failed to write form field: %w", err)
	}
	return nil
}

// request closes the form and returns a POST request carrying it.
func (f *multipartForm) request(op, path string) *request {
	_ = f.writer.Close()
	return &request{
		op:          op,
		method:      http.MethodPost,
		path:        path,
		body:        f.buf,
		contentType: f.writer.FormDataContentType(),
	}
}
