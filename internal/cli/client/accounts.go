package client

import (
	"context"
	"net/http"

	"github.com/chatdesk-dev/chatdesk/internal/cli/auth"
)

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates the user and returns the credential issued by the
// backend. The request is public: no stored token is attached.
func (c *Client) Login(ctx context.Context, email, password string) (*auth.Credential, error) {
	r, err := jsonRequest("login", http.MethodPost, "/users/login", LoginRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return nil, err
	}
	r.public = true

	var cred auth.Credential
	if err := c.call(ctx, r, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// Register creates an account and returns its credential.
func (c *Client) Register(ctx context.Context, name, email, password string) (*auth.Credential, error) {
	r, err := jsonRequest("register", http.MethodPost, "/users/register", RegisterRequest{
		Name:     name,
		Email:    email,
		Password: password,
	})
	if err != nil {
		return nil, err
	}
	r.public = true

	var cred auth.Credential
	if err := c.call(ctx, r, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}
