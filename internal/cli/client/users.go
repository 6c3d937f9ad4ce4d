package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chatdesk-dev/chatdesk/internal/cli/auth"
)

// User represents an account as listed by the admin endpoints
type User struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      auth.Role `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserRequest represents the create/update user request body.
// Password is omitted on update when blank.
type UserRequest struct {
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Password string    `json:"password,omitempty"`
	Role     auth.Role `json:"role"`
}

var errEmptyUserID = errors.New("user ID is required")

// ListUsers returns all users (admin only)
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.getJSON(ctx, "list users", "/admin/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser creates a user (admin only). An empty role means "user".
func (c *Client) CreateUser(ctx context.Context, req UserRequest) (*User, error) {
	if req.Role == "" {
		req.Role = auth.RoleUser
	}
	if req.Password == "" {
		return nil, errors.New("password is required")
	}

	var user User
	if err := c.sendJSON(ctx, "create user", http.MethodPost, "/admin/users", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser updates a user (admin only). A blank password keeps the current one.
func (c *Client) UpdateUser(ctx context.Context, userID string, req UserRequest) (*User, error) {
	if userID == "" {
		return nil, errEmptyUserID
	}
	if strings.TrimSpace(req.Password) == "" {
		req.Password = ""
	}

	var user User
	if err := c.sendJSON(ctx, "update user", http.MethodPut, "/admin/users/"+url.PathEscape(userID), req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser deletes a user (admin only)
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	if userID == "" {
		return errEmptyUserID
	}
	return c.sendJSON(ctx, "delete user", http.MethodDelete, "/admin/users/"+url.PathEscape(userID), nil, nil)
}
