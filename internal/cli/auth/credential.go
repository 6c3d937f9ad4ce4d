package auth

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Role is the access level the backend assigns to a user.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// IsAdmin reports whether r grants access to user management.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// ErrNoCredential means no usable credential is stored. Corrupt entries are
// reported the same way as missing ones.
var ErrNoCredential = errors.New("not authenticated. Please run 'chatdesk login' first")

// Credential is the authenticated identity returned by login or registration.
// Profile fields the client does not model are kept in Extra and written back
// unchanged.
type Credential struct {
	Token  string `json:"token"`
	UserID string `json:"_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownFields = []string{"token", "_id", "name", "email", "role"}

type credentialFields struct {
	Token  string `json:"token"`
	UserID string `json:"_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

func (c *Credential) UnmarshalJSON(data []byte) error {
	var fields credentialFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownFields {
		delete(all, k)
	}

	*c = Credential{
		Token:  fields.Token,
		UserID: fields.UserID,
		Name:   fields.Name,
		Email:  fields.Email,
		Role:   fields.Role,
	}
	if len(all) > 0 {
		c.Extra = all
	}
	return nil
}

func (c Credential) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+len(knownFields))
	for k, v := range c.Extra {
		out[k] = v
	}
	out["token"] = c.Token
	out["_id"] = c.UserID
	out["name"] = c.Name
	out["email"] = c.Email
	out["role"] = c.Role
	return json.Marshal(out)
}

// Validate checks the fields every stored credential must carry.
func (c *Credential) Validate() error {
	if c.Token == "" {
		return errors.New("credential has no token")
	}
	if c.Role == "" {
		return errors.New("credential has no role")
	}
	return nil
}

// ParseCredential decodes a stored credential. Corrupt or incomplete data
// yields ErrNoCredential.
func ParseCredential(data []byte) (*Credential, error) {
	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCredential, err)
	}
	if err := cred.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCredential, err)
	}
	return &cred, nil
}
