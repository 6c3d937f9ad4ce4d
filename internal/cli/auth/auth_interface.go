package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// CredentialStore defines the interface for credential storage operations
// This allows us to swap the keyring for a file in headless environments and tests
type CredentialStore interface {
	Save(cred *Credential) error
	Load() (*Credential, error)
	Delete() error
}

const (
	StoreKeyring = "keyring"
	StoreFile    = "file"

	sessionFileName = "session.json"
)

// FileStore keeps the credential in a 0600 JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultFilePath returns ~/.config/chatdesk/session.json
func DefaultFilePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", service, sessionFileName), nil
}

func (s *FileStore) Save(cred *Credential) error {
	data, err := cred.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (s *FileStore) Load() (*Credential, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	return ParseCredential(data)
}

func (s *FileStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// NewStore returns the store named by kind ("keyring" or "file").
func NewStore(kind string) (CredentialStore, error) {
	switch kind {
	case "", StoreKeyring:
		return NewKeyringStore(), nil
	case StoreFile:
		path, err := DefaultFilePath()
		if err != nil {
			return nil, err
		}
		return NewFileStore(path), nil
	default:
		return nil, fmt.Errorf("unknown credential store %q, must be one of: keyring, file", kind)
	}
}
