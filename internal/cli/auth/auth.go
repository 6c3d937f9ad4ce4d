package auth

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	service = "chatdesk"

	// CredentialKey names the stored session entry.
	CredentialKey = "userInfo"
)

// KeyringStore persists the credential in the OS keychain/credential manager.
type KeyringStore struct {
	service string
	key     string
}

// NewKeyringStore creates a store for the shared session entry.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{service: service, key: CredentialKey}
}

// Save persists the credential securely in the OS keychain/credential manager
func (s *KeyringStore) Save(cred *Credential) error {
	data, err := cred.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	if err := keyring.Set(s.service, s.key, string(data)); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Load retrieves the credential from the OS keychain/credential manager
func (s *KeyringStore) Load() (*Credential, error) {
	data, err := keyring.Get(s.service, s.key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	return ParseCredential([]byte(data))
}

// Delete removes the credential from the OS keychain/credential manager
func (s *KeyringStore) Delete() error {
	if err := keyring.Delete(s.service, s.key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}
