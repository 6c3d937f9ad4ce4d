// Package session owns the single source of truth for who is logged in.
//
// A Manager restores the persisted credential once per process, mediates
// login, registration and logout, and is the only place a credential is
// invalidated. Invalidation publishes events.SessionExpired on the bus the
// Manager owns, at most once per token.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/chatdesk-dev/chatdesk/internal/cli/auth"
	"github.com/chatdesk-dev/chatdesk/internal/cli/client"
	"github.com/chatdesk-dev/chatdesk/internal/cli/events"
)

// State of the session state machine.
type State int

const (
	StateUnknown State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	loginFallback    = "error signing in"
	registerFallback = "error registering account"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated. Please run 'chatdesk login' first")
	ErrForbidden        = errors.New("your role is not allowed to do this")
	ErrNoAuthenticator  = errors.New("no backend configured for authentication")
)

// AuthenticationError is returned by Login. Message is shown to the user as is.
type AuthenticationError struct {
	Message string
	Err     error
}

func (e *AuthenticationError) Error() string { return e.Message }
func (e *AuthenticationError) Unwrap() error { return e.Err }

// RegistrationError is returned by Register. Message is shown to the user as is.
type RegistrationError struct {
	Message string
	Err     error
}

func (e *RegistrationError) Error() string { return e.Message }
func (e *RegistrationError) Unwrap() error { return e.Err }

// Authenticator talks to the backend's public account endpoints.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*auth.Credential, error)
	Register(ctx context.Context, name, email, password string) (*auth.Credential, error)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type registerForm struct {
	Name     string `validate:"required"`
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// Manager is the session context shared by every request pipeline.
type Manager struct {
	store    auth.CredentialStore
	bus      *events.Bus
	logger   zerolog.Logger
	validate *validator.Validate

	mu      sync.RWMutex
	api     Authenticator
	state   State
	current *auth.Credential
	// invalidated is the token of the last invalidated credential. A second
	// invalidation of the same token is a no-op.
	invalidated string

	restoreOnce sync.Once
	ready       chan struct{}
}

// New creates a manager in the Unknown state. Call Restore before use.
func New(store auth.CredentialStore, logger zerolog.Logger) *Manager {
	return &Manager{
		store:    store,
		bus:      events.NewBus(),
		logger:   logger,
		validate: validator.New(),
		ready:    make(chan struct{}),
	}
}

// Bind sets the backend used by Login and Register.
func (m *Manager) Bind(api Authenticator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.api = api
}

// Events returns the bus session-expired events are published on.
func (m *Manager) Events() *events.Bus {
	return m.bus
}

// Restore reads the persisted credential and leaves Unknown. It runs once per
// Manager; later calls return the current state.
func (m *Manager) Restore() State {
	m.restoreOnce.Do(func() {
		cred, err := m.store.Load()

		m.mu.Lock()
		if err == nil {
			m.current = cred
			m.state = StateAuthenticated
		} else {
			m.state = StateAnonymous
			if !errors.Is(err, auth.ErrNoCredential) {
				m.logger.Warn().Err(err).Msg("Failed to restore session")
			}
		}
		m.mu.Unlock()

		close(m.ready)
	})
	return m.State()
}

// Ready is closed once Restore has completed.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Loading reports whether Restore has not completed yet.
func (m *Manager) Loading() bool {
	select {
	case <-m.ready:
		return false
	default:
		return true
	}
}

// WaitReady blocks until Restore has completed or ctx is done.
func (m *Manager) WaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Current returns the in-memory credential, or nil when anonymous.
func (m *Manager) Current() *auth.Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Stored reads the persisted credential on every call so that a credential
// cleared elsewhere is never used.
func (m *Manager) Stored() (*auth.Credential, error) {
	return m.store.Load()
}

// Authorize returns the current credential if its role is one of allowed.
// No roles means any authenticated user.
func (m *Manager) Authorize(allowed ...auth.Role) (*auth.Credential, error) {
	m.Restore()

	cred := m.Current()
	if cred == nil {
		return nil, ErrNotAuthenticated
	}
	if len(allowed) > 0 && !slices.Contains(allowed, cred.Role) {
		return nil, ErrForbidden
	}
	return cred, nil
}

// Login authenticates against the backend and persists the credential.
// Failures are *AuthenticationError and leave the session untouched.
func (m *Manager) Login(ctx context.Context, email, password string) (*auth.Credential, error) {
	m.Restore()

	if err := m.validate.Struct(loginForm{Email: email, Password: password}); err != nil {
		return nil, &AuthenticationError{Message: formMessage(err), Err: err}
	}

	api, err := m.authenticator()
	if err != nil {
		return nil, &AuthenticationError{Message: loginFallback, Err: err}
	}

	cred, err := api.Login(ctx, email, password)
	if err != nil {
		return nil, &AuthenticationError{Message: userMessage(err, loginFallback), Err: err}
	}
	if err := cred.Validate(); err != nil {
		return nil, &AuthenticationError{Message: loginFallback, Err: err}
	}

	if err := m.establish(cred); err != nil {
		return nil, err
	}
	m.logger.Info().Str("user_id", cred.UserID).Str("role", string(cred.Role)).Msg("Logged in")
	return cred, nil
}

// Register creates an account and logs it in.
// Failures are *RegistrationError and leave the session untouched.
func (m *Manager) Register(ctx context.Context, name, email, password string) (*auth.Credential, error) {
	m.Restore()

	if err := m.validate.Struct(registerForm{Name: name, Email: email, Password: password}); err != nil {
		return nil, &RegistrationError{Message: formMessage(err), Err: err}
	}

	api, err := m.authenticator()
	if err != nil {
		return nil, &RegistrationError{Message: registerFallback, Err: err}
	}

	cred, err := api.Register(ctx, name, email, password)
	if err != nil {
		return nil, &RegistrationError{Message: userMessage(err, registerFallback), Err: err}
	}
	if err := cred.Validate(); err != nil {
		return nil, &RegistrationError{Message: registerFallback, Err: err}
	}

	if err := m.establish(cred); err != nil {
		return nil, err
	}
	m.logger.Info().Str("user_id", cred.UserID).Msg("Registered")
	return cred, nil
}

func (m *Manager) authenticator() (Authenticator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.api == nil {
		return nil, ErrNoAuthenticator
	}
	return m.api, nil
}

// establish persists cred first so that a failed write leaves the session anonymous.
func (m *Manager) establish(cred *auth.Credential) error {
	if err := m.store.Save(cred); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	m.mu.Lock()
	m.current = cred
	m.state = StateAuthenticated
	m.invalidated = ""
	m.mu.Unlock()
	return nil
}

// Logout clears the persisted and in-memory credential. It never fails and
// calling it again is a no-op.
func (m *Manager) Logout() {
	m.Restore()

	m.mu.Lock()
	wasAuthenticated := m.state == StateAuthenticated
	m.current = nil
	m.state = StateAnonymous
	m.mu.Unlock()

	if err := m.store.Delete(); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to delete stored credential")
	}
	if wasAuthenticated {
		m.logger.Info().Msg("Logged out")
	}
}

// Invalidate clears the credential carrying tok and publishes
// events.SessionExpired. It reports whether the event was published; repeated
// calls for the same token, such as from racing requests, only clear.
func (m *Manager) Invalidate(tok, reason, source string) bool {
	m.Restore()

	m.mu.Lock()
	first := tok == "" || m.invalidated != tok
	m.invalidated = tok
	if m.current == nil || m.current.Token == tok || tok == "" {
		m.current = nil
		m.state = StateAnonymous
	}
	m.mu.Unlock()

	if err := m.clearStored(tok); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to delete stored credential")
	}

	if !first {
		m.logger.Debug().Str("reason", reason).Msg("Session already invalidated")
		return false
	}

	m.logger.Info().Str("reason", reason).Str("source", source).Msg("Session invalidated")
	m.bus.Publish(events.Event{
		Name:   events.SessionExpired,
		Reason: reason,
		Source: source,
		At:     time.Now(),
	})
	return true
}

// clearStored deletes the persisted credential unless it has been replaced by
// a different one since tok was read.
func (m *Manager) clearStored(tok string) error {
	stored, err := m.store.Load()
	if err != nil {
		if errors.Is(err, auth.ErrNoCredential) {
			return m.store.Delete()
		}
		return err
	}
	if tok != "" && stored.Token != tok {
		return nil
	}
	return m.store.Delete()
}

func formMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldLabel(fe.Field()))
	case "email":
		return "a valid email address is required"
	default:
		return fmt.Sprintf("%s is invalid", fieldLabel(fe.Field()))
	}
}

func fieldLabel(field string) string {
	switch field {
	case "Email":
		return "email"
	case "Password":
		return "password"
	case "Name":
		return "name"
	default:
		return field
	}
}

// userMessage prefers the backend message; transport failures and empty
// bodies get the fallback.
func userMessage(err error, fallback string) string {
	if msg := client.MessageOf(err); msg != "" {
		return msg
	}
	return fallback
}
