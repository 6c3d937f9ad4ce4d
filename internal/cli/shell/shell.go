// Package shell reacts to session expiry for the running command.
//
// The shell subscribes to events.SessionExpired on the session's bus. On
// public routes it logs out and sends the user to login silently; anywhere
// else it first asks the user to acknowledge a single blocking notice.
package shell

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chatdesk-dev/chatdesk/internal/cli/auth"
	"github.com/chatdesk-dev/chatdesk/internal/cli/events"
	"github.com/chatdesk-dev/chatdesk/internal/cli/token"
)

const (
	RouteLogin    = "login"
	RouteRegister = "register"
	RouteLogout   = "logout"
	RouteVersion  = "version"
	RouteHelp     = "help"

	expiredTitle   = "Session expired"
	expiredMessage = "Your session has expired. Please log in again."
)

var publicRoutes = map[string]bool{
	RouteLogin:    true,
	RouteRegister: true,
	RouteLogout:   true,
	RouteVersion:  true,
	RouteHelp:     true,
}

// IsPublicRoute reports whether route can be used without a session.
func IsPublicRoute(route string) bool {
	return publicRoutes[route]
}

// Session is the part of session.Manager the shell needs.
type Session interface {
	Events() *events.Bus
	Stored() (*auth.Credential, error)
	Invalidate(tok, reason, source string) bool
	Logout()
}

// Prompter shows the blocking acknowledgment notice.
type Prompter interface {
	Acknowledge(ctx context.Context, title, message string) error
}

// Navigator moves the user to the login route.
type Navigator interface {
	ToLogin()
}

// Shell tracks the current route and applies the expiry policy.
type Shell struct {
	session  Session
	prompter Prompter
	nav      Navigator
	codec    *token.Codec
	logger   zerolog.Logger

	mu          sync.Mutex
	route       string
	modalOpen   bool
	unsubscribe func()
}

// Option configures a Shell.
type Option func(*Shell)

// WithCodec sets the codec used by CheckStartup.
func WithCodec(codec *token.Codec) Option {
	return func(s *Shell) { s.codec = codec }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Shell) { s.logger = logger }
}

func New(sess Session, prompter Prompter, nav Navigator, opts ...Option) *Shell {
	s := &Shell{
		session:  sess,
		prompter: prompter,
		nav:      nav,
		codec:    token.NewCodec(nil),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetRoute records the route the user is on.
func (s *Shell) SetRoute(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.route = route
}

func (s *Shell) Route() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

// Attach subscribes the shell to session-expired events. Attaching twice is a no-op.
func (s *Shell) Attach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		return
	}
	s.unsubscribe = s.session.Events().Subscribe(events.SessionExpired, s.handleExpired)
}

// Detach unsubscribes the shell.
func (s *Shell) Detach() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// CheckStartup checks the persisted token once and invalidates the session if
// it has already expired. It reports whether the session was invalidated.
func (s *Shell) CheckStartup() bool {
	cred, err := s.session.Stored()
	if err != nil {
		return false
	}
	if !s.codec.IsExpired(cred.Token) {
		return false
	}
	s.logger.Debug().Msg("Stored session token expired at startup")
	s.session.Invalidate(cred.Token, "token expired", "startup")
	return true
}

func (s *Shell) handleExpired(ev events.Event) {
	s.mu.Lock()
	if s.modalOpen || s.route == RouteLogin {
		s.mu.Unlock()
		s.logger.Debug().Str("reason", ev.Reason).Msg("Ignoring session expiry")
		return
	}

	if IsPublicRoute(s.route) {
		s.mu.Unlock()
		s.toLogin()
		return
	}

	s.modalOpen = true
	s.mu.Unlock()

	if err := s.prompter.Acknowledge(context.Background(), expiredTitle, expiredMessage); err != nil {
		s.logger.Debug().Err(err).Msg("Expiry notice dismissed")
	}
	s.toLogin()

	s.mu.Lock()
	s.modalOpen = false
	s.mu.Unlock()
}

func (s *Shell) toLogin() {
	s.session.Logout()
	s.SetRoute(RouteLogin)
	s.nav.ToLogin()
}
