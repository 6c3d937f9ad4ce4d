package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/chatdesk-dev/chatdesk/internal/cli/auth"
	"github.com/chatdesk-dev/chatdesk/internal/cli/client"
	"github.com/chatdesk-dev/chatdesk/internal/cli/config"
	"github.com/chatdesk-dev/chatdesk/internal/cli/session"
	"github.com/chatdesk-dev/chatdesk/internal/cli/shell"
	"github.com/chatdesk-dev/chatdesk/internal/logger"
)

// App carries what every command needs. Its fields are populated by Setup,
// which the root command runs before any subcommand.
type App struct {
	Out    io.Writer
	ErrOut io.Writer
	Logger zerolog.Logger

	Config  *config.Config
	Session *session.Manager
	// API is the primary backend: accounts, chats and admin users.
	API *client.Client
	// Documents is the document backend. It shares Session with API.
	Documents *client.Client
	Shell     *shell.Shell

	// expiredAtStartup is set when Start found the stored session expired
	// and the shell already told the user.
	expiredAtStartup bool
}

// errExpiryReported stands in for "not authenticated" once the expiry
// notice has been shown.
var errExpiryReported = errors.New("session expired")

// Setup resolves configuration and wires the session, both pipelines and the
// expiry shell.
func (a *App) Setup() error {
	if a.Out == nil {
		a.Out = os.Stdout
	}
	if a.ErrOut == nil {
		a.ErrOut = os.Stderr
	}

	cfg, err := config.Resolve()
	if err != nil {
		return err
	}

	log := logger.InitWriter(a.ErrOut, cfg.LogLevel, "console")

	store, err := auth.NewStore(cfg.CredentialStore)
	if err != nil {
		return err
	}

	a.wire(cfg, store, log, shell.NewPrompter(a.Out))
	return nil
}

func (a *App) wire(cfg *config.Config, store auth.CredentialStore, log zerolog.Logger, prompter shell.Prompter) {
	a.Config = cfg
	a.Logger = log
	a.Session = session.New(store, log)
	a.API = client.New(cfg.APIURL, a.Session, client.WithLogger(log))
	a.Documents = client.New(cfg.DocumentsURL(), a.Session, client.WithLogger(log))
	a.Session.Bind(a.API)
	a.Shell = shell.New(a.Session, prompter, &shell.HintNavigator{Out: a.Out}, shell.WithLogger(log))
}

// Start restores the session and arms the expiry shell for route.
func (a *App) Start(route string) {
	a.Session.Restore()
	a.Shell.SetRoute(route)
	a.Shell.Attach()
	a.expiredAtStartup = a.Shell.CheckStartup()
}

// Stop disarms the expiry shell.
func (a *App) Stop() {
	if a.Shell != nil {
		a.Shell.Detach()
	}
}

// requireUser returns the logged-in user, optionally restricted to roles.
func (a *App) requireUser(roles ...auth.Role) (*auth.Credential, error) {
	cred, err := a.Session.Authorize(roles...)
	switch {
	case errors.Is(err, session.ErrForbidden):
		return nil, fmt.Errorf("this command requires one of the roles %v", roles)
	case errors.Is(err, session.ErrNotAuthenticated) && a.expiredAtStartup:
		return nil, errExpiryReported
	}
	return cred, err
}

// routeOf returns the top-level command name cmd belongs to.
func routeOf(cmd *cobra.Command) string {
	c := cmd
	for c.HasParent() && c.Parent().HasParent() {
		c = c.Parent()
	}
	if !c.HasParent() {
		return shell.RouteHelp
	}
	return c.Name()
}

// apiError drops errors the expiry shell has already reported to the user.
func apiError(err error) error {
	if client.IsTokenExpired(err) || errors.Is(err, errExpiryReported) {
		return nil
	}
	return err
}

// Prepare runs Setup and arms the shell for the route cmd belongs to.
func (a *App) Prepare(cmd *cobra.Command) error {
	if err := a.Setup(); err != nil {
		return err
	}
	a.Start(routeOf(cmd))
	return nil
}
