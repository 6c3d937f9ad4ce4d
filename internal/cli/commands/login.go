package commands

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/chatdesk-dev/chatdesk/internal/cli/config"
	"github.com/chatdesk-dev/chatdesk/internal/cli/token"
)

// NewLoginCmd creates the login command
func NewLoginCmd(app *App) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the chat backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context(), app, email, password)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (or set CHATDESK_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set CHATDESK_PASSWORD, will prompt if not provided)")

	return cmd
}

func runLogin(ctx context.Context, app *App, email, password string) error {
	// Environment variables are useful for scripts
	if email == "" {
		email = os.Getenv(config.EnvEmail)
	}
	if password == "" {
		password = os.Getenv(config.EnvPassword)
	}

	if email == "" {
		return fmt.Errorf("email is required (use --email flag or %s env var)", config.EnvEmail)
	}

	password, err := readPassword(password, config.EnvPassword)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "Signing in to %s...\n", app.Config.APIURL)

	cred, err := app.Session.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Fprintln(app.Out, "✓ Login successful!")
	fmt.Fprintf(app.Out, "  User: %s (%s)\n", cred.Name, cred.Email)
	if cred.Role.IsAdmin() {
		fmt.Fprintf(app.Out, "  Role: %s\n", cred.Role)
	}

	return nil
}

// NewRegisterCmd creates the register command
func NewRegisterCmd(app *App) *cobra.Command {
	var name, email, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(cmd.Context(), app, name, email, password)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (will prompt if not provided)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runRegister(ctx context.Context, app *App, name, email, password string) error {
	password, err := readPassword(password, config.EnvPassword)
	if err != nil {
		return err
	}

	cred, err := app.Session.Register(ctx, name, email, password)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	fmt.Fprintf(app.Out, "✓ Account created. Signed in as %s (%s)\n", cred.Name, cred.Email)
	return nil
}

// readPassword returns password, or prompts for it when stdin is a terminal
func readPassword(password, envName string) (string, error) {
	if password != "" {
		return password, nil
	}

	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("password is required in non-interactive mode (use --password flag or %s env var)", envName)
	}

	fmt.Print("Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(bytePassword), nil
}

// NewLogoutCmd creates the logout command
func NewLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Session.Logout()
			fmt.Fprintln(app.Out, "✓ Logged out")
			return nil
		},
	}
}

// NewWhoamiCmd creates the whoami command
func NewWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return apiError(runWhoami(app, time.Now()))
		},
	}
}

func runWhoami(app *App, now time.Time) error {
	cred, err := app.requireUser()
	if err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "%s (%s)\n", cred.Name, cred.Email)
	fmt.Fprintf(app.Out, "  ID:   %s\n", cred.UserID)
	fmt.Fprintf(app.Out, "  Role: %s\n", cred.Role)
	if remaining := token.Remaining(cred.Token, now); remaining > 0 {
		fmt.Fprintf(app.Out, "  Session expires in %s\n", remaining.Round(time.Minute))
	}
	return nil
}
