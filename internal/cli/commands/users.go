package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chatdesk-dev/chatdesk/internal/cli/auth"
	"github.com/chatdesk-dev/chatdesk/internal/cli/client"
)

var adminRoles = []auth.Role{auth.RoleAdmin, auth.RoleSuperAdmin}

// NewUsersCmd creates the admin users command group
func NewUsersCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts (admin only)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return apiError(runUsersList(cmd.Context(), app))
		},
	})
	cmd.AddCommand(newUsersCreateCmd(app))
	cmd.AddCommand(newUsersUpdateCmd(app))
	cmd.AddCommand(&cobra.Command{
		Use:     "rm <user-id>",
		Aliases: []string{"delete"},
		Short:   "Delete a user",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.requireUser(adminRoles...); err != nil {
				return apiError(err)
			}
			if err := app.API.DeleteUser(cmd.Context(), args[0]); err != nil {
				return apiError(err)
			}
			fmt.Fprintf(app.Out, "✓ Deleted user %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func runUsersList(ctx context.Context, app *App) error {
	if _, err := app.requireUser(adminRoles...); err != nil {
		return err
	}

	users, err := app.API.ListUsers(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE\tCREATED")
	fmt.Fprintln(w, "──\t────\t─────\t────\t───────")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, u.Role, formatTime(u.CreatedAt))
	}
	return w.Flush()
}

func newUsersCreateCmd(app *App) *cobra.Command {
	var req client.UserRequest
	var role string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.requireUser(adminRoles...); err != nil {
				return apiError(err)
			}
			req.Role = auth.Role(role)
			user, err := app.API.CreateUser(cmd.Context(), req)
			if err != nil {
				return apiError(err)
			}
			fmt.Fprintf(app.Out, "✓ Created user %s (%s, %s)\n", user.ID, user.Email, user.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&req.Password, "password", "", "Initial password")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleUser), "Role: user, admin or superadmin")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newUsersUpdateCmd(app *App) *cobra.Command {
	var req client.UserRequest
	var role string

	cmd := &cobra.Command{
		Use:   "update <user-id>",
		Short: "Update a user (blank password keeps the current one)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.requireUser(adminRoles...); err != nil {
				return apiError(err)
			}
			req.Role = auth.Role(role)
			user, err := app.API.UpdateUser(cmd.Context(), args[0], req)
			if err != nil {
				return apiError(err)
			}
			fmt.Fprintf(app.Out, "✓ Updated user %s (%s, %s)\n", user.ID, user.Email, user.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&req.Password, "password", "", "New password")
	cmd.Flags().StringVar(&role, "role", "", "Role: user, admin or superadmin")

	return cmd
}
