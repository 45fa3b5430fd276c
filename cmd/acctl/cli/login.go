package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/acctl/acctl/internal/session"
)

func newLoginCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the account service",
		Long:  "Authenticate against the account service and persist the session locally. Subsequent commands reuse the session until it expires or you log out.",
		Example: `  acctl login --username admin
  acctl login   # prompts for the username, prefilled with the last one used`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(username)
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username to log in as (prompted if omitted)")

	return cmd
}

func runLogin(username string) error {
	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := context.Background()

	if username == "" {
		prefill := env.manager.LastUsername(ctx)
		prompt := "Username: "
		if prefill != "" {
			prompt = fmt.Sprintf("Username [%s]: ", prefill)
		}
		fmt.Print(prompt)
		if _, err := fmt.Scanln(&username); err != nil && prefill == "" {
			return errors.New("no username given")
		}
		if username == "" {
			username = prefill
		}
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	sess, err := env.manager.Login(ctx, username, password)
	if errors.Is(err, session.ErrInvalidCredentials) {
		return errors.New("username and/or password are wrong!")
	}
	if err != nil {
		return err
	}

	role := "User"
	if sess.IsAdmin {
		role = "Admin"
	}
	fmt.Printf("Logged in as %s (%s)\n", sess.Username, role)
	return nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and discard the persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newAppEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := context.Background()
			if _, _, err := env.manager.Restore(ctx); err != nil {
				return err
			}
			if err := env.manager.Logout(ctx); err != nil {
				return err
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newAppEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			sess, err := env.restoreSession(context.Background())
			if err != nil {
				return err
			}

			role := "User"
			if sess.IsAdmin {
				role = "Admin"
			}
			fmt.Printf("%-14s %s\n", "Username:", sess.Username)
			fmt.Printf("%-14s %s\n", "Role:", role)
			if !sess.LastChanged.IsZero() {
				fmt.Printf("%-14s %s\n", "Last changed:", sess.LastChanged.Local().Format("02.01.2006 15:04:05"))
			}
			return nil
		},
	}
}
