package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/acctl/acctl/internal/directory"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts in the directory",
		Long:  "Add and remove accounts, toggle the admin role, and change passwords. All subcommands except a self-service 'passwd' require an admin session.",
	}

	cmd.AddCommand(newUserAddCmd())
	cmd.AddCommand(newUserRemoveCmd())
	cmd.AddCommand(newUserRoleCmd())
	cmd.AddCommand(newUserPasswdCmd())

	return cmd
}

// ---------- user add ----------

func newUserAddCmd() *cobra.Command {
	var admin bool

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Add a new account",
		Args:  cobra.ExactArgs(1),
		Example: `  acctl user add bob
  acctl user add carol --admin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserAdd(args[0], admin)
		},
	}

	cmd.Flags().BoolVar(&admin, "admin", false, "Give the new account the admin role")

	return cmd
}

func runUserAdd(name string, admin bool) error {
	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := context.Background()
	if _, err := env.restoreSession(ctx); err != nil {
		return err
	}

	password, confirm, err := promptNewPassword(name)
	if err != nil {
		return err
	}

	username, err := env.syncer.AddUser(ctx, name, password, confirm, admin)
	if errors.Is(err, directory.ErrPasswordMismatch) {
		return errors.New("password and confirmation do not match, nothing sent")
	}
	if err != nil {
		return err
	}
	fmt.Printf("successfully added user %s\n", username)
	return nil
}

// ---------- user remove ----------

func newUserRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <username>",
		Aliases: []string{"rm"},
		Short:   "Remove an account",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newAppEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := context.Background()
			if _, err := env.restoreSession(ctx); err != nil {
				return err
			}

			username, err := env.syncer.RemoveUser(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("successfully removed user %s\n", username)
			return nil
		},
	}
}

// ---------- user role ----------

func newUserRoleCmd() *cobra.Command {
	var (
		setAdmin bool
		setUser  bool
	)

	cmd := &cobra.Command{
		Use:   "role <username>",
		Short: "Toggle or set the admin role of an account",
		Long:  "Without flags the role is toggled based on the directory's current state. With --admin or --user the role is set to exactly that state.",
		Args:  cobra.ExactArgs(1),
		Example: `  acctl user role bob           # toggle
  acctl user role bob --admin   # promote
  acctl user role bob --user    # demote`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if setAdmin && setUser {
				return errors.New("--admin and --user are mutually exclusive")
			}
			return runUserRole(args[0], setAdmin, setUser)
		},
	}

	cmd.Flags().BoolVar(&setAdmin, "admin", false, "Set the admin role")
	cmd.Flags().BoolVar(&setUser, "user", false, "Clear the admin role")

	return cmd
}

func runUserRole(name string, setAdmin, setUser bool) error {
	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := context.Background()
	if _, err := env.restoreSession(ctx); err != nil {
		return err
	}

	var newState bool
	switch {
	case setAdmin:
		newState = true
		err = env.syncer.SetRole(ctx, name, true)
	case setUser:
		newState = false
		err = env.syncer.SetRole(ctx, name, false)
	default:
		// Toggling needs a snapshot to negate against.
		if _, err := env.syncer.Refresh(ctx); err != nil {
			return err
		}
		newState, err = env.syncer.ToggleRole(ctx, name)
	}
	if err != nil {
		return err
	}

	role := "User"
	if newState {
		role = "Admin"
	}
	fmt.Printf("%s is now %s\n", name, role)
	return nil
}

// ---------- user passwd ----------

func newUserPasswdCmd() *cobra.Command {
	var oldPassword bool

	cmd := &cobra.Command{
		Use:   "passwd [username]",
		Short: "Change an account's password",
		Long:  "Change a password using the current session. Without a username the logged-in account is targeted. With --old-password no session is needed: the current password authorizes the change instead.",
		Args:  cobra.MaximumNArgs(1),
		Example: `  acctl user passwd            # own password, via session
  acctl user passwd bob        # someone else's (admin only)
  acctl user passwd bob --old-password   # prove the current password, no session`,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			return runUserPasswd(target, oldPassword)
		},
	}

	cmd.Flags().BoolVar(&oldPassword, "old-password", false, "Authorize with the account's current password instead of a session")

	return cmd
}

func runUserPasswd(target string, useOldPassword bool) error {
	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := context.Background()

	if useOldPassword {
		if target == "" {
			return errors.New("a username is required with --old-password")
		}
		old, err := promptPassword("Current password: ")
		if err != nil {
			return err
		}
		password, confirm, err := promptNewPassword(target)
		if err != nil {
			return err
		}
		if password == "" || password != confirm {
			return errors.New("password and confirmation do not match, nothing sent")
		}
		if err := env.client.UpdatePasswordWithOld(ctx, target, old, password); err != nil {
			return err
		}
		fmt.Printf("successfully updated password for %s\n", target)
		return nil
	}

	sess, err := env.restoreSession(ctx)
	if err != nil {
		return err
	}
	if target == "" {
		target = sess.Username
	}

	password, confirm, err := promptNewPassword(target)
	if err != nil {
		return err
	}

	if !sess.IsAdmin {
		// Self-service path: non-admins have no directory access, so skip
		// the syncer and its re-sync.
		if password == "" || password != confirm {
			return errors.New("password and confirmation do not match, nothing sent")
		}
		username, err := env.client.UpdatePassword(ctx, env.manager.Token(), target, password)
		if err != nil {
			return err
		}
		env.manager.TouchLastChanged(ctx, time.Now())
		fmt.Printf("successfully updated password for %s\n", username)
		return nil
	}

	username, err := env.syncer.UpdatePassword(ctx, target, password, confirm)
	if errors.Is(err, directory.ErrPasswordMismatch) {
		return errors.New("password and confirmation do not match, nothing sent")
	}
	if err != nil {
		return err
	}
	fmt.Printf("successfully updated password for %s\n", username)
	return nil
}
