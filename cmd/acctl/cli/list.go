package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var (
		jsonOutput bool
		short      bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the account directory",
		Long:    "Fetch the full account directory from the service and render it as a table. Requires an admin session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(jsonOutput, short)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&short, "short", false, "Only usernames and roles (uses the reduced listing)")

	return cmd
}

func runList(jsonOutput, short bool) error {
	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := context.Background()
	if _, err := env.restoreSession(ctx); err != nil {
		return err
	}

	if short {
		list, err := env.client.List(ctx, env.manager.Token())
		if err != nil {
			return err
		}
		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(list)
		}
		fmt.Printf("%-20s %s\n", "USER", "ROLE")
		fmt.Printf("%-20s %s\n", "----", "----")
		for name, admin := range list {
			role := "User"
			if admin {
				role = "Admin"
			}
			fmt.Printf("%-20s %s\n", name, role)
		}
		return nil
	}

	snap, err := env.syncer.Refresh(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap.Users)
	}
	snap.Render(os.Stdout)
	return nil
}
