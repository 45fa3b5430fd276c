package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/acctl/acctl/internal/console"
)

func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Run the interactive admin console",
		Long:  "Start an interactive session: restore the persisted login if present, otherwise prompt for credentials, then manage the account directory from a command prompt.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newAppEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			c := console.New(env.manager, env.syncer, env.client, env.logger, console.Options{
				In:           os.Stdin,
				Out:          os.Stdout,
				ReadPassword: promptPassword,
			})
			return c.Run(context.Background())
		},
	}
}
