package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	serverURL  string
	verbose    bool
	appVersion string
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acctl",
		Short: "Admin console for a user-account service",
		Long: `acctl is a terminal admin console for a user-account service.
It logs in against the service's JSON API, keeps the session in a
local state store, and manages the account directory: listing users with
their metadata, adding and removing accounts, toggling the admin role, and
changing passwords with strength feedback.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./acctl.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for local state (default: ~/.acctl)")
	cmd.PersistentFlags().StringVar(&serverURL, "server", "", "base URL of the account service (overrides config)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newUserCmd())
	cmd.AddCommand(newConsoleCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("acctl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.acctl")
	}

	viper.SetEnvPrefix("ACCTL")
	viper.AutomaticEnv()
	viper.SetDefault("server.timeout", "30s")
	viper.SetDefault("log.level", "info")
	viper.ReadInConfig() // Ignore error - config file is optional
}
