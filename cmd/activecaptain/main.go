package main

import (
	"errors"
	"os"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	buildVersion = "dev"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "activecaptain",
		Short:        "ActiveCaptain tile library service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(
		newServeCommand(),
		newInstallTileCommand(),
		newCreateDatabaseCommand(),
		newIssueTokenCommand(),
		newVersionCommand(),
	)
	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite library database path")
	cmd.PersistentFlags().String("journal-policy", defaults.GetString("database.journal_policy"), "Journal policy (exclusive_wal, shared_delete, none)")
	cmd.PersistentFlags().Int("merge-page-size", defaults.GetInt("merge.page_size"), "Markers applied per merge transaction")
	cmd.PersistentFlags().String("inbox-dir", defaults.GetString("inbox.dir"), "Directory watched for tile_<x>_<y>.db files")
	cmd.PersistentFlags().String("staging-dir", defaults.GetString("staging.dir"), "Directory for staged uploads")
	cmd.PersistentFlags().String("upload-max-bytes", defaults.GetString("upload.max_bytes"), "Maximum tile upload size (e.g. 512MiB)")
	cmd.PersistentFlags().Float64("write-rate-limit", defaults.GetFloat64("http.write_rate_limit"), "Mutating requests per second per token subject (0 disables)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Admin token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.journal_policy", "journal-policy")
	bindFlag(cmd, "merge.page_size", "merge-page-size")
	bindFlag(cmd, "inbox.dir", "inbox-dir")
	bindFlag(cmd, "staging.dir", "staging-dir")
	bindFlag(cmd, "upload.max_bytes", "upload-max-bytes")
	bindFlag(cmd, "http.write_rate_limit", "write-rate-limit")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}
