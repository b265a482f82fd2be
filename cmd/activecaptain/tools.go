package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/config"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/database"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/geo"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/inbox"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/logging"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/notify"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var errTileRequired = errors.New("tile coordinates are required when the file is not named tile_<x>_<y>.db")

func newInstallTileCommand() *cobra.Command {
	var tileX, tileY int
	cmd := &cobra.Command{
		Use:   "install-tile <file>",
		Short: "Install a single-tile database into the library (the file is consumed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tile, err := resolveTile(args[0], tileX, tileY, cmd.Flags().Changed("x") || cmd.Flags().Changed("y"))
			if err != nil {
				return err
			}

			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(appConfig.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			service, libraryStore, err := openLibrary(cmd.Context(), appConfig, notify.Discard, nil, logger)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := libraryStore.Close(); closeErr != nil {
					logger.Error("library close failed", zap.Error(closeErr))
				}
			}()

			if err := service.InstallSingleTileDatabase(cmd.Context(), args[0], tile); err != nil {
				return err
			}
			installed, _ := service.InstalledVersion()
			fmt.Fprintf(cmd.OutOrStdout(), "installed tile %s, library version %s\n", tile, installed)
			return nil
		},
	}
	cmd.Flags().IntVar(&tileX, "x", 0, fmt.Sprintf("Tile column (0-%d)", geo.TileCount-1))
	cmd.Flags().IntVar(&tileY, "y", 0, fmt.Sprintf("Tile row (0-%d)", geo.TileCount-1))
	return cmd
}

// resolveTile prefers explicit coordinates and falls back to the file name.
func resolveTile(path string, x, y int, explicit bool) (geo.Tile, error) {
	if explicit {
		return geo.NewTile(x, y)
	}
	tile, ok := inbox.ParseTileFileName(filepath.Base(path))
	if !ok {
		return geo.Tile{}, errTileRequired
	}
	return tile, nil
}

func newCreateDatabaseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create-db <version>",
		Short: "Create an empty library database stamped with the given version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			databaseVersion, err := version.Parse(args[0])
			if err != nil {
				return err
			}
			if !databaseVersion.SchemaCompatible() {
				return fmt.Errorf("schema %d is not supported (want %d)", databaseVersion.Schema, version.Supported.Schema)
			}

			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(appConfig.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if err := database.Create(appConfig.DatabasePath, databaseVersion, logger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s at version %s\n", appConfig.DatabasePath, databaseVersion)
			return nil
		},
	}
}

func newIssueTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "issue-token <subject>",
		Short: "Issue an admin API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := appConfig.TokenIssuer()
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.IssueToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build and supported database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "activecaptain %s (database schema %d)\n", buildVersion, version.Supported.Schema)
			return nil
		},
	}
}
