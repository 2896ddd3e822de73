// Package main implements the rep4rep CLI: account registration, fleet runs
// and the read-only status server.
package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rep4rep/steam-commenter/internal/config"
	"github.com/rep4rep/steam-commenter/internal/logging"
)

var (
	version = "dev"

	cfg      *config.Config
	closeLog = func() error { return nil }
)

func main() {
	defer func() { closeLog() }()

	// Failures are logged per command; the process exits 0 at normal completion.
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
	}
}

var rootCmd = &cobra.Command{
	Use:   "rep4rep",
	Short: "Steam comment orchestrator for rep4rep.com",
	Long: `rep4rep manages a fleet of Steam accounts, keeps them registered with
rep4rep.com and spends each account's daily comment quota on open tasks.

Configuration is read from the environment and an optional .env file.`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.AddCommand(
		runCmd,
		listProfilesCmd,
		authAllProfilesCmd,
		addProfileCmd,
		removeProfileCmd,
		addProfilesFromFileCmd,
		addProfilesAndRunCmd,
		checkAndSyncProfilesCmd,
		checkCommentAvailabilityCmd,
		serveCmd,
		daemonCmd,
	)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load()
	if err != nil {
		return err
	}
	closeLog = logging.Setup(logging.Options{
		Level:      loaded.LogLevel,
		File:       loaded.LogFile,
		MaxSizeMB:  loaded.LogMaxSizeMB,
		MaxBackups: loaded.LogMaxBackups,
		MaxAgeDays: loaded.LogMaxAgeDays,
	})
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded
	return nil
}
