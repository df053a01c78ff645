package main

import (
	"fmt"
	"os"

	"github.com/ichi0g0y/alliance-bot/internal/config"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"github.com/ichi0g0y/alliance-bot/internal/version"
	"github.com/spf13/cobra"
)

const programName = "alliance-bot"

var globalFlags = struct {
	debug      bool
	configFile string
	envFile    string
}{}

func main() {
	err := newRootCommand().Execute()
	logger.Sync()
	if err != nil {
		// cobra has already printed the error
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Discord bot that tracks alliance membership, activity, events and awards",
		Version:      version.String(),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(globalFlags.configFile, globalFlags.envFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if globalFlags.debug {
				cfg.Debug = true
			}
			logger.Init(cfg.Debug)
			cmd.SetContext(config.WithContext(cmd.Context(), cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&globalFlags.configFile, "config", "", "path to a TOML config file")
	rootCmd.PersistentFlags().
		StringVar(&globalFlags.envFile, "env-file", ".env", "path to a .env file (ignored when missing)")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(awardCycleCommand())
	rootCmd.AddCommand(checkTenureCommand())
	rootCmd.AddCommand(syncMembersCommand())
	return rootCmd
}
