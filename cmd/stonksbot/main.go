package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	stonksbot "github.com/m0rphed/stonks-bot"
	"github.com/m0rphed/stonks-bot/config"
	"github.com/m0rphed/stonks-bot/core"
	"github.com/m0rphed/stonks-bot/logger/zerolog"
)

// Command line flags
var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:     "stonksbot",
		Short:   "Telegram bot tracking stock prices and exchange rates",
		Version: "1.0.0",
	}

	rootCmd.AddCommand(buildRunCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the bot",
		RunE:  run,
	}

	runCmd.Flags().StringVarP(&configPath, "config", "c", "config.yml", "Path to the configuration file")

	return runCmd
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	bot, err := stonksbot.NewBot(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build bot: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return bot.Run(ctx)
}

func initLogger(cfg *config.Config) (core.Logger, error) {
	return zerolog.New(
		cfg.Logging.Level,
		cfg.Logging.TimeFormat,
		cfg.Logging.Colored,
		cfg.Logging.JSON,
	)
}
