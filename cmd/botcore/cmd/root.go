package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/botcore/config"
)

var (
	envFile  string
	logLevel string
	console  bool
)

var rootCmd = &cobra.Command{
	Use:   "botcore",
	Short: "Execution safety engine for an external trading decision service",
	Long: `Botcore sits between a remote decision service and a broker.

On a schedule it snapshots the market, asks the decision service for a
directive, validates it against live broker state, sizes the position by
risk and executes through a single audited path. Every cycle is journaled.

Subcommands:
  run      - Run the decision loop against the bridge or the paper broker
  config   - Generate or validate configuration files
  journal  - Query journaled cycles and broker calls
  version  - Print the version`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadEnv(envFile)
		setupLogging(logLevel, console)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with BOTCORE_* overrides")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&console, "console", true, "human readable console logs instead of JSON")
}

func setupLogging(level string, pretty bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
