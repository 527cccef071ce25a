package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/botcore/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage botcore configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  botcore config init -o botcore.yaml
  botcore config validate -f botcore.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Long: `Create a new configuration file with default settings. The file
is written YAML unless the name ends in .json.

Example:
  botcore config init -o botcore.yaml`,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Check that a configuration file loads, with BOTCORE_* environment
overrides applied, and passes validation.

Example:
  botcore config validate -f botcore.yaml`,
	RunE: runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "botcore.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("✓ Created default configuration: %s\n", configInitOutput)
	fmt.Println("\nEdit the file and run with:")
	fmt.Printf("  botcore run -f %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("✓ Configuration valid: %s\n", configValidatePath)
	fmt.Printf("  Symbol: %s\n", cfg.Symbol)
	fmt.Printf("  Decision service: %s\n", cfg.Decision.URL)
	fmt.Printf("  Broker: %s\n", cfg.Broker.Mode)
	fmt.Printf("  Session: %02d:00 %s (base %s)\n", cfg.Schedule.SessionHour, cfg.Schedule.Location(), cfg.Schedule.Timeframe())
	fmt.Printf("  Safety: max %d open, max drawdown %.1f%%\n", cfg.Safety.MaxOpenPositions, cfg.Safety.MaxDrawdown*100)
	fmt.Printf("  Journal: %s\n", cfg.Journal.Type)
	return nil
}
