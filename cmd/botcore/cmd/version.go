package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the botcore CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("botcore version %s\n", version)
		fmt.Println("Execution safety engine for remote trading decisions")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
