// Package cmd implements the testrig command line interface.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the testrig application.
var rootCmd = &cobra.Command{
	Use:   "testrig",
	Short: "Hardware validation test orchestration",
	Long: `testrig runs repeated multi-phase test sequences against units under
test (UUTs): it drives the registered lifecycle callbacks, supervises test
steps, monitors rig health and renders per-sequence result reports.

The engine itself is embedded by station-specific binaries; this command
hosts the shared facilities of a test station, such as the TFTP transfer
service used to feed firmware images to UUTs.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from the main
// package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "testrig version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newTftpCmd())
}
