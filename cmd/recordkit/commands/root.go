// Package commands implements the recordkit CLI commands.
package commands

import (
	"fmt"

	"github.com/recordkit/recordkit/internal/debug"
	"github.com/spf13/cobra"
)

// Execute builds the root command and runs it.
func Execute(version, commit string) error {
	var debugSQL bool

	rootCmd := &cobra.Command{
		Use:     "recordkit",
		Short:   "recordkit database inspector",
		Long:    "recordkit turns declarative find requests into dialect-correct SQL; this CLI inspects the databases it runs against.",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			debug.Init(debugSQL)
		},
	}
	rootCmd.PersistentFlags().BoolVar(&debugSQL, "debug", false, "Log every statement and its bind values")

	rootCmd.AddCommand(NewInspectCommand())
	rootCmd.AddCommand(NewPingCommand())

	return rootCmd.Execute()
}
