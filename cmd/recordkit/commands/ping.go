package commands

import (
	"context"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewPingCommand creates the ping command, which verifies the configured
// connection settings.
func NewPingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check connectivity to the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			ad, err := openAdapter(cfg)
			if err != nil {
				return err
			}
			defer ad.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			start := time.Now()
			if err := ad.DB().PingContext(ctx); err != nil {
				return err
			}
			color.Green("%s reachable in %s", cfg.Provider, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
