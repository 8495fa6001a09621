package commands

import (
	"context"
	"time"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// NewInspectCommand creates the inspect command, which prints the column
// layout of a table as the engine sees it.
func NewInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <table>",
		Short: "Show the columns of a database table",
		Long: `Inspect loads a table's column metadata through the same introspection
path the engine uses to build table metadata, and prints it.`,
		Args: cobra.ExactArgs(1),
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

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			cols, err := ad.IntrospectColumns(ctx, args[0])
			if err != nil {
				return err
			}

			data := pterm.TableData{{"Column", "Type", "Mapped", "Nullable", "Primary Key"}}
			for _, c := range cols {
				data = append(data, []string{
					c.Name,
					c.RawType,
					c.Type.String(),
					yesNo(c.Nullable),
					yesNo(c.PrimaryKey),
				})
			}
			if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
				return err
			}
			color.Green("%d columns in %s", len(cols), args[0])
			return nil
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
