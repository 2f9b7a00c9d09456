package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lflhelper/fixtures-bot/internal/app"
)

// newServeCmd creates the 'serve' subcommand, which runs the HTTP API and the
// payment watcher pool until SIGINT or SIGTERM.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and payment watchers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), rt.cfg, rt.logger)
			if err != nil {
				return fmt.Errorf("init application: %w", err)
			}
			if err := a.Run(cmd.Context()); err != nil {
				return fmt.Errorf("run application: %w", err)
			}
			return nil
		},
	}
}
