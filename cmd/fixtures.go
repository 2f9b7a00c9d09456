package cmd

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/lflhelper/fixtures-bot/internal/app"
	"github.com/lflhelper/fixtures-bot/internal/render"
)

// newFixturesCmd creates the 'fixtures' subcommand, which runs one team
// query and prints the rendered messages.
func newFixturesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "fixtures <team name...>",
		Short: "Look up the next fixtures of a team",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			report := app.NewPipeline(rt.cfg, rt.logger).RunReport(cmd.Context(), query)

			out := cmd.OutOrStdout()
			if asJSON {
				body, err := sonic.ConfigStd.MarshalIndent(report, "", "  ")
				if err != nil {
					return fmt.Errorf("encode report: %w", err)
				}
				_, err = fmt.Fprintln(out, string(body))
				return err
			}
			formatter := render.New(rt.cfg.RenderOffset())
			for i, msg := range formatter.Messages(report) {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintln(out, msg)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw report as JSON")
	return cmd
}
