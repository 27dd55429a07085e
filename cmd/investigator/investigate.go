package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/miradorstack/secops-investigator/internal/config"
	"github.com/miradorstack/secops-investigator/internal/engine"
	"github.com/miradorstack/secops-investigator/internal/utils"
)

func newInvestigateCmd(opts *rootOptions) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "investigate <query...>",
		Short: "Run one investigation in-process and print the incident context as JSON.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			var extra []engine.Option
			if at != "" {
				pinned, err := utils.ParseRFC3339(at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				extra = append(extra, engine.WithClock(func() time.Time { return pinned }))
			}
			// Logs go to stderr so stdout stays parseable JSON.
			logger := utils.NewLoggerTo(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.JSON, "secops-investigator")

			a, err := buildApp(cfg, logger, extra...)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ic, err := a.investigator.Investigate(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ic)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate relative time expressions against this RFC3339 instant instead of now")
	return cmd
}
