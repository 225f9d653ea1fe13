package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/peerledger/internal/client"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check that the ledger (or --server) answers",
	GroupID: "ledger",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.ServerURL != "" {
			return reportHealth(cmd, "server "+cfg.ServerURL, func(ctx context.Context) error {
				h, err := client.NewHTTPClient(cfg.ServerURL, cfg.AuthToken).Health(ctx)
				if err == nil && h.Ledger != "ok" {
					err = fmt.Errorf("server ledger %s", h.Ledger)
				}
				return err
			})
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return reportHealth(cmd, "ledger "+cfg.Ledger, a.backend.Ping)
		})
	},
}

func reportHealth(cmd *cobra.Command, target string, ping func(context.Context) error) error {
	start := time.Now()
	err := ping(cmd.Context())
	latency := time.Since(start)
	status := "ok"
	if err != nil {
		status = err.Error()
	}

	if jsonOutput {
		if perr := printJSON(cmd.OutOrStdout(), map[string]string{
			"status":  status,
			"target":  target,
			"latency": latency.String(),
		}); perr != nil {
			return perr
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", target, status, latency.Round(time.Millisecond))
	}
	if err != nil {
		return fmt.Errorf("unhealthy: %w", err)
	}
	return nil
}
