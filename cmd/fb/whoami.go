package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/peerledger/internal/client"
)

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	Short:   "Show the wallet account and ledger in use",
	GroupID: "ledger",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.ServerURL != "" {
			return whoamiRemote(cmd)
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			info := map[string]any{
				"account":   a.session.Account(),
				"can_write": a.store.CanWrite(),
				"ledger":    cfg.Ledger,
				"index":     a.store.IndexKey(),
				"sealed":    a.box != nil,
				"available": a.store.Available(ctx),
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), info)
			}
			account := a.session.Account()
			if account == "" {
				account = "(anonymous; read-only)"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Account:   %s\n", account)
			fmt.Fprintf(out, "Ledger:    %s (available: %t)\n", cfg.Ledger, info["available"])
			fmt.Fprintf(out, "Index:     %s\n", a.store.IndexKey())
			fmt.Fprintf(out, "Seal key:  %t\n", a.box != nil)
			return nil
		})
	},
}

// whoamiRemote reports the account a server signs with.
func whoamiRemote(cmd *cobra.Command) error {
	h, err := client.NewHTTPClient(cfg.ServerURL, cfg.AuthToken).Health(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"account":   h.Identity,
			"can_write": h.CanWrite,
			"server":    cfg.ServerURL,
			"available": h.Ledger == "ok",
		})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Account:   %s (signed by server)\n", h.Identity)
	fmt.Fprintf(out, "Server:    %s (ledger: %s)\n", cfg.ServerURL, h.Ledger)
	fmt.Fprintf(out, "Writable:  %t\n", h.CanWrite)
	return nil
}
