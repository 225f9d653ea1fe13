package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/peerledger/internal/idgen"
	"github.com/alfredjeanlab/peerledger/internal/ui"
)

var orphansCmd = &cobra.Command{
	Use:     "orphans",
	Short:   "Find records written to the ledger but missing from the index",
	GroupID: "ledger",
	Long: `Concurrent writers can overwrite each other's index update, leaving a
record in the ledger that no listing shows. orphans finds such records by
scanning the ledger's record keys (where the backend can list them) and
comparing against the index. With --repair each orphan is appended to the
index again; this requires a wallet key.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repair, _ := cmd.Flags().GetBool("repair")
		return withRecords(cmd, func(ctx context.Context, r feedbackStore) error {
			orphans, err := r.Orphans(ctx)
			if err != nil {
				return err
			}

			var repaired []string
			if repair && len(orphans) > 0 {
				if repaired, err = r.Repair(ctx, orphans); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, map[string]any{"orphans": nonNil(orphans), "repaired": nonNil(repaired)})
			}
			if len(orphans) == 0 {
				fmt.Fprintln(out, "no orphaned records")
				return nil
			}
			for _, id := range orphans {
				if at, err := idgen.Time(id); err == nil {
					fmt.Fprintf(out, "%s  %s\n", id, ui.RenderMuted("written "+at.Local().Format("2006-01-02 15:04")))
					continue
				}
				fmt.Fprintln(out, id)
			}
			switch {
			case repair:
				fmt.Fprintln(out, ui.RenderAccent(fmt.Sprintf("%d of %d re-indexed", len(repaired), len(orphans))))
			default:
				fmt.Fprintln(out, ui.RenderMuted(fmt.Sprintf("%d orphaned; run with --repair to re-index", len(orphans))))
			}
			return nil
		})
	},
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func init() {
	orphansCmd.Flags().Bool("repair", false, "append every orphan to the index")
}
