package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/peerledger/internal/query"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Count records by category",
	GroupID: "feedback",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}
		filter.Limit = 0
		return withRecords(cmd, func(ctx context.Context, r feedbackStore) error {
			records, err := r.ListAll(ctx)
			if err != nil {
				return err
			}
			stats := query.Summarize(query.Apply(records, filter))
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		})
	},
}

func init() {
	addFilterFlags(statsCmd, true)
}
