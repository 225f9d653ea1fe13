package main

import (
	"context"
	"fmt"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/peerledger/internal/model"
	"github.com/alfredjeanlab/peerledger/internal/query"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List feedback records, newest first",
	GroupID: "feedback",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}
		return withRecords(cmd, func(ctx context.Context, r feedbackStore) error {
			records, err := r.ListAll(ctx)
			if err != nil {
				return err
			}
			return printFiltered(cmd, records, filter)
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:     "refresh",
	Short:   "Re-read every record from the ledger",
	GroupID: "feedback",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}
		return withRecords(cmd, func(ctx context.Context, r feedbackStore) error {
			if !r.Available(ctx) {
				logger.Warn("ledger unavailable; showing no records")
			}
			records, err := r.Refresh(ctx)
			if err != nil {
				return err
			}
			return printFiltered(cmd, records, filter)
		})
	},
}

var searchCmd = &cobra.Command{
	Use:     "search <term>",
	Short:   "Find records by reviewee or project",
	GroupID: "feedback",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}
		filter.Search = args[0]
		return withRecords(cmd, func(ctx context.Context, r feedbackStore) error {
			records, err := r.ListAll(ctx)
			if err != nil {
				return err
			}
			return printFiltered(cmd, records, filter)
		})
	},
}

func printFiltered(cmd *cobra.Command, records []*model.Record, filter model.RecordFilter) error {
	unpaged := filter
	unpaged.Limit, unpaged.Offset = 0, 0
	total := len(query.Apply(records, unpaged))
	matched := query.Apply(records, filter)

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), matched)
	}
	printRecordTable(cmd.OutOrStdout(), matched, total)
	return nil
}

func addFilterFlags(cmd *cobra.Command, withSearch bool) {
	if withSearch {
		cmd.Flags().StringP("search", "s", "", "match reviewee or project (case-insensitive)")
	}
	cmd.Flags().StringP("category", "c", "all", "collaboration, communication, technical, or all")
	cmd.Flags().String("reviewer", "", "only records written by this account")
	cmd.Flags().String("since", "", "only records created at or after this time (e.g. 2024-03-01, \"3/1/2024 14:00\")")
	cmd.Flags().IntP("limit", "n", 0, "maximum records to show (0 = all)")
}

func filterFromFlags(cmd *cobra.Command) (model.RecordFilter, error) {
	var f model.RecordFilter
	if cmd.Flags().Lookup("search") != nil {
		f.Search, _ = cmd.Flags().GetString("search")
	}
	f.Category, _ = cmd.Flags().GetString("category")
	f.Reviewer, _ = cmd.Flags().GetString("reviewer")
	f.Limit, _ = cmd.Flags().GetInt("limit")

	if f.Category != model.CategoryAll && f.Category != "" && !model.Category(f.Category).IsValid() {
		return f, fmt.Errorf("unknown category %q", f.Category)
	}
	if f.Limit < 0 {
		return f, fmt.Errorf("--limit must not be negative")
	}
	if since, _ := cmd.Flags().GetString("since"); since != "" {
		t, err := dateparse.ParseLocal(since)
		if err != nil {
			return f, fmt.Errorf("--since: %w", err)
		}
		f.Since = t
	}
	return f, nil
}

func init() {
	addFilterFlags(listCmd, true)
	addFilterFlags(refreshCmd, true)
	addFilterFlags(searchCmd, false)
}
