package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/peerledger/internal/model"
)

var showCmd = &cobra.Command{
	Use:     "show <id>",
	Short:   "Show a feedback record",
	GroupID: "feedback",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reveal, _ := cmd.Flags().GetBool("reveal")
		return withRecords(cmd, func(ctx context.Context, r feedbackStore) error {
			var (
				rec     *model.Record
				payload *model.Payload
				err     error
			)
			if reveal {
				rec, payload, err = r.Reveal(ctx, args[0])
			} else {
				rec, err = r.Get(ctx, args[0])
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				if payload == nil {
					return printJSON(cmd.OutOrStdout(), rec)
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"record": rec, "payload": payload})
			}
			printRecord(cmd.OutOrStdout(), rec, payload)
			return nil
		})
	},
}

func init() {
	showCmd.Flags().Bool("reveal", false, "decrypt the comment with the seal key")
}
