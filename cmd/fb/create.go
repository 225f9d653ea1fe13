package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/peerledger/internal/model"
	"github.com/alfredjeanlab/peerledger/internal/store"
	"github.com/alfredjeanlab/peerledger/internal/ui"
)

var createCmd = &cobra.Command{
	Use:     "create",
	Short:   "Record confidential feedback about a peer",
	GroupID: "feedback",
	Example: `  fb create --reviewee 0xbb... --category technical --project P1 --comment "clear design docs"
  echo "long comment" | fb create --reviewee 0xbb... --category communication --comment -`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := createInputFromFlags(cmd)
		if err != nil {
			return err
		}
		return withRecords(cmd, func(ctx context.Context, r feedbackStore) error {
			rec, err := r.Create(ctx, in)
			var idxErr *store.IndexAppendError
			if err != nil && !errors.As(err, &idxErr) {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if perr := printJSON(out, rec); perr != nil {
					return perr
				}
			} else {
				fmt.Fprintf(out, "Recorded %s (%s about %s)\n", ui.RenderAccent(rec.ID), ui.RenderCategory(rec.Category), rec.Reviewee)
			}
			if idxErr != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ui.RenderWarn("warning: record written but not indexed"))
			}
			return err
		})
	},
}

func createInputFromFlags(cmd *cobra.Command) (model.CreateInput, error) {
	reviewee, _ := cmd.Flags().GetString("reviewee")
	category, _ := cmd.Flags().GetString("category")
	project, _ := cmd.Flags().GetString("project")
	comment, _ := cmd.Flags().GetString("comment")

	if comment == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return model.CreateInput{}, fmt.Errorf("reading comment from stdin: %w", err)
		}
		comment = strings.TrimRight(string(b), "\n")
	}
	return model.CreateInput{
		Reviewee:  reviewee,
		Category:  model.Category(strings.ToLower(category)),
		ProjectID: project,
		Comment:   comment,
	}, nil
}

func init() {
	createCmd.Flags().String("reviewee", "", "account the feedback is about (required)")
	createCmd.Flags().String("category", "", "collaboration, communication, or technical (required)")
	createCmd.Flags().String("project", "", "project identifier")
	createCmd.Flags().String("comment", "", "feedback text, or - to read stdin (required)")
}
