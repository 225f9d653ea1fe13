package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/peerledger/internal/model"
	"github.com/alfredjeanlab/peerledger/internal/query"
	"github.com/alfredjeanlab/peerledger/internal/store"
	"github.com/alfredjeanlab/peerledger/internal/ui"
)

// Exit codes by failure class, so scripts can tell retryable failures apart.
const (
	exitError    = 1
	exitInput    = 2
	exitWallet   = 3
	exitLedger   = 4
	exitOrphaned = 5
	exitNotFound = 6
)

func exitCode(err error) int {
	switch store.Classify(err) {
	case store.FailureInput:
		return exitInput
	case store.FailureWallet:
		return exitWallet
	case store.FailureLedger:
		return exitLedger
	case store.FailureOrphaned:
		return exitOrphaned
	case store.FailureNotFound:
		return exitNotFound
	default:
		return exitError
	}
}

// hint suggests what to do about err, or "".
func hint(err error) string {
	var idxErr *store.IndexAppendError
	switch {
	case errors.As(err, &idxErr):
		return "the record is saved but not listed yet; run 'fb orphans --repair' to index it"
	}
	switch store.Classify(err) {
	case store.FailureWallet:
		return "pass --key or set FEEDBACK_WALLET_KEY; create one with 'fb keygen'"
	case store.FailureLedger:
		return "the ledger did not answer; try again"
	}
	return ""
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func formatTime(unix int64) string {
	return time.Unix(unix, 0).Local().Format("2006-01-02 15:04")
}

func printRecord(w io.Writer, r *model.Record, p *model.Payload) {
	fmt.Fprintf(w, "ID:        %s\n", r.ID)
	fmt.Fprintf(w, "Created:   %s\n", formatTime(r.CreatedAt))
	fmt.Fprintf(w, "Reviewer:  %s\n", r.Reviewer)
	fmt.Fprintf(w, "Reviewee:  %s\n", r.Reviewee)
	fmt.Fprintf(w, "Category:  %s\n", ui.RenderCategory(r.Category))
	if r.ProjectID != "" {
		fmt.Fprintf(w, "Project:   %s\n", r.ProjectID)
	}
	if p == nil {
		fmt.Fprintf(w, "Comment:   %s\n", ui.RenderMuted("(sealed; use --reveal)"))
		return
	}
	fmt.Fprintf(w, "Comment:   %s\n", p.Comment)
}

func printRecordTable(w io.Writer, records []*model.Record, total int) {
	width := ui.Width(120)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tCATEGORY\tREVIEWER\tREVIEWEE\tPROJECT")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			formatTime(r.CreatedAt),
			ui.RenderCategory(r.Category),
			ui.Truncate(r.Reviewer, 14),
			ui.Truncate(r.Reviewee, max(14, width/6)),
			ui.Truncate(r.ProjectID, 20),
		)
	}
	tw.Flush()
	fmt.Fprintln(w, ui.RenderMuted(fmt.Sprintf("\n%d records (%d matching)", len(records), total)))
}

func printStats(w io.Writer, s query.Stats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range model.Categories {
		fmt.Fprintf(tw, "%s\t%d\n", ui.RenderCategory(c), s.ByCategory[c])
	}
	fmt.Fprintf(tw, "%s\t%d\n", ui.RenderAccent("total"), s.Total)
	tw.Flush()
}
