package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/peerledger/internal/events"
	"github.com/alfredjeanlab/peerledger/internal/model"
	"github.com/alfredjeanlab/peerledger/internal/query"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Print new feedback records as they appear",
	GroupID: "feedback",
	Long: `watch lists matching records, then prints each new one as it is indexed.
With FEEDBACK_NATS_URL set it re-reads the ledger when the store publishes an
event; otherwise it polls.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}
		filter.Limit = 0
		interval, _ := cmd.Flags().GetDuration("interval")
		once, _ := cmd.Flags().GetBool("once")

		return withRecords(cmd, func(ctx context.Context, r feedbackStore) error {
			w := &watcher{cmd: cmd, records: r, filter: filter, seen: make(map[string]bool)}
			if err := w.poll(ctx); err != nil {
				return err
			}
			if once {
				return nil
			}
			if cfg.NATSURL != "" {
				return w.watchNATS(ctx, cfg.NATSURL)
			}
			return w.watchPoll(ctx, interval)
		})
	},
}

type watcher struct {
	cmd     *cobra.Command
	records feedbackStore
	filter  model.RecordFilter
	seen    map[string]bool
}

// watchNATS re-reads on every store event, debounced, and immediately after
// a reconnect in case events were missed.
func (w *watcher) watchNATS(ctx context.Context, url string) error {
	reconnectCh := make(chan struct{}, 1)
	sub, err := events.NewNATSSubscriber(url,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
			select {
			case reconnectCh <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()
	return w.follow(ctx, sub, reconnectCh, 200*time.Millisecond)
}

// follow re-polls after each burst of events on sub settles for debounce.
func (w *watcher) follow(ctx context.Context, sub events.Subscriber, reconnectCh <-chan struct{}, debounce time.Duration) error {
	ch, cancel, err := sub.Subscribe(events.TopicAll)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			timer.Reset(debounce)
		case <-reconnectCh:
			timer.Reset(0)
		case <-timer.C:
			if err := w.poll(ctx); err != nil {
				return err
			}
		}
	}
}

func (w *watcher) watchPoll(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := w.poll(ctx); err != nil {
			return err
		}
	}
}

func (w *watcher) poll(ctx context.Context) error {
	records, err := w.records.ListAll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	fresh := diffRecords(query.Apply(records, w.filter), w.seen)
	if len(fresh) == 0 {
		return nil
	}
	if jsonOutput {
		return printJSON(w.cmd.OutOrStdout(), fresh)
	}
	printRecordTable(w.cmd.OutOrStdout(), fresh, len(w.seen))
	return nil
}

// diffRecords returns the records not yet in seen and marks them seen.
// Records never change once written, so the id alone identifies news.
func diffRecords(records []*model.Record, seen map[string]bool) []*model.Record {
	var fresh []*model.Record
	for _, r := range records {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		fresh = append(fresh, r)
	}
	return fresh
}

func init() {
	addFilterFlags(watchCmd, true)
	watchCmd.Flags().Duration("interval", 5*time.Second, "polling interval without NATS")
	watchCmd.Flags().Bool("once", false, "exit after the first listing")
}
