package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/alfredjeanlab/peerledger/internal/config"
	"github.com/alfredjeanlab/peerledger/internal/ledger/grpcledger"
	"github.com/alfredjeanlab/peerledger/internal/metrics"
	"github.com/alfredjeanlab/peerledger/internal/server"
	fbsync "github.com/alfredjeanlab/peerledger/internal/sync"
	"github.com/alfredjeanlab/peerledger/internal/wallet"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Serve the ledger over gRPC and the record store over HTTP",
	GroupID: "system",
	Long: `serve opens the configured ledger and exposes it three ways:

  gRPC  (FEEDBACK_GRPC_ADDR)     the raw ledger, for 'fb --ledger grpc' clients
  HTTP  (FEEDBACK_HTTP_ADDR)     the record API and event stream
  metrics (FEEDBACK_METRICS_ADDR) Prometheus metrics

With FEEDBACK_SYNC_INTERVAL set it also snapshots the store to S3 or git.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Ledger == config.LedgerGRPC {
			return errors.New("serve needs a local ledger; the grpc backend would serve itself")
		}
		ctx := cmd.Context()

		backend, err := openBackend(ctx, cfg)
		if err != nil {
			return fmt.Errorf("opening %s ledger: %w", cfg.Ledger, err)
		}
		a, err := newApp(backend, cfg)
		if err != nil {
			backend.Close()
			return err
		}
		defer a.Close()

		// Store events reach SSE clients as well as NATS.
		bc := server.NewBroadcaster(a.publisher)
		a.store = a.newStore(cfg, bc)

		// gRPC ledger.
		var grpcOpts []grpc.ServerOption
		if cfg.AuthToken != "" {
			grpcOpts = append(grpcOpts, grpc.ChainUnaryInterceptor(grpcledger.AuthInterceptor(cfg.AuthToken)))
		}
		grpcServer := grpcledger.NewGRPCServer(&grpcledger.Server{
			Backend: backend,
			Verify:  wallet.Verify,
		}, grpcOpts...)
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		go func() {
			logger.Info("gRPC ledger listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		// HTTP API.
		var dec server.Decrypter
		if a.box != nil {
			dec = a.box
		} else {
			logger.Info("no seal key; reveal requests will be refused")
		}
		fs := server.New(a.store, dec, bc, logger)
		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           fs.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Metrics.
		var metricsServer *http.Server
		if cfg.MetricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				logger.Info("metrics listening", "addr", cfg.MetricsAddr)
				if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics server error", "err", err)
				}
			}()
		}

		scheduler := newSyncScheduler(ctx, a)
		if scheduler != nil {
			scheduler.Start()
			logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
		}

		logger.Info("peerledger server started",
			"ledger", cfg.Ledger,
			"account", a.session.Account(),
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
		)

		<-ctx.Done()
		logger.Info("shutting down")

		if scheduler != nil {
			scheduler.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown error", "err", err)
			}
		}
		grpcServer.GracefulStop()

		logger.Info("shutdown complete")
		return nil
	},
}

// newSyncScheduler returns nil when syncing is off or no destination is
// configured.
func newSyncScheduler(ctx context.Context, a *app) *fbsync.Scheduler {
	if cfg.SyncInterval <= 0 {
		return nil
	}
	var dests []fbsync.Destination
	if cfg.SyncS3Bucket != "" {
		d, err := fbsync.NewS3Destination(ctx, cfg.SyncS3Bucket, cfg.SyncS3Key, cfg.SyncS3Region, cfg.SyncS3Endpoint)
		if err != nil {
			logger.Error("S3 sync destination disabled", "err", err)
		} else {
			dests = append(dests, d)
			logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
		}
	}
	if cfg.SyncGitRepo != "" {
		dests = append(dests, fbsync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch))
		logger.Info("sync git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
	}
	if len(dests) == 0 {
		logger.Warn("FEEDBACK_SYNC_INTERVAL set but no sync destination configured")
		return nil
	}
	return fbsync.NewScheduler(a.store, dests, cfg.SyncInterval, logger)
}
