package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Ledger backends.
const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
	LedgerBadger   = "badger"
	LedgerS3       = "s3"
	LedgerGRPC     = "grpc"
)

// Backends lists every supported FEEDBACK_LEDGER value.
var Backends = []string{LedgerMemory, LedgerPostgres, LedgerBadger, LedgerS3, LedgerGRPC}

type Config struct {
	Ledger        string        // FEEDBACK_LEDGER (default "grpc")
	LedgerAddr    string        // FEEDBACK_LEDGER_ADDR (default "localhost:9090"; grpc backend)
	LedgerTimeout time.Duration // FEEDBACK_LEDGER_TIMEOUT (default 10s)

	DatabaseURL string // FEEDBACK_DATABASE_URL (required for postgres)
	BadgerPath  string // FEEDBACK_BADGER_PATH (required for badger)
	S3Bucket    string // FEEDBACK_S3_BUCKET (required for s3)
	S3Region    string // FEEDBACK_S3_REGION (default "us-east-1")
	S3Endpoint  string // FEEDBACK_S3_ENDPOINT (custom endpoint for MinIO)
	S3Prefix    string // FEEDBACK_S3_PREFIX (default "ledger/")

	IndexKey         string // FEEDBACK_INDEX_KEY (default "index:records")
	IndexMaxAttempts int    // FEEDBACK_INDEX_MAX_ATTEMPTS (default 3)

	WalletKey string // FEEDBACK_WALLET_KEY (key file path; empty = read-only session)
	SealKey   string // FEEDBACK_SEAL_KEY (base64 32-byte key)

	ServerURL string // FEEDBACK_SERVER_URL (route record commands through a running `fb serve`)

	AuthToken   string // FEEDBACK_AUTH_TOKEN (bearer token for the HTTP and gRPC servers; empty = open)
	NATSURL     string // FEEDBACK_NATS_URL (optional, empty = no events)
	GRPCAddr    string // FEEDBACK_GRPC_ADDR (default ":9090")
	HTTPAddr    string // FEEDBACK_HTTP_ADDR (default ":8080")
	MetricsAddr string // FEEDBACK_METRICS_ADDR (default ":9100"; empty = disabled)
	LogLevel    string // FEEDBACK_LOG_LEVEL (default "info")

	// Sync settings
	SyncInterval   time.Duration // FEEDBACK_SYNC_INTERVAL (default 0 = disabled)
	SyncS3Bucket   string        // FEEDBACK_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // FEEDBACK_SYNC_S3_ENDPOINT
	SyncS3Region   string        // FEEDBACK_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // FEEDBACK_SYNC_S3_KEY (default "peerledger/snapshot.jsonl")
	SyncGitRepo    string        // FEEDBACK_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // FEEDBACK_SYNC_GIT_FILE (default "feedback.jsonl")
	SyncGitBranch  string        // FEEDBACK_SYNC_GIT_BRANCH (default "main")
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	c, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// FromEnv reads the environment without validating backend requirements, so
// callers can layer profiles and flags on top before calling Validate.
func FromEnv() (*Config, error) {
	c := &Config{
		Ledger:         strings.ToLower(envOrDefault("FEEDBACK_LEDGER", LedgerGRPC)),
		LedgerAddr:     envOrDefault("FEEDBACK_LEDGER_ADDR", "localhost:9090"),
		DatabaseURL:    os.Getenv("FEEDBACK_DATABASE_URL"),
		BadgerPath:     os.Getenv("FEEDBACK_BADGER_PATH"),
		S3Bucket:       os.Getenv("FEEDBACK_S3_BUCKET"),
		S3Region:       envOrDefault("FEEDBACK_S3_REGION", "us-east-1"),
		S3Endpoint:     os.Getenv("FEEDBACK_S3_ENDPOINT"),
		S3Prefix:       envOrDefault("FEEDBACK_S3_PREFIX", "ledger/"),
		IndexKey:       envOrDefault("FEEDBACK_INDEX_KEY", "index:records"),
		WalletKey:      os.Getenv("FEEDBACK_WALLET_KEY"),
		SealKey:        os.Getenv("FEEDBACK_SEAL_KEY"),
		ServerURL:      os.Getenv("FEEDBACK_SERVER_URL"),
		AuthToken:      os.Getenv("FEEDBACK_AUTH_TOKEN"),
		NATSURL:        os.Getenv("FEEDBACK_NATS_URL"),
		GRPCAddr:       envOrDefault("FEEDBACK_GRPC_ADDR", ":9090"),
		HTTPAddr:       envOrDefault("FEEDBACK_HTTP_ADDR", ":8080"),
		MetricsAddr:    envOrDefault("FEEDBACK_METRICS_ADDR", ":9100"),
		LogLevel:       envOrDefault("FEEDBACK_LOG_LEVEL", "info"),
		SyncS3Bucket:   os.Getenv("FEEDBACK_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("FEEDBACK_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("FEEDBACK_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("FEEDBACK_SYNC_S3_KEY", "peerledger/snapshot.jsonl"),
		SyncGitRepo:    os.Getenv("FEEDBACK_SYNC_GIT_REPO"),
		SyncGitFile:    envOrDefault("FEEDBACK_SYNC_GIT_FILE", "feedback.jsonl"),
		SyncGitBranch:  envOrDefault("FEEDBACK_SYNC_GIT_BRANCH", "main"),
	}

	var err error
	if c.LedgerTimeout, err = durationEnv("FEEDBACK_LEDGER_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if c.SyncInterval, err = durationEnv("FEEDBACK_SYNC_INTERVAL", "0"); err != nil {
		return nil, err
	}
	attempts := envOrDefault("FEEDBACK_INDEX_MAX_ATTEMPTS", "3")
	if c.IndexMaxAttempts, err = strconv.Atoi(attempts); err != nil {
		return nil, fmt.Errorf("FEEDBACK_INDEX_MAX_ATTEMPTS: %w", err)
	}
	return c, nil
}

// Validate checks that the selected backend has what it needs. Callers that
// override fields after Load (command-line flags) call it again.
func (c *Config) Validate() error {
	switch c.Ledger {
	case LedgerMemory:
	case LedgerGRPC:
		if c.LedgerAddr == "" {
			return fmt.Errorf("FEEDBACK_LEDGER_ADDR is required for the grpc ledger")
		}
	case LedgerPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("FEEDBACK_DATABASE_URL is required for the postgres ledger")
		}
	case LedgerBadger:
		if c.BadgerPath == "" {
			return fmt.Errorf("FEEDBACK_BADGER_PATH is required for the badger ledger")
		}
	case LedgerS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("FEEDBACK_S3_BUCKET is required for the s3 ledger")
		}
	default:
		return fmt.Errorf("FEEDBACK_LEDGER: unknown backend %q (want one of %s)", c.Ledger, strings.Join(Backends, ", "))
	}
	if c.LedgerTimeout <= 0 {
		return fmt.Errorf("FEEDBACK_LEDGER_TIMEOUT must be positive")
	}
	if c.IndexMaxAttempts < 1 {
		return fmt.Errorf("FEEDBACK_INDEX_MAX_ATTEMPTS must be at least 1")
	}
	if c.IndexKey == "" {
		return fmt.Errorf("FEEDBACK_INDEX_KEY must not be empty")
	}
	if c.SyncInterval < 0 {
		return fmt.Errorf("FEEDBACK_SYNC_INTERVAL must not be negative")
	}
	return nil
}

func durationEnv(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
