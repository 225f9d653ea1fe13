package main

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/peerledger/internal/config"
)

// ProfilesConfig holds all named profiles and tracks which one is active.
type ProfilesConfig struct {
	Active   string             `toml:"active"`
	Profiles map[string]Profile `toml:"profiles"`
}

// Profile is a named ledger connection: which backend to use and how to
// sign for it. Addr is backend specific: the service address for grpc, the
// database URL for postgres, the data directory for badger, the bucket for s3.
type Profile struct {
	Ledger    string `toml:"ledger"`
	Addr      string `toml:"addr,omitempty"`
	Token     string `toml:"token,omitempty"`
	WalletKey string `toml:"wallet_key,omitempty"`
	SealKey   string `toml:"seal_key,omitempty"`
	NATSURL   string `toml:"nats_url,omitempty"`
}

func profilesConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".local", "state", "peerledger")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "profiles.toml"), nil
}

func loadProfilesConfig() (ProfilesConfig, error) {
	path, err := profilesConfigPath()
	if err != nil {
		return ProfilesConfig{}, err
	}
	var pc ProfilesConfig
	if _, err := toml.DecodeFile(path, &pc); err != nil {
		if os.IsNotExist(err) {
			return ProfilesConfig{Profiles: map[string]Profile{}}, nil
		}
		return ProfilesConfig{}, err
	}
	if pc.Profiles == nil {
		pc.Profiles = map[string]Profile{}
	}
	return pc, nil
}

func saveProfilesConfig(pc ProfilesConfig) error {
	path, err := profilesConfigPath()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(pc)
}

// applyProfile fills c from p. Values set explicitly in the environment win
// over the profile.
func applyProfile(c *config.Config, p Profile) {
	set := func(env string, dst *string, v string) {
		if v != "" && os.Getenv(env) == "" {
			*dst = v
		}
	}
	set("FEEDBACK_LEDGER", &c.Ledger, p.Ledger)
	switch c.Ledger {
	case config.LedgerGRPC:
		set("FEEDBACK_LEDGER_ADDR", &c.LedgerAddr, p.Addr)
	case config.LedgerPostgres:
		set("FEEDBACK_DATABASE_URL", &c.DatabaseURL, p.Addr)
	case config.LedgerBadger:
		set("FEEDBACK_BADGER_PATH", &c.BadgerPath, p.Addr)
	case config.LedgerS3:
		set("FEEDBACK_S3_BUCKET", &c.S3Bucket, p.Addr)
	}
	set("FEEDBACK_AUTH_TOKEN", &c.AuthToken, p.Token)
	set("FEEDBACK_WALLET_KEY", &c.WalletKey, p.WalletKey)
	set("FEEDBACK_SEAL_KEY", &c.SealKey, p.SealKey)
	set("FEEDBACK_NATS_URL", &c.NATSURL, p.NATSURL)
}

// mask shows the first n characters of a secret.
func mask(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
