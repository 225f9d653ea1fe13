package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/peerledger/internal/config"
)

func TestSaveLoadProfilesRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	in := ProfilesConfig{
		Active: "team",
		Profiles: map[string]Profile{
			"team":  {Ledger: "grpc", Addr: "ledger.example.com:9090", Token: "tok_abc", NATSURL: "nats://team:4222"},
			"local": {Ledger: "badger", Addr: "/tmp/fb"},
		},
	}
	if err := saveProfilesConfig(in); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := loadProfilesConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Active != "team" {
		t.Errorf("Active = %q, want %q", got.Active, "team")
	}
	team := got.Profiles["team"]
	if team.Ledger != "grpc" || team.Addr != "ledger.example.com:9090" || team.Token != "tok_abc" || team.NATSURL != "nats://team:4222" {
		t.Errorf("team profile = %+v, wrong values", team)
	}
	if got.Profiles["local"].Addr != "/tmp/fb" {
		t.Errorf("local profile = %+v", got.Profiles["local"])
	}
}

func TestLoadProfilesConfig_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	pc, err := loadProfilesConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pc.Active != "" || len(pc.Profiles) != 0 {
		t.Errorf("expected empty config, got %+v", pc)
	}
	if pc.Profiles == nil {
		t.Error("Profiles map must not be nil")
	}
}

func TestSaveProfilesConfig_Permissions(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := saveProfilesConfig(ProfilesConfig{Profiles: map[string]Profile{}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	path, _ := profilesConfigPath()
	check := func(p string, want os.FileMode) {
		t.Helper()
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if got := info.Mode().Perm(); got != want {
			t.Errorf("%s permissions = %04o, want %04o", p, got, want)
		}
	}
	check(path, 0o600)
	check(filepath.Dir(path), 0o700)
}

func TestProfileLifecycle(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	mustRun := func(fn func() error) {
		t.Helper()
		if err := fn(); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	for _, c := range []*cobra.Command{profileAddCmd, profileUseCmd, profileListCmd, profileShowCmd, profileRemoveCmd} {
		c.SetOut(&buf)
	}

	mustRun(func() error { return profileAddCmd.RunE(profileAddCmd, []string{"local", "memory"}) })
	mustRun(func() error { return profileAddCmd.RunE(profileAddCmd, []string{"local", "memory"}) }) // upsert
	mustRun(func() error { return profileUseCmd.RunE(profileUseCmd, []string{"local"}) })

	pc, _ := loadProfilesConfig()
	if pc.Active != "local" {
		t.Fatalf("Active = %q, want %q", pc.Active, "local")
	}

	buf.Reset()
	mustRun(func() error { return profileListCmd.RunE(profileListCmd, nil) })
	if !strings.Contains(buf.String(), "* local") {
		t.Errorf("list missing active marker; got:\n%s", buf.String())
	}

	buf.Reset()
	mustRun(func() error { return profileShowCmd.RunE(profileShowCmd, nil) })
	out := buf.String()
	if !strings.Contains(out, "local") || !strings.Contains(out, "memory") || !strings.Contains(out, "(active)") {
		t.Errorf("show missing expected content; got:\n%s", out)
	}

	mustRun(func() error { return profileRemoveCmd.RunE(profileRemoveCmd, []string{"local"}) })
	pc, _ = loadProfilesConfig()
	if _, ok := pc.Profiles["local"]; ok {
		t.Error("profile 'local' should be gone")
	}
	if pc.Active != "" {
		t.Errorf("Active should be cleared, got %q", pc.Active)
	}
}

func TestProfileTokenMasked(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := profileAddCmd.Flags().Set("token", "tok_verylongsecret"); err != nil {
		t.Fatalf("set token flag: %v", err)
	}
	t.Cleanup(func() { _ = profileAddCmd.Flags().Set("token", "") })

	var buf bytes.Buffer
	profileAddCmd.SetOut(&buf)
	profileUseCmd.SetOut(&buf)
	if err := profileAddCmd.RunE(profileAddCmd, []string{"team", "grpc"}); err != nil {
		t.Fatal(err)
	}
	if err := profileUseCmd.RunE(profileUseCmd, []string{"team"}); err != nil {
		t.Fatal(err)
	}

	for _, c := range []*cobra.Command{profileListCmd, profileShowCmd} {
		buf.Reset()
		c.SetOut(&buf)
		if err := c.RunE(c, nil); err != nil {
			t.Fatal(err)
		}
		if strings.Contains(buf.String(), "tok_verylongsecret") {
			t.Errorf("%s: full token must not appear", c.Name())
		}
		if !strings.Contains(buf.String(), "tok_very...") {
			t.Errorf("%s: expected masked token; got:\n%s", c.Name(), buf.String())
		}
	}
}

func TestProfileErrorCases(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"add unknown ledger", func() error { return profileAddCmd.RunE(profileAddCmd, []string{"x", "etcd"}) }},
		{"use unknown", func() error { return profileUseCmd.RunE(profileUseCmd, []string{"ghost"}) }},
		{"remove unknown", func() error { return profileRemoveCmd.RunE(profileRemoveCmd, []string{"ghost"}) }},
		{"show no active", func() error { return profileShowCmd.RunE(profileShowCmd, nil) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			if err := tc.fn(); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestApplyProfile(t *testing.T) {
	for _, env := range []string{
		"FEEDBACK_LEDGER", "FEEDBACK_LEDGER_ADDR", "FEEDBACK_DATABASE_URL", "FEEDBACK_BADGER_PATH",
		"FEEDBACK_S3_BUCKET", "FEEDBACK_AUTH_TOKEN", "FEEDBACK_WALLET_KEY", "FEEDBACK_SEAL_KEY", "FEEDBACK_NATS_URL",
	} {
		t.Setenv(env, "")
	}

	tests := []struct {
		name  string
		p     Profile
		check func(*config.Config) bool
	}{
		{"grpc addr", Profile{Ledger: "grpc", Addr: "h:1"}, func(c *config.Config) bool { return c.LedgerAddr == "h:1" }},
		{"postgres url", Profile{Ledger: "postgres", Addr: "postgres://x"}, func(c *config.Config) bool { return c.DatabaseURL == "postgres://x" }},
		{"badger path", Profile{Ledger: "badger", Addr: "/data"}, func(c *config.Config) bool { return c.BadgerPath == "/data" }},
		{"s3 bucket", Profile{Ledger: "s3", Addr: "bkt"}, func(c *config.Config) bool { return c.S3Bucket == "bkt" }},
		{"secrets", Profile{Ledger: "memory", Token: "t", WalletKey: "k.json", SealKey: "s", NATSURL: "nats://n"},
			func(c *config.Config) bool {
				return c.AuthToken == "t" && c.WalletKey == "k.json" && c.SealKey == "s" && c.NATSURL == "nats://n"
			}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := &config.Config{Ledger: config.LedgerMemory}
			applyProfile(c, tc.p)
			if c.Ledger != tc.p.Ledger {
				t.Errorf("Ledger = %q, want %q", c.Ledger, tc.p.Ledger)
			}
			if !tc.check(c) {
				t.Errorf("profile not applied: %+v", c)
			}
		})
	}
}

func TestApplyProfile_EnvWins(t *testing.T) {
	t.Setenv("FEEDBACK_LEDGER", "badger")
	t.Setenv("FEEDBACK_AUTH_TOKEN", "from-env")
	t.Setenv("FEEDBACK_BADGER_PATH", "")

	c := &config.Config{Ledger: config.LedgerBadger, AuthToken: "from-env"}
	applyProfile(c, Profile{Ledger: "grpc", Addr: "/profile/path", Token: "from-profile"})

	if c.Ledger != config.LedgerBadger {
		t.Errorf("Ledger = %q, want env value", c.Ledger)
	}
	if c.AuthToken != "from-env" {
		t.Errorf("AuthToken = %q, want env value", c.AuthToken)
	}
	if c.BadgerPath != "/profile/path" {
		t.Errorf("BadgerPath = %q, want profile addr mapped to the env-selected backend", c.BadgerPath)
	}
}

func TestMask(t *testing.T) {
	if got := mask("abc", 8); got != "abc" {
		t.Errorf("mask short = %q", got)
	}
	if got := mask("abcdefghij", 4); got != "abcd..." {
		t.Errorf("mask long = %q", got)
	}
}
