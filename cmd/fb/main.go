package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/peerledger/internal/config"
	"github.com/alfredjeanlab/peerledger/internal/ui"
)

var (
	ledgerFlag  string
	addrFlag    string
	serverFlag  string
	profileFlag string
	keyFlag     string
	tokenFlag   string
	logLevel    string
	jsonOutput  bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "fb <command>",
	Short:         "Confidential peer feedback on a shared ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		cfg = c
		logger = newLogger(cfg.LogLevel)
		slog.SetDefault(logger)
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		return nil
	},
}

// resolveConfig layers environment, active profile, and flags, in that
// order of increasing precedence.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	c, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	profiles, err := loadProfilesConfig()
	if err != nil {
		return nil, fmt.Errorf("loading profiles: %w", err)
	}
	name := profiles.Active
	if profileFlag != "" {
		name = profileFlag
	}
	if name != "" {
		p, ok := profiles.Profiles[name]
		if !ok {
			return nil, fmt.Errorf("profile %q not found", name)
		}
		applyProfile(c, p)
	}

	flags := cmd.Flags()
	if flags.Changed("ledger") {
		c.Ledger = strings.ToLower(ledgerFlag)
	}
	if flags.Changed("ledger-addr") {
		c.LedgerAddr = addrFlag
	}
	if flags.Changed("server") {
		c.ServerURL = serverFlag
	}
	if flags.Changed("key") {
		c.WalletKey = keyFlag
	}
	if flags.Changed("token") {
		c.AuthToken = tokenFlag
	}
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}
	return c, c.Validate()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&ledgerFlag, "ledger", "", "ledger backend ("+strings.Join(config.Backends, ", ")+")")
	pf.StringVar(&addrFlag, "ledger-addr", "", "ledger service address (grpc backend)")
	pf.StringVar(&serverFlag, "server", "", "send record commands to this fb serve HTTP endpoint")
	pf.StringVar(&profileFlag, "profile", "", "named profile to use instead of the active one")
	pf.StringVar(&keyFlag, "key", "", "wallet key file used to sign writes")
	pf.StringVar(&tokenFlag, "token", "", "bearer token for the ledger service")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "feedback", Title: "Feedback:"},
		&cobra.Group{ID: "ledger", Title: "Ledger:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Feedback
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(watchCmd)

	// Ledger
	rootCmd.AddCommand(orphansCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(healthCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(profileCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderError("Error:"), err)
		if h := hint(err); h != "" {
			fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderMuted("hint:"), h)
		}
		os.Exit(exitCode(err))
	}
}

// withApp opens the ledger for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
