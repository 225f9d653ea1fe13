package main

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/peerledger/internal/config"
)

var profileCmd = &cobra.Command{
	Use:     "profile",
	Short:   "Manage named ledger profiles",
	GroupID: "system",
	// Profiles are local file operations; skip config resolution so a broken
	// profile can still be fixed.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var profileAddCmd = &cobra.Command{
	Use:   "add <name> <ledger>",
	Short: "Add or update a named profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, backend := args[0], args[1]
		if !slices.Contains(config.Backends, backend) {
			return fmt.Errorf("unknown ledger %q", backend)
		}
		addr, _ := cmd.Flags().GetString("addr")
		token, _ := cmd.Flags().GetString("token")
		walletKey, _ := cmd.Flags().GetString("wallet-key")
		sealKey, _ := cmd.Flags().GetString("seal-key")
		natsURL, _ := cmd.Flags().GetString("nats")

		pc, err := loadProfilesConfig()
		if err != nil {
			return err
		}
		pc.Profiles[name] = Profile{
			Ledger:    backend,
			Addr:      addr,
			Token:     token,
			WalletKey: walletKey,
			SealKey:   sealKey,
			NATSURL:   natsURL,
		}
		if err := saveProfilesConfig(pc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "profile %q saved (%s)\n", name, backend)
		return nil
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a named profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		pc, err := loadProfilesConfig()
		if err != nil {
			return err
		}
		if _, ok := pc.Profiles[name]; !ok {
			return fmt.Errorf("profile %q not found", name)
		}
		delete(pc.Profiles, name)
		if pc.Active == name {
			pc.Active = ""
		}
		if err := saveProfilesConfig(pc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "profile %q removed\n", name)
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pc, err := loadProfilesConfig()
		if err != nil {
			return err
		}
		if len(pc.Profiles) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no profiles configured")
			return nil
		}
		names := make([]string, 0, len(pc.Profiles))
		for name := range pc.Profiles {
			names = append(names, name)
		}
		slices.Sort(names)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tLEDGER\tADDR\tTOKEN")
		for _, name := range names {
			p := pc.Profiles[name]
			marker := "  "
			if name == pc.Active {
				marker = "* "
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\n", marker, name, p.Ledger, p.Addr, mask(p.Token, 8))
		}
		return w.Flush()
	},
}

var profileUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the active profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		pc, err := loadProfilesConfig()
		if err != nil {
			return err
		}
		if _, ok := pc.Profiles[name]; !ok {
			return fmt.Errorf("profile %q not found", name)
		}
		pc.Active = name
		if err := saveProfilesConfig(pc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "active profile set to %q\n", name)
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show [<name>]",
	Short: "Show a profile (defaults to active)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pc, err := loadProfilesConfig()
		if err != nil {
			return err
		}
		name := pc.Active
		if len(args) == 1 {
			name = args[0]
		}
		if name == "" {
			return fmt.Errorf("no active profile; specify a name or run 'fb profile use <name>'")
		}
		p, ok := pc.Profiles[name]
		if !ok {
			return fmt.Errorf("profile %q not found", name)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		active := ""
		if name == pc.Active {
			active = " (active)"
		}
		fmt.Fprintf(w, "name:\t%s%s\n", name, active)
		fmt.Fprintf(w, "ledger:\t%s\n", p.Ledger)
		if p.Addr != "" {
			fmt.Fprintf(w, "addr:\t%s\n", p.Addr)
		}
		if p.Token != "" {
			fmt.Fprintf(w, "token:\t%s\n", mask(p.Token, 8))
		}
		if p.WalletKey != "" {
			fmt.Fprintf(w, "wallet_key:\t%s\n", p.WalletKey)
		}
		if p.SealKey != "" {
			fmt.Fprintf(w, "seal_key:\t%s\n", mask(p.SealKey, 4))
		}
		if p.NATSURL != "" {
			fmt.Fprintf(w, "nats_url:\t%s\n", p.NATSURL)
		}
		return w.Flush()
	},
}

func init() {
	profileAddCmd.Flags().String("addr", "", "grpc address, postgres URL, badger path, or s3 bucket")
	profileAddCmd.Flags().String("token", "", "bearer token for the ledger service")
	profileAddCmd.Flags().String("wallet-key", "", "wallet key file")
	profileAddCmd.Flags().String("seal-key", "", "base64 seal key")
	profileAddCmd.Flags().String("nats", "", "NATS URL for events")

	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileRemoveCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileUseCmd)
	profileCmd.AddCommand(profileShowCmd)
}
