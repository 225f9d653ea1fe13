package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/peerledger/internal/seal"
	"github.com/alfredjeanlab/peerledger/internal/wallet"
)

var keygenCmd = &cobra.Command{
	Use:     "keygen",
	Short:   "Create a wallet key file or a seal key",
	GroupID: "ledger",
	// Key generation is local; no ledger or config needed.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Args:              cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if sealKey, _ := cmd.Flags().GetBool("seal"); sealKey {
			k, err := seal.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, k)
			return nil
		}

		path, _ := cmd.Flags().GetString("out")
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			path = filepath.Join(home, ".local", "state", "peerledger", "wallet.toml")
		}
		scheme, _ := cmd.Flags().GetString("scheme")

		k, err := wallet.GenerateKeyFile(path, scheme)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "account: %s\n", k.Account())
		fmt.Fprintf(out, "scheme:  %s\n", k.Scheme())
		fmt.Fprintf(out, "key:     %s\n", path)
		return nil
	},
}

func init() {
	keygenCmd.Flags().String("out", "", "key file path (default ~/.local/state/peerledger/wallet.toml)")
	keygenCmd.Flags().String("scheme", wallet.SchemeEd25519, "signature scheme ("+wallet.SchemeEd25519+" or "+wallet.SchemeDilithium3+")")
	keygenCmd.Flags().Bool("seal", false, "print a new base64 seal key instead")
}
