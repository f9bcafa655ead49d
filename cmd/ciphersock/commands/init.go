package commands

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ciphersock/internal/auth"
	"ciphersock/internal/store"
)

func initCmd() *cobra.Command {
	var (
		importHex string
		force     bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the pre-shared auth secret and seal it under the passphrase",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			if !force {
				_, err := appWire.AuthSecret.LoadAuthSecret(cfg.Passphrase)
				switch {
				case err == nil, errors.Is(err, store.ErrWrongPassphrase):
					return fmt.Errorf("auth secret already exists in %s (use --force to replace)", cfg.Home)
				case !errors.Is(err, store.ErrNoAuthSecret):
					return err
				}
			}

			var secret []byte
			if importHex != "" {
				b, err := hex.DecodeString(importHex)
				if err != nil {
					return fmt.Errorf("--import: %w", err)
				}
				secret = b
			} else {
				b, err := auth.NewSecret()
				if err != nil {
					return err
				}
				secret = b
			}
			if _, err := auth.New(secret); err != nil {
				return err
			}
			if err := appWire.AuthSecret.SaveAuthSecret(cfg.Passphrase, secret); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Auth secret saved.")
			if importHex == "" {
				fmt.Fprintf(out, "Share it with the other end (ciphersock init --import):\n%s\n", hex.EncodeToString(secret))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&importHex, "import", "", "hex secret to import instead of generating one")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing secret")
	return cmd
}
