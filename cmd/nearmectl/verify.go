package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourorg/nearme-discovery/internal/security"
)

func newVerifyCmd() *cobra.Command {
	var publicKey string

	cmd := &cobra.Command{
		Use:   "verify [file]",
		Short: "Verify a signed API response",
		Long:  `Checks the hashes, expiry and signature of a signed response read from file or stdin.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			var env security.Envelope
			if err := json.NewDecoder(r).Decode(&env); err != nil {
				return fmt.Errorf("failed to decode signed response: %w", err)
			}
			if err := security.Verify(&env, publicKey, time.Now()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK signed by %s, valid until %s\n",
				env.Integrity.PublicKey, time.Unix(env.Integrity.ValidUntil, 0).UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&publicKey, "public-key", "", "require this signer public key (0x hex)")
	return cmd
}
