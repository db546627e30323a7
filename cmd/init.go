package cmd

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mcn/consensus"
)

var keyOutPath string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a validator keypair",
	RunE: func(cmd *cobra.Command, args []string) error {
		return generateKey(keyOutPath)
	},
}

func init() {
	initCmd.Flags().StringVar(&keyOutPath, "out", "node.key", "where to write the private key")
}

func generateKey(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing key file %s", path)
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate keypair: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(priv)), 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	fmt.Printf("wrote %s\nvalidator address: %s\n", path, consensus.AddressOf(pub))
	return nil
}
