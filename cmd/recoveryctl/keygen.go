package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/better-wallet/delegate-recovery/internal/config"
	"github.com/better-wallet/delegate-recovery/internal/crypto"
	"github.com/better-wallet/delegate-recovery/internal/keyexec"
)

var (
	keygenDir       string
	keygenImportHex string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Create a split signer key file",
	Long: `keygen creates an account key (or imports one), splits it 2-of-2 and
seals the execution share with the configured KMS provider. The resulting
key file belongs in SIGNER_KEY_DIR of a server using SIGNER_BACKEND=shares.`,
	Args: cobra.NoArgs,
	RunE: runKeygen,
}

func init() {
	keygenCmd.Flags().StringVar(&keygenDir, "dir", "", "Output directory (default SIGNER_KEY_DIR)")
	keygenCmd.Flags().StringVar(&keygenImportHex, "import-hex", "", "Split this hex private key instead of generating one")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg := config.FromEnv()
	if err := cfg.ValidateKMS(); err != nil {
		return err
	}
	dir := keygenDir
	if dir == "" {
		dir = cfg.SignerKeyDir
	}
	if dir == "" {
		return errors.New("--dir or SIGNER_KEY_DIR is required")
	}

	provider, err := keyexec.NewKMSProvider(ctx, keyexec.KMSConfigFrom(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize KMS provider: %w", err)
	}

	var material *keyexec.KeyMaterial
	if keygenImportHex != "" {
		key, err := crypto.ParseHexKey(keygenImportHex)
		if err != nil {
			return err
		}
		defer crypto.ZeroKey(key)
		material, err = keyexec.SplitKeyMaterial(ctx, provider, key)
		if err != nil {
			return err
		}
	} else {
		material, err = keyexec.GenerateKeyMaterial(ctx, provider)
		if err != nil {
			return err
		}
	}

	path, err := keyexec.WriteKeyFile(dir, material)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", material.Address.Hex(), path)
	return nil
}
