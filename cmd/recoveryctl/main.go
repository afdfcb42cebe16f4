// Package main provides recoveryctl, the operator CLI for inspecting and
// recovering delegated accounts, managing signer keys and running
// migrations.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/better-wallet/delegate-recovery/internal/logger"
)

// Global flags
var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "recoveryctl",
	Short: "Inspect and recover EIP-7702 delegated accounts",
	Long: `recoveryctl talks to the chain, the relay and the recovery database
using the same environment configuration as the server.

Examples:
  recoveryctl migrate                          # Apply pending migrations
  recoveryctl keygen --dir ./keys              # Create a split signer key
  recoveryctl inspect 0xAbC...                 # Classify an account
  recoveryctl recover 0xAbC...                 # Recover one account
  recoveryctl recover --all                    # Recover every managed account
  recoveryctl relay fund 0xAbC... 1000000000   # Top up an account through the relay`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logger.InitWithWriter(os.Stderr, logFormat, logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(inspectCmd, recoverCmd, keygenCmd, migrateCmd, relayCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func parseAccount(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid account address: %s", raw)
	}
	return common.HexToAddress(raw), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
