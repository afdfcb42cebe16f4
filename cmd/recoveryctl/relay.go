package main

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"

	"github.com/better-wallet/delegate-recovery/internal/config"
	"github.com/better-wallet/delegate-recovery/internal/eth"
	"github.com/better-wallet/delegate-recovery/internal/relay"
)

var relayWait bool

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Send maintenance operations through the relay",
}

var relayFundCmd = &cobra.Command{
	Use:   "fund <address> <wei>",
	Short: "Fund an account",
	Args:  cobra.ExactArgs(2),
	RunE:  runRelayFund,
}

var relayEraseCmd = &cobra.Command{
	Use:   "erase-owners <address>",
	Short: "Clear the owner storage of an account",
	Long: `erase-owners asks the relay to wipe the owner cursor of an account.
It exists for rehearsing ownership recovery on test chains.`,
	Args: cobra.ExactArgs(1),
	RunE: runRelayErase,
}

func init() {
	relayCmd.PersistentFlags().BoolVar(&relayWait, "wait", true, "Wait for the transaction to be mined")
	relayCmd.AddCommand(relayFundCmd, relayEraseCmd)
}

func relayClient() (*relay.Client, *config.Config, error) {
	cfg := config.FromEnv()
	if cfg.RelayURL == "" {
		return nil, nil, errors.New("RELAY_URL is required")
	}
	return relay.NewClient(cfg.RelayURL, cfg.RelayAPIKey), cfg, nil
}

func runRelayFund(cmd *cobra.Command, args []string) error {
	account, err := parseAccount(args[0])
	if err != nil {
		return err
	}
	amount, ok := new(big.Int).SetString(args[1], 10)
	if !ok || amount.Sign() <= 0 {
		return fmt.Errorf("invalid amount: %s", args[1])
	}

	client, cfg, err := relayClient()
	if err != nil {
		return err
	}
	txHash, err := client.Fund(cmd.Context(), account, amount)
	if err != nil {
		return err
	}
	return reportTx(cmd, cfg, txHash.Hex())
}

func runRelayErase(cmd *cobra.Command, args []string) error {
	account, err := parseAccount(args[0])
	if err != nil {
		return err
	}

	client, cfg, err := relayClient()
	if err != nil {
		return err
	}
	txHash, err := client.EraseOwnerStorage(cmd.Context(), account)
	if err != nil {
		return err
	}
	return reportTx(cmd, cfg, txHash.Hex())
}

// reportTx prints the hash and, with --wait, the mined status
func reportTx(cmd *cobra.Command, cfg *config.Config, txHash string) error {
	fmt.Fprintln(cmd.OutOrStdout(), txHash)
	if !relayWait {
		return nil
	}
	if cfg.RPCURL == "" {
		return errors.New("RPC_URL is required to wait for the receipt")
	}

	ctx := cmd.Context()
	chain, err := eth.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return err
	}
	defer chain.Close()

	receipt, err := relay.NewConfirmer(chain, cfg.ReceiptPollInterval).WaitMined(ctx, common.HexToHash(txHash))
	if err != nil {
		return err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return fmt.Errorf("transaction %s reverted", txHash)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "mined in block %s\n", receipt.BlockNumber)
	return nil
}
