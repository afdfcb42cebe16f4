package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/better-wallet/delegate-recovery/internal/app"
	"github.com/better-wallet/delegate-recovery/internal/config"
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

var recoverAll bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <address>...",
	Short: "Classify accounts without changing anything",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInspect,
}

var recoverCmd = &cobra.Command{
	Use:   "recover [address]...",
	Short: "Recover disrupted accounts",
	Long: `Recover inspects each account, signs the minimal set of operations that
restores it, submits them through the relay and verifies the result.
Healthy accounts are left untouched.`,
	RunE: runRecover,
}

func init() {
	recoverCmd.Flags().BoolVar(&recoverAll, "all", false, "Recover every managed account")
}

func loadRuntime(ctx context.Context) (*app.Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.NewRuntime(ctx, cfg)
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := loadRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	statuses := make([]*app.AccountStatus, 0, len(args))
	for _, raw := range args {
		account, err := parseAccount(raw)
		if err != nil {
			return err
		}
		status, err := rt.Service.Status(ctx, account)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", account.Hex(), err)
		}
		statuses = append(statuses, status)
	}
	return printJSON(cmd, statuses)
}

func runRecover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	switch {
	case recoverAll && len(args) > 0:
		return errors.New("pass account addresses or --all, not both")
	case !recoverAll && len(args) == 0:
		return errors.New("pass account addresses or --all")
	}

	rt, err := loadRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	accounts := rt.Service.Accounts()
	if !recoverAll {
		accounts = accounts[:0:0]
		for _, raw := range args {
			account, err := parseAccount(raw)
			if err != nil {
				return err
			}
			accounts = append(accounts, account)
		}
	}

	// One failed account does not stop the others.
	var failed []common.Address
	attempts := make([]*types.RecoveryAttempt, 0, len(accounts))
	for _, account := range accounts {
		attempt, err := rt.Service.Recover(ctx, account)
		if attempt != nil {
			attempts = append(attempts, attempt)
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "recover %s: %v\n", account.Hex(), err)
			failed = append(failed, account)
		}
	}

	if err := printJSON(cmd, attempts); err != nil {
		return err
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d recoveries failed", len(failed), len(accounts))
	}
	return nil
}
