package planner

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/better-wallet/delegate-recovery/pkg/types"
)

// RecoveryError carries the context of a failed recovery: enough for a
// caller to decide whether to start again from inspection.
type RecoveryError struct {
	Account  common.Address
	State    types.DisruptionState
	Strategy types.Strategy
	Before   *types.AccountFacts
	After    *types.AccountFacts
	TxHashes []common.Hash
	// Credential is set once a new owner was minted and persisted
	Credential *types.NewOwnerCredential
	Err        error
}

func (e *RecoveryError) Error() string {
	strategy := e.Strategy
	if strategy == "" {
		strategy = "unselected"
	}
	return fmt.Sprintf("recovery of %s failed (state %s, strategy %s): %v", e.Account.Hex(), e.State, strategy, e.Err)
}

func (e *RecoveryError) Unwrap() error {
	return e.Err
}
