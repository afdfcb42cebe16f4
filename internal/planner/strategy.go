package planner

import (
	apperrors "github.com/better-wallet/delegate-recovery/pkg/errors"
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

// SelectStrategy maps a disruption state onto a recovery strategy.
//
// Ownership is only ever restored by the init data of an implementation
// reset, so a wrong owner cursor alongside a wrong delegate escalates the
// delegate-only case to combined. Ownership alone has no strategy.
//
// An unupgraded account (no code) is treated as needing its delegate set:
// initial-upgrade when storage also needs a reset, delegate-only when the
// storage left behind by an earlier delegation is still canonical.
func SelectStrategy(state types.DisruptionState, unupgraded bool) (types.Strategy, error) {
	delegate := state.DelegateWrong() || unupgraded
	reset := state.ImplementationWrong() || state.OwnershipWrong()

	switch {
	case unupgraded && reset:
		return types.StrategyInitialUpgrade, nil
	case delegate && reset:
		return types.StrategyCombined, nil
	case delegate:
		return types.StrategyDelegateOnly, nil
	case state.ImplementationWrong():
		return types.StrategyImplementationOnly, nil
	case state.OwnershipWrong():
		return "", apperrors.UnsupportedDisruption(state.String())
	default:
		return types.StrategyNone, nil
	}
}

// operationFor returns the relay operation carrying a strategy's messages
func operationFor(strategy types.Strategy) types.RelayOperation {
	switch strategy {
	case types.StrategyDelegateOnly:
		return types.OpSubmitAuthorization
	case types.StrategyImplementationOnly:
		return types.OpSetImplementation
	default:
		return types.OpUpgradeAndSetImplementation
	}
}
