// Package disruption maps account facts onto the disruption state.
package disruption

import (
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

// Classify compares facts against the canonical configuration. It is pure and
// is the only place the three comparisons are made.
//
// Empty code is not a delegate disruption: the account was never upgraded,
// which callers detect with facts.Unupgraded(). Code that is not a delegation
// designator counts as a wrong delegate.
//
// An owner cursor of zero cannot tell "never initialised" from "erased";
// both report OwnershipWrong.
func Classify(facts *types.AccountFacts, canonical types.CanonicalConfig) types.DisruptionState {
	delegateWrong := len(facts.Code) > 0 &&
		(facts.Delegate == nil || *facts.Delegate != canonical.ExpectedDelegate)

	implementationWrong := facts.Implementation != canonical.ExpectedImplementation

	ownershipWrong := facts.OwnerCursor == nil || facts.OwnerCursor.Sign() == 0

	return types.NewDisruptionState(delegateWrong, implementationWrong, ownershipWrong)
}
