package types

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// AccountFacts is a fresh read of the three mutable aspects of a delegated account
type AccountFacts struct {
	Address common.Address `json:"address"`
	// Code is the raw account code; for a delegated EOA this is 0xef0100 || delegate.
	Code []byte `json:"code"`
	// Delegate is nil when the code is empty or is not a delegation designator.
	Delegate       *common.Address `json:"delegate,omitempty"`
	Implementation common.Address  `json:"implementation"`
	OwnerCursor    *big.Int        `json:"owner_cursor"`
	ReadAt         time.Time       `json:"read_at"`
}

// Unupgraded reports an account that carries no code at all
func (f *AccountFacts) Unupgraded() bool {
	return len(f.Code) == 0
}

// CanonicalConfig describes the expected configuration of every managed account.
// It is built once at startup and passed by value.
type CanonicalConfig struct {
	ChainID                *big.Int
	ExpectedDelegate       common.Address
	ExpectedImplementation common.Address
	NonceTracker           common.Address
	Validator              common.Address
}

// DisruptionState is the set of disrupted aspects of an account.
// The zero value means healthy.
type DisruptionState uint8

const (
	DelegateWrong DisruptionState = 1 << iota
	ImplementationWrong
	OwnershipWrong
)

// Healthy is the all-false state
const Healthy DisruptionState = 0

// NewDisruptionState builds a state from the three flags
func NewDisruptionState(delegateWrong, implementationWrong, ownershipWrong bool) DisruptionState {
	var s DisruptionState
	if delegateWrong {
		s |= DelegateWrong
	}
	if implementationWrong {
		s |= ImplementationWrong
	}
	if ownershipWrong {
		s |= OwnershipWrong
	}
	return s
}

// AllDisruptionStates returns the eight possible states
func AllDisruptionStates() []DisruptionState {
	states := make([]DisruptionState, 0, 8)
	for s := DisruptionState(0); s < 8; s++ {
		states = append(states, s)
	}
	return states
}

func (s DisruptionState) DelegateWrong() bool       { return s&DelegateWrong != 0 }
func (s DisruptionState) ImplementationWrong() bool { return s&ImplementationWrong != 0 }
func (s DisruptionState) OwnershipWrong() bool      { return s&OwnershipWrong != 0 }
func (s DisruptionState) IsHealthy() bool           { return s == Healthy }

// Persisting reports which of the flags set in s are still set in after
func (s DisruptionState) Persisting(after DisruptionState) DisruptionState {
	return s & after
}

func (s DisruptionState) String() string {
	if s.IsHealthy() {
		return "healthy"
	}
	var parts []string
	if s.DelegateWrong() {
		parts = append(parts, "delegate")
	}
	if s.ImplementationWrong() {
		parts = append(parts, "implementation")
	}
	if s.OwnershipWrong() {
		parts = append(parts, "ownership")
	}
	return strings.Join(parts, "+")
}

// MarshalText encodes the state as its String form
func (s DisruptionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the String form
func (s *DisruptionState) UnmarshalText(text []byte) error {
	parsed, err := ParseDisruptionState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseDisruptionState parses "healthy" or flags joined by "+"
func ParseDisruptionState(text string) (DisruptionState, error) {
	if text == "healthy" || text == "" {
		return Healthy, nil
	}
	var s DisruptionState
	for _, part := range strings.Split(text, "+") {
		switch part {
		case "delegate":
			s |= DelegateWrong
		case "implementation":
			s |= ImplementationWrong
		case "ownership":
			s |= OwnershipWrong
		default:
			return Healthy, fmt.Errorf("unknown disruption flag %q", part)
		}
	}
	return s, nil
}

// Strategy is the recovery approach chosen for a disruption state
type Strategy string

const (
	StrategyNone               Strategy = "none"
	StrategyDelegateOnly       Strategy = "delegate-only"
	StrategyImplementationOnly Strategy = "implementation-only"
	StrategyCombined           Strategy = "combined"
	// StrategyInitialUpgrade upgrades an EOA with empty code; it submits the
	// same combined operation and always installs a new owner.
	StrategyInitialUpgrade Strategy = "initial-upgrade"
)

// NeedsAuthorization reports whether the strategy reassigns the delegate
func (s Strategy) NeedsAuthorization() bool {
	return s == StrategyDelegateOnly || s == StrategyCombined || s == StrategyInitialUpgrade
}

// NeedsImplementationReset reports whether the strategy signs an implementation reset
func (s Strategy) NeedsImplementationReset() bool {
	return s == StrategyImplementationOnly || s == StrategyCombined || s == StrategyInitialUpgrade
}

// RelayOperation is the operation keyword accepted by the relay
type RelayOperation string

const (
	OpFund                        RelayOperation = "fund"
	OpSubmitAuthorization         RelayOperation = "submit-authorization"
	OpSetImplementation           RelayOperation = "set-implementation"
	OpUpgradeAndSetImplementation RelayOperation = "upgrade-and-set-implementation"
	OpEraseOwnerStorage           RelayOperation = "erase-owner-storage"
)

// Authorization is a signed EIP-7702 delegation tuple in relay wire form.
// Signature is r || s || yParity.
type Authorization struct {
	ContractAddress common.Address `json:"contractAddress"`
	ChainID         *big.Int       `json:"chainId"`
	Nonce           uint64         `json:"nonce"`
	Signature       []byte         `json:"signature"`
}

// ImplementationReset holds every field of the implementation-reset message
type ImplementationReset struct {
	ChainID               *big.Int
	Proxy                 common.Address
	Nonce                 *big.Int
	CurrentImplementation common.Address
	NewImplementation     common.Address
	CallData              []byte
	Validator             common.Address
	AllowCrossChainReplay bool
}

// SignedImplementationReset pairs a reset with the account's signature over its hash
type SignedImplementationReset struct {
	ImplementationReset
	Hash      common.Hash
	Signature []byte
}

// NewOwnerCredential is a freshly minted P-256 owner key.
// The private half never appears here.
type NewOwnerCredential struct {
	ID         uuid.UUID      `json:"id"`
	Account    common.Address `json:"account"`
	PublicKeyX *big.Int       `json:"public_key_x"`
	PublicKeyY *big.Int       `json:"public_key_y"`
	CreatedAt  time.Time      `json:"created_at"`
}

// PlanOperation is one relay submission. A combined operation carries both parts
// and lands in a single transaction.
type PlanOperation struct {
	Kind                RelayOperation             `json:"kind"`
	Authorization       *Authorization             `json:"authorization,omitempty"`
	ImplementationReset *SignedImplementationReset `json:"implementation_reset,omitempty"`
}

// RecoveryPlan is the minimal ordered set of operations restoring an account
type RecoveryPlan struct {
	Account    common.Address      `json:"account"`
	State      DisruptionState     `json:"state"`
	Strategy   Strategy            `json:"strategy"`
	Nonce      *big.Int            `json:"nonce,omitempty"`
	Operations []PlanOperation     `json:"operations"`
	Credential *NewOwnerCredential `json:"credential,omitempty"`
	Before     *AccountFacts       `json:"before"`
}

// IsNoop reports a plan without operations
func (p *RecoveryPlan) IsNoop() bool {
	return len(p.Operations) == 0
}

// RecoveryOutcome is the verified result of executing a plan
type RecoveryOutcome struct {
	Plan     *RecoveryPlan   `json:"plan"`
	TxHashes []common.Hash   `json:"tx_hashes"`
	After    *AccountFacts   `json:"after"`
	State    DisruptionState `json:"state_after"`
}

// SealedOwnerCredential is a minted credential together with its private key
// sealed by the KMS provider named in Provider.
type SealedOwnerCredential struct {
	Credential       *NewOwnerCredential `json:"credential"`
	SealedPrivateKey []byte              `json:"-"`
	Provider         string              `json:"provider"`
}

// AttemptStatus is the lifecycle of a recorded recovery attempt
type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptSubmitted AttemptStatus = "submitted"
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
	AttemptNoop      AttemptStatus = "noop"
)

// RecoveryAttempt is the audit record of one recovery run
type RecoveryAttempt struct {
	ID           uuid.UUID       `json:"id"`
	Account      common.Address  `json:"account"`
	Status       AttemptStatus   `json:"status"`
	Strategy     Strategy        `json:"strategy,omitempty"`
	StateBefore  DisruptionState `json:"state_before"`
	StateAfter   DisruptionState `json:"state_after"`
	Before       *AccountFacts   `json:"before,omitempty"`
	After        *AccountFacts   `json:"after,omitempty"`
	TxHashes     []common.Hash   `json:"tx_hashes,omitempty"`
	CredentialID *uuid.UUID      `json:"credential_id,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
