// Package authz builds signed EIP-7702 authorizations that point an account
// back at its canonical delegate.
package authz

import (
	"context"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	apperrors "github.com/better-wallet/delegate-recovery/pkg/errors"
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

// Scope decides which chains an authorization is valid on. The zero value is
// invalid; use ChainSpecific or SponsorReplayable.
type Scope struct {
	chainID *big.Int
	sponsor bool
}

// ChainSpecific scopes an authorization to one chain. Chain id 0 is the
// wildcard and is only reachable through SponsorReplayable.
func ChainSpecific(chainID *big.Int) (Scope, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return Scope{}, apperrors.NewWithDetail(
			apperrors.ErrCodeInvalidAuthorizationScope,
			"Chain-specific authorization requires a positive chain id",
			fmt.Sprintf("chain_id: %v", chainID),
			http.StatusBadRequest,
		)
	}
	return Scope{chainID: new(big.Int).Set(chainID)}, nil
}

// SponsorReplayable scopes an authorization to every chain (chain id 0)
// so a sponsor may replay it.
func SponsorReplayable() Scope {
	return Scope{sponsor: true}
}

// ScopeFromConfig maps the configured scope keyword to a Scope
func ScopeFromConfig(kind string, chainID *big.Int) (Scope, error) {
	switch kind {
	case "chain", "":
		return ChainSpecific(chainID)
	case "sponsor":
		return SponsorReplayable(), nil
	default:
		return Scope{}, apperrors.NewWithDetail(
			apperrors.ErrCodeInvalidAuthorizationScope,
			"Unknown authorization scope",
			kind,
			http.StatusBadRequest,
		)
	}
}

// ChainID returns the chain id committed in the tuple, 0 for sponsor scope
func (s Scope) ChainID() *big.Int {
	if s.sponsor || s.chainID == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(s.chainID)
}

func (s Scope) IsSponsorReplayable() bool { return s.sponsor }

func (s Scope) valid() bool {
	return s.sponsor || (s.chainID != nil && s.chainID.Sign() > 0)
}

func (s Scope) String() string {
	if s.sponsor {
		return "sponsor-replayable"
	}
	return fmt.Sprintf("chain-%v", s.chainID)
}

// Signer produces EIP-7702 signatures for one account
type Signer interface {
	Address() common.Address
	SignAuthorization(ctx context.Context, auth ethtypes.SetCodeAuthorization) (ethtypes.SetCodeAuthorization, error)
}

// Build signs (scope chain id, delegate, accountNonce) with signer.
// accountNonce must be the account's current transaction nonce: the relay,
// not the account, sends the transaction carrying the tuple.
func Build(ctx context.Context, signer Signer, delegate common.Address, scope Scope, accountNonce uint64) (*types.Authorization, error) {
	if !scope.valid() {
		return nil, apperrors.New(apperrors.ErrCodeInvalidAuthorizationScope, "Authorization scope is not set", http.StatusBadRequest)
	}
	if delegate == (common.Address{}) {
		return nil, fmt.Errorf("delegate address is required")
	}

	unsigned := ethtypes.SetCodeAuthorization{
		ChainID: *uint256.MustFromBig(scope.ChainID()),
		Address: delegate,
		Nonce:   accountNonce,
	}

	signed, err := signer.SignAuthorization(ctx, unsigned)
	if err != nil {
		return nil, fmt.Errorf("failed to sign authorization: %w", err)
	}

	authority, err := signed.Authority()
	if err != nil {
		return nil, fmt.Errorf("signed authorization is not recoverable: %w", err)
	}
	if authority != signer.Address() {
		return nil, fmt.Errorf("authorization signed by %s, expected %s", authority.Hex(), signer.Address().Hex())
	}

	return FromSetCode(signed), nil
}

// FromSetCode converts a go-ethereum tuple to the relay wire form
func FromSetCode(auth ethtypes.SetCodeAuthorization) *types.Authorization {
	r := auth.R.Bytes32()
	s := auth.S.Bytes32()

	sig := make([]byte, 0, 65)
	sig = append(sig, r[:]...)
	sig = append(sig, s[:]...)
	sig = append(sig, auth.V)

	return &types.Authorization{
		ContractAddress: auth.Address,
		ChainID:         auth.ChainID.ToBig(),
		Nonce:           auth.Nonce,
		Signature:       sig,
	}
}

// ToSetCode converts the relay wire form back to a go-ethereum tuple
func ToSetCode(a *types.Authorization) (ethtypes.SetCodeAuthorization, error) {
	if a == nil {
		return ethtypes.SetCodeAuthorization{}, fmt.Errorf("authorization is required")
	}
	if len(a.Signature) != 65 {
		return ethtypes.SetCodeAuthorization{}, fmt.Errorf("authorization signature must be 65 bytes, got %d", len(a.Signature))
	}
	chainID := a.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	cid, overflow := uint256.FromBig(chainID)
	if overflow || chainID.Sign() < 0 {
		return ethtypes.SetCodeAuthorization{}, fmt.Errorf("chain id out of range: %s", chainID)
	}

	v := a.Signature[64]
	if v >= 27 {
		v -= 27
	}

	return ethtypes.SetCodeAuthorization{
		ChainID: *cid,
		Address: a.ContractAddress,
		Nonce:   a.Nonce,
		V:       v,
		R:       *new(uint256.Int).SetBytes(a.Signature[:32]),
		S:       *new(uint256.Int).SetBytes(a.Signature[32:64]),
	}, nil
}

// Authority recovers the account that signed a
func Authority(a *types.Authorization) (common.Address, error) {
	auth, err := ToSetCode(a)
	if err != nil {
		return common.Address{}, err
	}
	return auth.Authority()
}
