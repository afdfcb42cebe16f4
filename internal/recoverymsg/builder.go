package recoverymsg

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/better-wallet/delegate-recovery/internal/nonce"
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

// Builder hashes implementation resets, refusing a replay nonce that was
// already used for the same proxy in this process.
type Builder struct {
	guard *nonce.Guard
}

// NewBuilder creates a builder sharing guard with any other builder of the process
func NewBuilder(guard *nonce.Guard) *Builder {
	return &Builder{guard: guard}
}

// Build returns the reset hash and claims its nonce
func (b *Builder) Build(r types.ImplementationReset) (common.Hash, error) {
	hash, err := ImplementationResetHash(r)
	if err != nil {
		return common.Hash{}, err
	}
	if err := b.guard.Claim(r.Proxy, r.Nonce); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// Release returns the nonce claim of a reset whose signature was never handed
// to the relay.
func (b *Builder) Release(r types.ImplementationReset) {
	b.guard.Release(r.Proxy, r.Nonce)
}
