package nonce

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	apperrors "github.com/better-wallet/delegate-recovery/pkg/errors"
)

// Guard remembers the highest replay nonce claimed per account in this
// process and refuses any claim at or below it. The on-chain tracker stays
// the final authority; this only catches a nonce reused by a second plan.
type Guard struct {
	mu      sync.Mutex
	highest map[common.Address]*big.Int
}

// NewGuard creates an empty guard
func NewGuard() *Guard {
	return &Guard{highest: make(map[common.Address]*big.Int)}
}

// Claim records n for account, failing with a stale nonce error when a
// nonce >= n was already claimed.
func (g *Guard) Claim(account common.Address, n *big.Int) error {
	if n == nil || n.Sign() < 0 {
		return fmt.Errorf("invalid replay nonce: %v", n)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, ok := g.highest[account]; ok && n.Cmp(prev) <= 0 {
		return apperrors.StaleNonce(fmt.Sprintf("account %s: nonce %s already claimed (highest %s)", account.Hex(), n, prev))
	}
	g.highest[account] = new(big.Int).Set(n)
	return nil
}

// Release drops a claim whose signature never left the process, so a rebuilt
// plan may sign the same on-chain nonce again. Releasing anything other than
// the current highest claim is a no-op.
func (g *Guard) Release(account common.Address, n *big.Int) {
	if n == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	prev, ok := g.highest[account]
	if !ok || prev.Cmp(n) != 0 {
		return
	}
	if n.Sign() == 0 {
		delete(g.highest, account)
		return
	}
	g.highest[account] = new(big.Int).Sub(n, big.NewInt(1))
}

// Highest returns the highest claimed nonce for account, if any
func (g *Guard) Highest(account common.Address) (*big.Int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev, ok := g.highest[account]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(prev), true
}
