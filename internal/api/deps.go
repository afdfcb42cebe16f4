package api

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/better-wallet/delegate-recovery/internal/app"
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

// RecoveryService is the subset of app.RecoveryService used by the API layer.
// It is an interface to allow handler-level unit tests without a chain.
type RecoveryService interface {
	Status(ctx context.Context, account common.Address) (*app.AccountStatus, error)
	Recover(ctx context.Context, account common.Address) (*types.RecoveryAttempt, error)
	ListAttempts(ctx context.Context, account common.Address, limit int) ([]*types.RecoveryAttempt, error)
	Accounts() []common.Address
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

var _ RecoveryService = (*app.RecoveryService)(nil)
