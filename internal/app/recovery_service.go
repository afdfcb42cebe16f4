package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/better-wallet/delegate-recovery/internal/disruption"
	"github.com/better-wallet/delegate-recovery/internal/logger"
	"github.com/better-wallet/delegate-recovery/internal/metrics"
	"github.com/better-wallet/delegate-recovery/internal/planner"
	apperrors "github.com/better-wallet/delegate-recovery/pkg/errors"
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

// Recoverer runs one full recovery of an account
type Recoverer interface {
	Recover(ctx context.Context, account common.Address) (*types.RecoveryOutcome, error)
}

// AccountInspector reads fresh account facts
type AccountInspector interface {
	Inspect(ctx context.Context, account common.Address) (*types.AccountFacts, error)
}

// AttemptStore records recovery attempts
type AttemptStore interface {
	Create(ctx context.Context, attempt *types.RecoveryAttempt) error
	Update(ctx context.Context, attempt *types.RecoveryAttempt) error
	ListByAccount(ctx context.Context, account common.Address, limit int) ([]*types.RecoveryAttempt, error)
}

// AccountLister lists the accounts whose keys this process holds
type AccountLister interface {
	Addresses() []common.Address
}

// DefaultAttemptLimit bounds attempt listings when the caller gives no limit
const DefaultAttemptLimit = 20

// RecoveryService serializes recoveries per account and keeps their audit
// trail. Attempts for different accounts run independently.
type RecoveryService struct {
	planner   Recoverer
	inspector AccountInspector
	canonical types.CanonicalConfig
	attempts  AttemptStore
	accounts  AccountLister
	metrics   *metrics.Metrics

	mu       sync.Mutex
	inFlight map[common.Address]struct{}
	running  sync.WaitGroup
	now      func() time.Time
}

// NewRecoveryService creates a new recovery service
func NewRecoveryService(
	p Recoverer,
	inspector AccountInspector,
	canonical types.CanonicalConfig,
	attempts AttemptStore,
	accounts AccountLister,
	m *metrics.Metrics,
) *RecoveryService {
	return &RecoveryService{
		planner:   p,
		inspector: inspector,
		canonical: canonical,
		attempts:  attempts,
		accounts:  accounts,
		metrics:   m,
		inFlight:  make(map[common.Address]struct{}),
		now:       time.Now,
	}
}

// AccountStatus is the classified state of an account together with the
// strategy a recovery would use.
type AccountStatus struct {
	Account    common.Address        `json:"account"`
	Facts      *types.AccountFacts   `json:"facts"`
	State      types.DisruptionState `json:"state"`
	Unupgraded bool                  `json:"unupgraded"`
	Strategy   types.Strategy        `json:"strategy,omitempty"`
	// StrategyError explains why no strategy applies
	StrategyError string `json:"strategy_error,omitempty"`
	Managed       bool   `json:"managed"`
	InFlight      bool   `json:"recovery_in_flight"`
}

// Status inspects and classifies account without changing anything
func (s *RecoveryService) Status(ctx context.Context, account common.Address) (*AccountStatus, error) {
	ctx = logger.WithAccount(ctx, account)

	start := s.now()
	facts, err := s.inspector.Inspect(ctx, account)
	if err != nil {
		return nil, err
	}
	state := disruption.Classify(facts, s.canonical)
	s.metrics.ObserveInspection(state, s.now().Sub(start))

	status := &AccountStatus{
		Account:    account,
		Facts:      facts,
		State:      state,
		Unupgraded: facts.Unupgraded(),
		Managed:    s.isManaged(account),
		InFlight:   s.isInFlight(account),
	}

	strategy, err := planner.SelectStrategy(state, facts.Unupgraded())
	if err != nil {
		status.StrategyError = err.Error()
	} else {
		status.Strategy = strategy
	}

	return status, nil
}

// Recover runs a recovery of account and returns the recorded attempt.
// A second call for the same account while one is running fails with
// recovery_in_progress. On failure the attempt is returned alongside the error.
func (s *RecoveryService) Recover(ctx context.Context, account common.Address) (*types.RecoveryAttempt, error) {
	ctx = logger.WithAccount(ctx, account)

	if err := s.acquire(account); err != nil {
		return nil, err
	}
	defer s.release(account)

	attempt := &types.RecoveryAttempt{
		Account: account,
		Status:  types.AttemptPending,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to record recovery attempt: %w", err)
	}

	start := s.now()
	outcome, err := s.planner.Recover(ctx, account)
	s.recordOutcome(attempt, outcome, err)
	s.metrics.ObserveRecovery(attempt.Strategy, err, attempt.Status == types.AttemptNoop, s.now().Sub(start))

	// The result stands even if the audit update fails.
	if uerr := s.attempts.Update(context.WithoutCancel(ctx), attempt); uerr != nil {
		logger.Error(ctx, "failed to update recovery attempt", "attempt_id", attempt.ID.String(), "error", uerr)
	}

	if err != nil {
		logger.Warn(ctx, "recovery failed",
			"attempt_id", attempt.ID.String(),
			"strategy", string(attempt.Strategy),
			"error_code", attempt.ErrorCode,
			"error", err,
		)
		return attempt, err
	}

	logger.Info(ctx, "recovery finished",
		"attempt_id", attempt.ID.String(),
		"status", string(attempt.Status),
		"strategy", string(attempt.Strategy),
	)
	return attempt, nil
}

// ListAttempts returns the latest recorded attempts for account
func (s *RecoveryService) ListAttempts(ctx context.Context, account common.Address, limit int) ([]*types.RecoveryAttempt, error) {
	if limit <= 0 {
		limit = DefaultAttemptLimit
	}
	return s.attempts.ListByAccount(ctx, account, limit)
}

// Accounts returns the accounts whose keys this process holds
func (s *RecoveryService) Accounts() []common.Address {
	return s.accounts.Addresses()
}

func (s *RecoveryService) acquire(account common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inFlight[account]; ok {
		return apperrors.RecoveryInProgress(account.Hex())
	}
	s.inFlight[account] = struct{}{}
	s.running.Add(1)
	return nil
}

func (s *RecoveryService) release(account common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, account)
	s.running.Done()
}

// Wait blocks until every running recovery has finished or ctx is done.
// Callers stop starting new recoveries first.
func (s *RecoveryService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *RecoveryService) isInFlight(account common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[account]
	return ok
}

func (s *RecoveryService) isManaged(account common.Address) bool {
	for _, a := range s.accounts.Addresses() {
		if a == account {
			return true
		}
	}
	return false
}

// recordOutcome copies the result of a recovery run onto attempt
func (s *RecoveryService) recordOutcome(attempt *types.RecoveryAttempt, outcome *types.RecoveryOutcome, err error) {
	if err != nil {
		attempt.Status = types.AttemptFailed
		attempt.ErrorMessage = err.Error()
		attempt.ErrorCode = apperrors.ErrCodeInternalError
		if appErr, ok := apperrors.IsAppError(err); ok {
			attempt.ErrorCode = appErr.Code
		}

		var recErr *planner.RecoveryError
		if errors.As(err, &recErr) {
			attempt.Strategy = recErr.Strategy
			attempt.StateBefore = recErr.State
			attempt.Before = recErr.Before
			attempt.After = recErr.After
			attempt.TxHashes = recErr.TxHashes
			if recErr.After != nil {
				attempt.StateAfter = disruption.Classify(recErr.After, s.canonical)
			}
			if recErr.Credential != nil {
				id := recErr.Credential.ID
				attempt.CredentialID = &id
			}
		}
		if len(attempt.TxHashes) > 0 && apperrors.IsRetryable(err) {
			// Broadcast but unconfirmed: the transaction may still land.
			attempt.Status = types.AttemptSubmitted
		}
		return
	}

	plan := outcome.Plan
	attempt.Strategy = plan.Strategy
	attempt.StateBefore = plan.State
	attempt.StateAfter = outcome.State
	attempt.Before = plan.Before
	attempt.After = outcome.After
	attempt.TxHashes = outcome.TxHashes
	if plan.Credential != nil {
		id := plan.Credential.ID
		attempt.CredentialID = &id
	}

	attempt.Status = types.AttemptSucceeded
	if plan.IsNoop() {
		attempt.Status = types.AttemptNoop
	}
}
