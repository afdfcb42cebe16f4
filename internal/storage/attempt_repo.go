package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/better-wallet/delegate-recovery/pkg/errors"
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

// RecoveryAttemptRepository records every recovery run with the account
// facts before and after, for diagnosis of failed recoveries.
type RecoveryAttemptRepository struct {
	store *Store
}

// NewRecoveryAttemptRepository creates a new RecoveryAttemptRepository
func NewRecoveryAttemptRepository(store *Store) *RecoveryAttemptRepository {
	return &RecoveryAttemptRepository{store: store}
}

const attemptColumns = `id, account, status, strategy, state_before, state_after, facts_before, facts_after,
		tx_hashes, credential_id, error_code, error_message, created_at, updated_at`

// Create inserts attempt, assigning its ID when unset
func (r *RecoveryAttemptRepository) Create(ctx context.Context, attempt *types.RecoveryAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}

	row, err := attemptRow(attempt)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO recovery_attempts (id, account, status, strategy, state_before, state_after,
			facts_before, facts_after, tx_hashes, credential_id, error_code, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	err = r.store.pool.QueryRow(ctx, query,
		attempt.ID,
		row.account,
		string(attempt.Status),
		string(attempt.Strategy),
		attempt.StateBefore.String(),
		attempt.StateAfter.String(),
		row.before,
		row.after,
		row.txHashes,
		attempt.CredentialID,
		attempt.ErrorCode,
		attempt.ErrorMessage,
	).Scan(&attempt.CreatedAt, &attempt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create recovery attempt: %w", err)
	}

	return nil
}

// Update rewrites the mutable fields of attempt
func (r *RecoveryAttemptRepository) Update(ctx context.Context, attempt *types.RecoveryAttempt) error {
	row, err := attemptRow(attempt)
	if err != nil {
		return err
	}

	query := `
		UPDATE recovery_attempts
		SET status = $2, strategy = $3, state_before = $4, state_after = $5, facts_before = $6,
			facts_after = $7, tx_hashes = $8, credential_id = $9, error_code = $10, error_message = $11,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err = r.store.pool.QueryRow(ctx, query,
		attempt.ID,
		string(attempt.Status),
		string(attempt.Strategy),
		attempt.StateBefore.String(),
		attempt.StateAfter.String(),
		row.before,
		row.after,
		row.txHashes,
		attempt.CredentialID,
		attempt.ErrorCode,
		attempt.ErrorMessage,
	).Scan(&attempt.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update recovery attempt: %w", err)
	}

	return nil
}

// GetByID retrieves an attempt by ID, returning nil when absent
func (r *RecoveryAttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*types.RecoveryAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM recovery_attempts WHERE id = $1`

	attempt, err := scanAttempt(r.store.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recovery attempt: %w", err)
	}
	return attempt, nil
}

// ListByAccount returns the latest attempts for account, newest first.
// limit <= 0 returns all of them.
func (r *RecoveryAttemptRepository) ListByAccount(ctx context.Context, account common.Address, limit int) ([]*types.RecoveryAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM recovery_attempts WHERE account = $1 ORDER BY created_at DESC`
	args := []interface{}{accountKey(account)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.store.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recovery attempts: %w", err)
	}
	defer rows.Close()

	var out []*types.RecoveryAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recovery attempt: %w", err)
		}
		out = append(out, attempt)
	}
	return out, rows.Err()
}

// attemptColumnsRow holds the encoded forms of the columns that need one
type attemptColumnsRow struct {
	account  string
	before   []byte
	after    []byte
	txHashes []string
}

func attemptRow(attempt *types.RecoveryAttempt) (*attemptColumnsRow, error) {
	before, err := encodeFacts(attempt.Before)
	if err != nil {
		return nil, err
	}
	after, err := encodeFacts(attempt.After)
	if err != nil {
		return nil, err
	}

	hashes := make([]string, len(attempt.TxHashes))
	for i, h := range attempt.TxHashes {
		hashes[i] = h.Hex()
	}

	return &attemptColumnsRow{
		account:  accountKey(attempt.Account),
		before:   before,
		after:    after,
		txHashes: hashes,
	}, nil
}

func scanAttempt(row pgx.Row) (*types.RecoveryAttempt, error) {
	var (
		attempt                 types.RecoveryAttempt
		account, status         string
		strategy                string
		stateBefore, stateAfter string
		before, after           []byte
		hashes                  []string
		createdAt, updatedAt    time.Time
	)

	err := row.Scan(
		&attempt.ID,
		&account,
		&status,
		&strategy,
		&stateBefore,
		&stateAfter,
		&before,
		&after,
		&hashes,
		&attempt.CredentialID,
		&attempt.ErrorCode,
		&attempt.ErrorMessage,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	attempt.Account = common.HexToAddress(account)
	attempt.Status = types.AttemptStatus(status)
	attempt.Strategy = types.Strategy(strategy)
	attempt.CreatedAt, attempt.UpdatedAt = createdAt, updatedAt

	if attempt.StateBefore, err = types.ParseDisruptionState(stateBefore); err != nil {
		return nil, err
	}
	if attempt.StateAfter, err = types.ParseDisruptionState(stateAfter); err != nil {
		return nil, err
	}
	if attempt.Before, err = decodeFacts(before); err != nil {
		return nil, err
	}
	if attempt.After, err = decodeFacts(after); err != nil {
		return nil, err
	}
	for _, h := range hashes {
		attempt.TxHashes = append(attempt.TxHashes, common.HexToHash(h))
	}

	return &attempt, nil
}

func encodeFacts(facts *types.AccountFacts) ([]byte, error) {
	if facts == nil {
		return nil, nil
	}
	data, err := json.Marshal(facts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode account facts: %w", err)
	}
	return data, nil
}

func decodeFacts(data []byte) (*types.AccountFacts, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var facts types.AccountFacts
	if err := json.Unmarshal(data, &facts); err != nil {
		return nil, fmt.Errorf("failed to decode account facts: %w", err)
	}
	return &facts, nil
}
