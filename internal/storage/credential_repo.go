package storage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/better-wallet/delegate-recovery/pkg/types"
)

// CredentialRepository stores minted owner credentials. The private key is
// only ever stored sealed by the KMS provider.
type CredentialRepository struct {
	store *Store
}

// NewCredentialRepository creates a new CredentialRepository
func NewCredentialRepository(store *Store) *CredentialRepository {
	return &CredentialRepository{store: store}
}

// SaveCredential persists a minted credential
func (r *CredentialRepository) SaveCredential(ctx context.Context, cred *types.SealedOwnerCredential) error {
	return r.SaveCredentialTx(ctx, r.store.pool, cred)
}

// SaveCredentialTx persists a minted credential using the provided transaction or connection
func (r *CredentialRepository) SaveCredentialTx(ctx context.Context, db DBTX, cred *types.SealedOwnerCredential) error {
	if cred == nil || cred.Credential == nil {
		return fmt.Errorf("credential is required")
	}
	if len(cred.SealedPrivateKey) == 0 {
		return fmt.Errorf("credential %s has no sealed private key", cred.Credential.ID)
	}
	c := cred.Credential

	query := `
		INSERT INTO owner_credentials (id, account, public_key_x, public_key_y, sealed_private_key, provider, created_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7)
	`

	_, err := db.Exec(ctx, query,
		c.ID,
		accountKey(c.Account),
		decimal(c.PublicKeyX),
		decimal(c.PublicKeyY),
		cred.SealedPrivateKey,
		cred.Provider,
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save owner credential: %w", err)
	}

	return nil
}

// GetByID retrieves a credential by ID, returning nil when absent
func (r *CredentialRepository) GetByID(ctx context.Context, id uuid.UUID) (*types.SealedOwnerCredential, error) {
	query := `
		SELECT id, account, public_key_x::text, public_key_y::text, sealed_private_key, provider, created_at
		FROM owner_credentials
		WHERE id = $1
	`

	cred, err := scanCredential(r.store.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get owner credential: %w", err)
	}
	return cred, nil
}

// ListByAccount returns the credentials minted for account, newest first
func (r *CredentialRepository) ListByAccount(ctx context.Context, account common.Address) ([]*types.SealedOwnerCredential, error) {
	query := `
		SELECT id, account, public_key_x::text, public_key_y::text, sealed_private_key, provider, created_at
		FROM owner_credentials
		WHERE account = $1
		ORDER BY created_at DESC
	`

	rows, err := r.store.pool.Query(ctx, query, accountKey(account))
	if err != nil {
		return nil, fmt.Errorf("failed to list owner credentials: %w", err)
	}
	defer rows.Close()

	var out []*types.SealedOwnerCredential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan owner credential: %w", err)
		}
		out = append(out, cred)
	}
	return out, rows.Err()
}

func scanCredential(row pgx.Row) (*types.SealedOwnerCredential, error) {
	var (
		c       types.NewOwnerCredential
		cred    = types.SealedOwnerCredential{Credential: &c}
		account string
		x, y    string
	)
	if err := row.Scan(&c.ID, &account, &x, &y, &cred.SealedPrivateKey, &cred.Provider, &c.CreatedAt); err != nil {
		return nil, err
	}

	c.Account = common.HexToAddress(account)
	var err error
	if c.PublicKeyX, err = parseDecimal(x); err != nil {
		return nil, err
	}
	if c.PublicKeyY, err = parseDecimal(y); err != nil {
		return nil, err
	}
	return &cred, nil
}

// accountKey is the stored form of an address
func accountKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func decimal(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func parseDecimal(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return n, nil
}
