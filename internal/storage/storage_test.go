package storage

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/better-wallet/delegate-recovery/pkg/errors"
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

// =============================================================================
// MIGRATIONS
// =============================================================================

func TestMigrations_Embedded(t *testing.T) {
	up, err := Migrations(DirectionUp)
	require.NoError(t, err)
	require.NotEmpty(t, up)

	down, err := Migrations(DirectionDown)
	require.NoError(t, err)
	require.Len(t, down, len(up), "every up migration has a down migration")

	for i := range up {
		assert.Equal(t, up[i].Version, down[len(down)-1-i].Version)
		assert.NotEmpty(t, strings.TrimSpace(up[i].SQL))
	}
	for i := 1; i < len(up); i++ {
		assert.Less(t, up[i-1].Version, up[i].Version)
	}

	assert.Contains(t, up[0].SQL, "owner_credentials")
}

func TestMigrations_InvalidDirection(t *testing.T) {
	_, err := Migrations("sideways")
	assert.Error(t, err)
}

func TestPending(t *testing.T) {
	all := []Migration{{Version: "0001"}, {Version: "0002"}, {Version: "0003"}}
	reversed := []Migration{{Version: "0003"}, {Version: "0002"}, {Version: "0001"}}
	partial := map[string]bool{"0001": true, "0002": true}

	tests := []struct {
		name       string
		migrations []Migration
		applied    map[string]bool
		direction  string
		steps      int
		want       []string
	}{
		{"up runs unapplied", all, partial, DirectionUp, 0, []string{"0003"}},
		{"down runs applied newest first", reversed, partial, DirectionDown, 0, []string{"0002", "0001"}},
		{"down honors steps", reversed, partial, DirectionDown, 1, []string{"0002"}},
		{"up on empty database honors steps", all, map[string]bool{}, DirectionUp, 2, []string{"0001", "0002"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, m := range pending(tt.migrations, tt.applied, tt.direction, tt.steps) {
				got = append(got, m.Version)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// ENCODING
// =============================================================================

func TestAccountKey(t *testing.T) {
	a := common.HexToAddress("0x7702cb554e6bFb442cb743A7dF23154544a7176C")
	assert.Equal(t, "0x7702cb554e6bfb442cb743a7df23154544a7176c", accountKey(a))
	assert.Equal(t, a, common.HexToAddress(accountKey(a)))
}

func TestDecimal(t *testing.T) {
	n, ok := new(big.Int).SetString("115792089210356248762697446949407573529996955224135760342422259061068512044369", 10)
	require.True(t, ok)

	parsed, err := parseDecimal(decimal(n))
	require.NoError(t, err)
	assert.Equal(t, 0, n.Cmp(parsed))

	assert.Equal(t, "0", decimal(nil))
	_, err = parseDecimal("0x12")
	assert.Error(t, err)
}

func TestFactsEncoding(t *testing.T) {
	data, err := encodeFacts(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	decoded, err := decodeFacts(nil)
	require.NoError(t, err)
	assert.Nil(t, decoded)

	delegate := common.HexToAddress("0x7702cb554e6bFb442cb743A7dF23154544a7176C")
	facts := &types.AccountFacts{
		Address:        common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Code:           append([]byte{0xef, 0x01, 0x00}, delegate.Bytes()...),
		Delegate:       &delegate,
		Implementation: common.HexToAddress("0x000100abaad02f1cfC8Bbe32bD5a564817339E72"),
		OwnerCursor:    big.NewInt(3),
		ReadAt:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	data, err = encodeFacts(facts)
	require.NoError(t, err)

	decoded, err = decodeFacts(data)
	require.NoError(t, err)
	assert.Equal(t, facts.Code, decoded.Code)
	assert.Equal(t, delegate, *decoded.Delegate)
	assert.Equal(t, int64(3), decoded.OwnerCursor.Int64())
	assert.True(t, facts.ReadAt.Equal(decoded.ReadAt))

	_, err = decodeFacts([]byte("{"))
	assert.Error(t, err)
}

// fakeRow scans fixed values the way pgx would
type fakeRow struct {
	values []interface{}
	err    error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan %d columns into %d destinations", len(r.values), len(dest))
	}
	for i, d := range dest {
		switch d := d.(type) {
		case *string:
			*d = r.values[i].(string)
		case *[]byte:
			if r.values[i] != nil {
				*d = r.values[i].([]byte)
			}
		case *[]string:
			*d = r.values[i].([]string)
		case *uuid.UUID:
			*d = r.values[i].(uuid.UUID)
		case **uuid.UUID:
			if r.values[i] != nil {
				id := r.values[i].(uuid.UUID)
				*d = &id
			}
		case *time.Time:
			*d = r.values[i].(time.Time)
		default:
			return fmt.Errorf("unsupported destination %T", d)
		}
	}
	return nil
}

func TestScanAttempt(t *testing.T) {
	id, credID := uuid.New(), uuid.New()
	now := time.Now().UTC()
	txHash := common.HexToHash("0x01")
	before, err := encodeFacts(&types.AccountFacts{OwnerCursor: big.NewInt(0)})
	require.NoError(t, err)

	row := fakeRow{values: []interface{}{
		id,
		"0x00000000000000000000000000000000000000aa",
		"failed",
		"implementation-only",
		"implementation+ownership",
		"ownership",
		before,
		nil,
		[]string{txHash.Hex()},
		credID,
		apperrors.ErrCodeRecoveryVerificationFailed,
		"still disrupted: ownership",
		now,
		now,
	}}

	attempt, err := scanAttempt(row)
	require.NoError(t, err)
	assert.Equal(t, id, attempt.ID)
	assert.Equal(t, common.HexToAddress("0xaa"), attempt.Account)
	assert.Equal(t, types.AttemptFailed, attempt.Status)
	assert.Equal(t, types.StrategyImplementationOnly, attempt.Strategy)
	assert.Equal(t, types.ImplementationWrong|types.OwnershipWrong, attempt.StateBefore)
	assert.Equal(t, types.OwnershipWrong, attempt.StateAfter)
	require.NotNil(t, attempt.Before)
	assert.Nil(t, attempt.After)
	assert.Equal(t, []common.Hash{txHash}, attempt.TxHashes)
	require.NotNil(t, attempt.CredentialID)
	assert.Equal(t, credID, *attempt.CredentialID)

	row.values[4] = "sideways"
	_, err = scanAttempt(row)
	assert.Error(t, err)
}

func TestScanCredential(t *testing.T) {
	id := uuid.New()
	row := fakeRow{values: []interface{}{
		id,
		"0x00000000000000000000000000000000000000aa",
		"12345",
		"67890",
		[]byte{1, 2, 3},
		"local",
		time.Now().UTC(),
	}}

	cred, err := scanCredential(row)
	require.NoError(t, err)
	assert.Equal(t, id, cred.Credential.ID)
	assert.Equal(t, int64(12345), cred.Credential.PublicKeyX.Int64())
	assert.Equal(t, int64(67890), cred.Credential.PublicKeyY.Int64())
	assert.Equal(t, []byte{1, 2, 3}, cred.SealedPrivateKey)
	assert.Equal(t, "local", cred.Provider)

	row.values[2] = "not a number"
	_, err = scanCredential(row)
	assert.Error(t, err)
}

// =============================================================================
// DATABASE
// =============================================================================

func TestRepositories_Postgres(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set - skipping database tests")
	}

	ctx := context.Background()
	store, err := New(ctx, dsn)
	require.NoError(t, err)
	defer store.Close()

	_, err = Migrate(ctx, store.DB(), DirectionUp, 0)
	require.NoError(t, err)

	id := uuid.New()
	account := common.BytesToAddress(id[:])

	creds := NewCredentialRepository(store)
	cred := &types.SealedOwnerCredential{
		Credential: &types.NewOwnerCredential{
			ID:         uuid.New(),
			Account:    account,
			PublicKeyX: big.NewInt(11),
			PublicKeyY: big.NewInt(22),
			CreatedAt:  time.Now().UTC(),
		},
		SealedPrivateKey: []byte("sealed"),
		Provider:         "local",
	}
	require.NoError(t, creds.SaveCredential(ctx, cred))
	assert.Error(t, creds.SaveCredential(ctx, cred), "ids are unique")

	got, err := creds.GetByID(ctx, cred.Credential.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, account, got.Credential.Account)

	attempts := NewRecoveryAttemptRepository(store)
	attempt := &types.RecoveryAttempt{
		Account:     account,
		Status:      types.AttemptPending,
		StateBefore: types.ImplementationWrong | types.OwnershipWrong,
		Before:      &types.AccountFacts{Address: account, OwnerCursor: big.NewInt(0)},
	}
	require.NoError(t, attempts.Create(ctx, attempt))
	assert.NotEqual(t, uuid.Nil, attempt.ID)

	attempt.Status = types.AttemptSucceeded
	attempt.Strategy = types.StrategyImplementationOnly
	attempt.CredentialID = &cred.Credential.ID
	attempt.TxHashes = []common.Hash{common.HexToHash("0x01")}
	require.NoError(t, attempts.Update(ctx, attempt))

	list, err := attempts.ListByAccount(ctx, account, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, types.AttemptSucceeded, list[0].Status)
	assert.Equal(t, attempt.TxHashes, list[0].TxHashes)

	missing := &types.RecoveryAttempt{ID: uuid.New(), Account: account, Status: types.AttemptFailed}
	assert.ErrorIs(t, attempts.Update(ctx, missing), apperrors.ErrNotFound)
}
