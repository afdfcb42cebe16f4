package keyexec

import (
	"context"
	"crypto/ecdsa"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/better-wallet/delegate-recovery/internal/crypto"
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

// CredentialMinter mints software P-256 owner credentials. The private key is
// sealed immediately and the plaintext is zeroed before Mint returns.
type CredentialMinter struct {
	provider KMSProvider
	now      func() time.Time
}

// NewCredentialMinter creates a minter sealing with provider
func NewCredentialMinter(provider KMSProvider) *CredentialMinter {
	return &CredentialMinter{provider: provider, now: time.Now}
}

// Mint creates a new owner credential for account
func (m *CredentialMinter) Mint(ctx context.Context, account common.Address) (*types.SealedOwnerCredential, error) {
	key, err := crypto.GenerateP256Key()
	if err != nil {
		return nil, keyOperationFailed("mint_credential", err)
	}
	defer crypto.ZeroKey(key)

	der, err := crypto.MarshalP256PrivateKey(key)
	if err != nil {
		return nil, keyOperationFailed("mint_credential", err)
	}
	defer crypto.Zero(der)

	sealed, err := m.provider.Encrypt(ctx, der)
	if err != nil {
		return nil, keyOperationFailed("seal_credential", err)
	}

	return &types.SealedOwnerCredential{
		Credential: &types.NewOwnerCredential{
			ID:         uuid.New(),
			Account:    account,
			PublicKeyX: key.X,
			PublicKeyY: key.Y,
			CreatedAt:  m.now().UTC(),
		},
		SealedPrivateKey: sealed,
		Provider:         m.provider.Provider(),
	}, nil
}

// Open unseals the private key of a minted credential
func (m *CredentialMinter) Open(ctx context.Context, sealed *types.SealedOwnerCredential) (*ecdsa.PrivateKey, error) {
	der, err := m.provider.Decrypt(ctx, sealed.SealedPrivateKey)
	if err != nil {
		return nil, keyOperationFailed("open_credential", err)
	}
	defer crypto.Zero(der)

	key, err := crypto.ParseP256PrivateKey(der)
	if err != nil {
		return nil, keyOperationFailed("open_credential", err)
	}
	return key, nil
}
