package keyexec

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/better-wallet/delegate-recovery/internal/crypto"
)

// ShareSigner rebuilds the account key from its two shares for each signature
// and zeroes it afterwards.
type ShareSigner struct {
	provider KMSProvider
	material *KeyMaterial
}

// NewShareSigner creates a signer over split key material
func NewShareSigner(provider KMSProvider, material *KeyMaterial) *ShareSigner {
	return &ShareSigner{provider: provider, material: material}
}

// GenerateKeyMaterial creates a fresh account key and splits it
func GenerateKeyMaterial(ctx context.Context, provider KMSProvider) (*KeyMaterial, error) {
	key, err := crypto.GenerateEthereumKey()
	if err != nil {
		return nil, keyOperationFailed("generate", err)
	}
	defer crypto.ZeroKey(key)

	return SplitKeyMaterial(ctx, provider, key)
}

// SplitKeyMaterial splits an existing account key and seals its exec share
func SplitKeyMaterial(ctx context.Context, provider KMSProvider, key *ecdsa.PrivateKey) (*KeyMaterial, error) {
	raw := crypto.PrivateKeyToBytes(key)
	defer crypto.Zero(raw)

	shares, err := crypto.SplitKey(raw)
	if err != nil {
		return nil, keyOperationFailed("split", err)
	}
	defer crypto.Zero(shares.ExecShare)

	sealed, err := provider.Encrypt(ctx, shares.ExecShare)
	if err != nil {
		return nil, keyOperationFailed("seal_exec_share", err)
	}

	return &KeyMaterial{
		Address:         crypto.AddressOf(key),
		AuthShare:       shares.AuthShare,
		SealedExecShare: sealed,
		Provider:        provider.Provider(),
		Version:         1,
	}, nil
}

func (s *ShareSigner) Address() common.Address { return s.material.Address }

func (s *ShareSigner) SignHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	var sig []byte
	err := s.withKey(ctx, func(key *ecdsa.PrivateKey) error {
		var err error
		sig, err = signHash(key, hash)
		return err
	})
	return sig, err
}

func (s *ShareSigner) SignAuthorization(ctx context.Context, auth ethtypes.SetCodeAuthorization) (ethtypes.SetCodeAuthorization, error) {
	var signed ethtypes.SetCodeAuthorization
	err := s.withKey(ctx, func(key *ecdsa.PrivateKey) error {
		var err error
		signed, err = ethtypes.SignSetCode(key, auth)
		if err != nil {
			return keyOperationFailed("sign_authorization", err)
		}
		return nil
	})
	return signed, err
}

// withKey opens the exec share, rebuilds the key, runs fn and zeroes the key
func (s *ShareSigner) withKey(ctx context.Context, fn func(key *ecdsa.PrivateKey) error) error {
	execShare, err := s.provider.Decrypt(ctx, s.material.SealedExecShare)
	if err != nil {
		return keyOperationFailed("open_exec_share", err)
	}
	defer crypto.Zero(execShare)

	raw, err := crypto.CombineShares(s.material.AuthShare, execShare)
	if err != nil {
		return keyOperationFailed("combine_shares", err)
	}
	defer crypto.Zero(raw)

	key, err := crypto.BytesToPrivateKey(raw)
	if err != nil {
		return keyOperationFailed("combine_shares", fmt.Errorf("invalid key: %w", err))
	}
	defer crypto.ZeroKey(key)

	if got := crypto.AddressOf(key); got != s.material.Address {
		return keyOperationFailed("combine_shares", fmt.Errorf("shares rebuild %s, expected %s", got.Hex(), s.material.Address.Hex()))
	}

	return fn(key)
}

var _ Signer = (*ShareSigner)(nil)
