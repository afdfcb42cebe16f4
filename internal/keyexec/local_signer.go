package keyexec

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/better-wallet/delegate-recovery/internal/crypto"
)

// LocalSigner keeps the account key in process memory
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocalSigner wraps an in-memory key
func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{key: key, address: crypto.AddressOf(key)}
}

// NewLocalSignerFromHex parses a hex private key
func NewLocalSignerFromHex(hexKey string) (*LocalSigner, error) {
	key, err := crypto.ParseHexKey(hexKey)
	if err != nil {
		return nil, err
	}
	return NewLocalSigner(key), nil
}

func (s *LocalSigner) Address() common.Address { return s.address }

func (s *LocalSigner) SignHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	return signHash(s.key, hash)
}

func (s *LocalSigner) SignAuthorization(ctx context.Context, auth ethtypes.SetCodeAuthorization) (ethtypes.SetCodeAuthorization, error) {
	signed, err := ethtypes.SignSetCode(s.key, auth)
	if err != nil {
		return ethtypes.SetCodeAuthorization{}, keyOperationFailed("sign_authorization", err)
	}
	return signed, nil
}

func signHash(key *ecdsa.PrivateKey, hash common.Hash) ([]byte, error) {
	sig, err := ethcrypto.Sign(hash.Bytes(), key)
	if err != nil {
		return nil, keyOperationFailed("sign_hash", fmt.Errorf("failed to sign hash: %w", err))
	}
	sig[ethcrypto.RecoveryIDOffset] += 27
	return sig, nil
}

var _ Signer = (*LocalSigner)(nil)
