package keyexec

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/better-wallet/delegate-recovery/internal/config"
	apperrors "github.com/better-wallet/delegate-recovery/pkg/errors"
)

// Keyring maps managed accounts to their signers
type Keyring struct {
	mu      sync.RWMutex
	signers map[common.Address]Signer
}

// NewKeyring creates a keyring holding signers
func NewKeyring(signers ...Signer) *Keyring {
	k := &Keyring{signers: make(map[common.Address]Signer, len(signers))}
	for _, s := range signers {
		k.signers[s.Address()] = s
	}
	return k
}

// LoadKeyring builds the keyring for the configured signer backend
func LoadKeyring(cfg *config.Config, provider KMSProvider) (*Keyring, error) {
	k := NewKeyring()

	switch cfg.SignerBackend {
	case config.SignerBackendLocal:
		for i, hexKey := range cfg.SignerPrivateKeys {
			s, err := NewLocalSignerFromHex(hexKey)
			if err != nil {
				return nil, fmt.Errorf("SIGNER_PRIVATE_KEYS[%d]: %w", i, err)
			}
			if err := k.Add(s); err != nil {
				return nil, err
			}
		}
	case config.SignerBackendShares:
		materials, err := LoadKeyDir(cfg.SignerKeyDir)
		if err != nil {
			return nil, err
		}
		for _, m := range materials {
			if m.Provider != "" && m.Provider != provider.Provider() {
				return nil, fmt.Errorf("key for %s was sealed with %s, configured provider is %s",
					m.Address.Hex(), m.Provider, provider.Provider())
			}
			if err := k.Add(NewShareSigner(provider, m)); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unsupported signer backend: %s", cfg.SignerBackend)
	}

	return k, nil
}

// Add registers a signer; an account may only have one
func (k *Keyring) Add(s Signer) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.signers[s.Address()]; ok {
		return fmt.Errorf("duplicate signer for %s", s.Address().Hex())
	}
	k.signers[s.Address()] = s
	return nil
}

// SignerFor returns the signer of account
func (k *Keyring) SignerFor(account common.Address) (Signer, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	s, ok := k.signers[account]
	if !ok {
		return nil, apperrors.SignerNotFound(account.Hex())
	}
	return s, nil
}

// Addresses returns the managed accounts in byte order
func (k *Keyring) Addresses() []common.Address {
	k.mu.RLock()
	defer k.mu.RUnlock()

	out := make([]common.Address, 0, len(k.signers))
	for addr := range k.signers {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Bytes(), out[j].Bytes()) < 0
	})
	return out
}

// Probe signs a throwaway digest with every signer so a misconfigured KMS
// fails at startup rather than mid-recovery.
func (k *Keyring) Probe(ctx context.Context) error {
	for _, addr := range k.Addresses() {
		s, _ := k.SignerFor(addr)
		if _, err := s.SignHash(ctx, common.Hash{1}); err != nil {
			return fmt.Errorf("signer %s: %w", addr.Hex(), err)
		}
	}
	return nil
}
