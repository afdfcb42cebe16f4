package crypto

import (
	"fmt"

	"github.com/hashicorp/vault/shamir"
)

const (
	// Threshold is the number of shares needed to rebuild an account key
	Threshold = 2
	// TotalShares is the number of shares an account key is split into
	TotalShares = 2

	// minShareLen is a 32-byte scalar plus the share tag byte
	minShareLen = 33
)

// ShareSet is an account key split 2-of-2.
// The auth share sits in the key file in clear; the exec share is only ever
// stored sealed by the KMS provider.
type ShareSet struct {
	AuthShare []byte
	ExecShare []byte
}

// SplitKey splits an account key into an auth and an exec share
func SplitKey(key []byte) (*ShareSet, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("key cannot be empty")
	}

	shares, err := shamir.Split(key, TotalShares, Threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split key: %w", err)
	}

	return &ShareSet{
		AuthShare: shares[0],
		ExecShare: shares[1],
	}, nil
}

// CombineShares rebuilds an account key. The caller must Zero the result.
func CombineShares(authShare, execShare []byte) ([]byte, error) {
	if err := ValidateShare(authShare); err != nil {
		return nil, fmt.Errorf("auth share: %w", err)
	}
	if err := ValidateShare(execShare); err != nil {
		return nil, fmt.Errorf("exec share: %w", err)
	}

	key, err := shamir.Combine([][]byte{authShare, execShare})
	if err != nil {
		return nil, fmt.Errorf("failed to combine shares: %w", err)
	}
	return key, nil
}

// ValidateShare checks the shape of a share, not its cryptographic validity
func ValidateShare(share []byte) error {
	if len(share) == 0 {
		return fmt.Errorf("share cannot be empty")
	}
	if len(share) < minShareLen {
		return fmt.Errorf("share too short: expected at least %d bytes, got %d", minShareLen, len(share))
	}
	return nil
}
