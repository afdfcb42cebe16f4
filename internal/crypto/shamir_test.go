package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestSplitAndCombine(t *testing.T) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate random key: %v", err)
	}

	shares, err := SplitKey(key)
	if err != nil {
		t.Fatalf("SplitKey failed: %v", err)
	}
	if bytes.Equal(shares.AuthShare, shares.ExecShare) {
		t.Error("shares must differ")
	}
	if bytes.Contains(shares.AuthShare, key) || bytes.Contains(shares.ExecShare, key) {
		t.Error("a single share must not contain the key")
	}

	rebuilt, err := CombineShares(shares.AuthShare, shares.ExecShare)
	if err != nil {
		t.Fatalf("CombineShares failed: %v", err)
	}
	if !bytes.Equal(rebuilt, key) {
		t.Error("rebuilt key does not match original")
	}
}

func TestSplitKey_Empty(t *testing.T) {
	if _, err := SplitKey(nil); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestCombineShares_Invalid(t *testing.T) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate random key: %v", err)
	}
	shares, err := SplitKey(key)
	if err != nil {
		t.Fatalf("SplitKey failed: %v", err)
	}

	tests := []struct {
		name string
		auth []byte
		exec []byte
	}{
		{"missing auth share", nil, shares.ExecShare},
		{"missing exec share", shares.AuthShare, nil},
		{"truncated share", shares.AuthShare[:10], shares.ExecShare},
		{"same share twice", shares.AuthShare, shares.AuthShare},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CombineShares(tt.auth, tt.exec); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSplitKey_Randomized(t *testing.T) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate random key: %v", err)
	}

	first, err := SplitKey(key)
	if err != nil {
		t.Fatalf("SplitKey failed: %v", err)
	}
	second, err := SplitKey(key)
	if err != nil {
		t.Fatalf("SplitKey failed: %v", err)
	}

	if bytes.Equal(first.AuthShare, second.AuthShare) {
		t.Error("two splits of one key must produce different shares")
	}

	// shares from different splits do not combine to the key
	mixed, err := CombineShares(first.AuthShare, second.ExecShare)
	if err == nil && bytes.Equal(mixed, key) {
		t.Error("mixed shares must not rebuild the key")
	}
}
