package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"fmt"
)

// GenerateP256Key generates a passkey-style owner key on secp256r1
func GenerateP256Key() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate P-256 key: %w", err)
	}
	return key, nil
}

// MarshalP256PrivateKey encodes an owner key as SEC 1 DER
func MarshalP256PrivateKey(key *ecdsa.PrivateKey) ([]byte, error) {
	if key == nil || key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("not a P-256 key")
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal P-256 key: %w", err)
	}
	return der, nil
}

// ParseP256PrivateKey decodes SEC 1 DER produced by MarshalP256PrivateKey
func ParseP256PrivateKey(der []byte) (*ecdsa.PrivateKey, error) {
	key, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse P-256 key: %w", err)
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("not a P-256 key")
	}
	return key, nil
}
