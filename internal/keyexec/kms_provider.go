package keyexec

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	vault "github.com/hashicorp/vault/api"

	"github.com/better-wallet/delegate-recovery/internal/config"
)

// KMSProvider seals secrets at rest: the exec share of an account key and
// the private half of a minted owner credential.
type KMSProvider interface {
	Encrypt(ctx context.Context, data []byte) ([]byte, error)
	Decrypt(ctx context.Context, encryptedData []byte) ([]byte, error)

	// Provider returns the provider name (local, aws-kms, vault)
	Provider() string
}

// sealContext binds every sealed blob to this service. Local seals use it
// as GCM additional data and AWS seals as the encryption context, so a
// ciphertext produced for another application does not open here.
const sealContext = "delegate-recovery/key-material/v1"

// KMSProviderType represents supported KMS providers
type KMSProviderType string

const (
	// KMSProviderLocal seals with AES-GCM under a master key from the environment
	KMSProviderLocal KMSProviderType = "local"

	// KMSProviderAWSKMS seals with an AWS KMS key
	KMSProviderAWSKMS KMSProviderType = "aws-kms"

	// KMSProviderVault seals with a Vault Transit key
	KMSProviderVault KMSProviderType = "vault"
)

// KMSConfig selects and configures a KMS provider
type KMSConfig struct {
	Provider string

	LocalMasterKey string

	AWSKMSKeyID  string
	AWSKMSRegion string

	VaultAddress    string
	VaultToken      string
	VaultTransitKey string
}

// KMSConfigFrom extracts the KMS settings of the process configuration
func KMSConfigFrom(cfg *config.Config) *KMSConfig {
	return &KMSConfig{
		Provider:        cfg.KMSProvider,
		LocalMasterKey:  cfg.KMSLocalMasterKey,
		AWSKMSKeyID:     cfg.KMSAWSKeyID,
		AWSKMSRegion:    cfg.KMSAWSRegion,
		VaultAddress:    cfg.KMSVaultAddress,
		VaultToken:      cfg.KMSVaultToken,
		VaultTransitKey: cfg.KMSVaultTransitKey,
	}
}

// LocalKMSProvider seals with AES-256-GCM. Suitable for development and
// single-host deployments only.
type LocalKMSProvider struct {
	aead cipher.AEAD
}

// NewLocalKMSProvider creates a local provider. A 64-character hex master key
// is used as is; anything else is treated as a passphrase and hashed to 32 bytes.
func NewLocalKMSProvider(masterKey string) (*LocalKMSProvider, error) {
	if masterKey == "" {
		return nil, fmt.Errorf("master key is required for local KMS provider")
	}

	key, err := hex.DecodeString(masterKey)
	if err != nil || len(key) != 32 {
		sum := sha256.Sum256([]byte(masterKey))
		key = sum[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &LocalKMSProvider{aead: aead}, nil
}

// Encrypt returns nonce || ciphertext
func (p *LocalKMSProvider) Encrypt(ctx context.Context, data []byte) ([]byte, error) {
	nonce := make([]byte, p.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return p.aead.Seal(nonce, nonce, data, []byte(sealContext)), nil
}

// Decrypt opens data produced by Encrypt
func (p *LocalKMSProvider) Decrypt(ctx context.Context, encryptedData []byte) ([]byte, error) {
	nonceSize := p.aead.NonceSize()
	if len(encryptedData) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := encryptedData[:nonceSize], encryptedData[nonceSize:]
	plaintext, err := p.aead.Open(nil, nonce, ciphertext, []byte(sealContext))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func (p *LocalKMSProvider) Provider() string {
	return string(KMSProviderLocal)
}

// AWSKMSProvider seals with AWS KMS
type AWSKMSProvider struct {
	keyID  string
	client *kms.Client
}

// NewAWSKMSProvider creates an AWS KMS provider using the default credential chain
func NewAWSKMSProvider(ctx context.Context, keyID, region string) (*AWSKMSProvider, error) {
	if keyID == "" {
		return nil, fmt.Errorf("AWS KMS key ID is required")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS region is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSKMSProvider{
		keyID:  keyID,
		client: kms.NewFromConfig(cfg),
	}, nil
}

var awsEncryptionContext = map[string]string{"purpose": sealContext}

func (p *AWSKMSProvider) Encrypt(ctx context.Context, data []byte) ([]byte, error) {
	output, err := p.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(p.keyID),
		Plaintext:         data,
		EncryptionContext: awsEncryptionContext,
	})
	if err != nil {
		return nil, fmt.Errorf("AWS KMS encrypt failed: %w", err)
	}
	return output.CiphertextBlob, nil
}

func (p *AWSKMSProvider) Decrypt(ctx context.Context, encryptedData []byte) ([]byte, error) {
	output, err := p.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:             aws.String(p.keyID),
		CiphertextBlob:    encryptedData,
		EncryptionContext: awsEncryptionContext,
	})
	if err != nil {
		return nil, fmt.Errorf("AWS KMS decrypt failed: %w", err)
	}
	return output.Plaintext, nil
}

func (p *AWSKMSProvider) Provider() string {
	return string(KMSProviderAWSKMS)
}

// VaultProvider seals with the Vault Transit engine
type VaultProvider struct {
	transitKey string
	client     *vault.Client
}

// NewVaultProvider creates a Vault Transit provider
func NewVaultProvider(address, token, transitKey string) (*VaultProvider, error) {
	if address == "" {
		return nil, fmt.Errorf("vault address is required")
	}
	if token == "" {
		return nil, fmt.Errorf("vault token is required")
	}
	if transitKey == "" {
		return nil, fmt.Errorf("vault transit key name is required")
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultProvider{
		transitKey: transitKey,
		client:     client,
	}, nil
}

// Encrypt returns the vault:v1:... ciphertext as bytes
func (p *VaultProvider) Encrypt(ctx context.Context, data []byte) ([]byte, error) {
	ciphertext, err := p.transit(ctx, "encrypt", map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(data),
	}, "ciphertext")
	if err != nil {
		return nil, err
	}
	return []byte(ciphertext), nil
}

func (p *VaultProvider) Decrypt(ctx context.Context, encryptedData []byte) ([]byte, error) {
	encoded, err := p.transit(ctx, "decrypt", map[string]interface{}{
		"ciphertext": string(encryptedData),
	}, "plaintext")
	if err != nil {
		return nil, err
	}
	plaintext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("vault transit decrypt: failed to decode plaintext: %w", err)
	}
	return plaintext, nil
}

// transit calls transit/<op>/<key> and returns the string field out of the
// response data.
func (p *VaultProvider) transit(ctx context.Context, op string, body map[string]interface{}, out string) (string, error) {
	secret, err := p.client.Logical().WriteWithContext(ctx, "transit/"+op+"/"+p.transitKey, body)
	if err != nil {
		return "", fmt.Errorf("vault transit %s failed: %w", op, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("vault transit %s returned empty response", op)
	}
	value, ok := secret.Data[out].(string)
	if !ok {
		return "", fmt.Errorf("vault transit %s: %s not found in response", op, out)
	}
	return value, nil
}

func (p *VaultProvider) Provider() string {
	return string(KMSProviderVault)
}

// NewKMSProvider creates the configured provider
func NewKMSProvider(ctx context.Context, cfg *KMSConfig) (KMSProvider, error) {
	switch provider := KMSProviderType(cfg.Provider); provider {
	case KMSProviderLocal, "":
		return NewLocalKMSProvider(cfg.LocalMasterKey)
	case KMSProviderAWSKMS:
		return NewAWSKMSProvider(ctx, cfg.AWSKMSKeyID, cfg.AWSKMSRegion)
	case KMSProviderVault:
		return NewVaultProvider(cfg.VaultAddress, cfg.VaultToken, cfg.VaultTransitKey)
	default:
		return nil, fmt.Errorf("unsupported KMS provider: %s (supported: %s, %s, %s)",
			provider, KMSProviderLocal, KMSProviderAWSKMS, KMSProviderVault)
	}
}

var (
	_ KMSProvider = (*LocalKMSProvider)(nil)
	_ KMSProvider = (*AWSKMSProvider)(nil)
	_ KMSProvider = (*VaultProvider)(nil)
)
