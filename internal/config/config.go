package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/better-wallet/delegate-recovery/pkg/types"
)

// Authorization scopes
const (
	AuthorizationScopeChain   = "chain"
	AuthorizationScopeSponsor = "sponsor"
)

// Signer backends
const (
	SignerBackendLocal  = "local"
	SignerBackendShares = "shares"
)

// Config holds process configuration loaded from the environment
type Config struct {
	// Chain access
	RPCURL  string
	ChainID int64 // optional; when set it must match the RPC's chain id

	// Relay
	RelayURL            string
	RelayAPIKey         string
	ReceiptPollInterval time.Duration

	// Database
	PostgresDSN string

	// Canonical account layout
	CanonicalDelegate       string
	CanonicalImplementation string
	NonceTrackerAddress     string
	ValidatorAddress        string

	// Signing policy
	AllowCrossChainReplay bool
	AuthorizationScope    string

	// Signers
	SignerBackend     string // local or shares
	SignerPrivateKeys []string
	SignerKeyDir      string

	// KMS provider for key shares and sealed owner credentials
	KMSProvider        string
	KMSLocalMasterKey  string
	KMSAWSKeyID        string
	KMSAWSRegion       string
	KMSVaultAddress    string
	KMSVaultToken      string
	KMSVaultTransitKey string

	// Server
	Port           int
	AppSecretHash  string
	RateLimitRPS   int
	RateLimitBurst int
}

// Load loads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FromEnv reads configuration without validating it. Tools that need only
// part of it validate what they use.
func FromEnv() *Config {
	return &Config{
		RPCURL:                  getEnv("RPC_URL", ""),
		ChainID:                 int64(getEnvInt("CHAIN_ID", 0)),
		RelayURL:                getEnv("RELAY_URL", ""),
		RelayAPIKey:             getEnv("RELAY_API_KEY", ""),
		ReceiptPollInterval:     getEnvDuration("RECEIPT_POLL_INTERVAL", 2*time.Second),
		PostgresDSN:             getEnv("POSTGRES_DSN", ""),
		CanonicalDelegate:       getEnv("CANONICAL_DELEGATE", ""),
		CanonicalImplementation: getEnv("CANONICAL_IMPLEMENTATION", ""),
		NonceTrackerAddress:     getEnv("NONCE_TRACKER_ADDRESS", ""),
		ValidatorAddress:        getEnv("VALIDATOR_ADDRESS", ""),
		AllowCrossChainReplay:   getEnvBool("ALLOW_CROSS_CHAIN_REPLAY", false),
		AuthorizationScope:      getEnv("AUTHORIZATION_SCOPE", AuthorizationScopeChain),
		SignerBackend:           getEnv("SIGNER_BACKEND", SignerBackendLocal),
		SignerPrivateKeys:       getEnvList("SIGNER_PRIVATE_KEYS"),
		SignerKeyDir:            getEnv("SIGNER_KEY_DIR", ""),
		KMSProvider:             getEnv("KMS_PROVIDER", "local"),
		KMSLocalMasterKey:       getEnv("KMS_LOCAL_MASTER_KEY", ""),
		KMSAWSKeyID:             getEnv("KMS_AWS_KEY_ID", ""),
		KMSAWSRegion:            getEnv("KMS_AWS_REGION", ""),
		KMSVaultAddress:         getEnv("KMS_VAULT_ADDRESS", ""),
		KMSVaultToken:           getEnv("KMS_VAULT_TOKEN", ""),
		KMSVaultTransitKey:      getEnv("KMS_VAULT_TRANSIT_KEY", ""),
		Port:                    getEnvInt("PORT", 8080),
		AppSecretHash:           getEnv("APP_SECRET_HASH", ""),
		RateLimitRPS:            getEnvInt("RATE_LIMIT_RPS", 5),
		RateLimitBurst:          getEnvInt("RATE_LIMIT_BURST", 10),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}

	if c.RelayURL == "" {
		return fmt.Errorf("RELAY_URL is required")
	}

	if c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}

	addresses := []struct {
		name  string
		value string
	}{
		{"CANONICAL_DELEGATE", c.CanonicalDelegate},
		{"CANONICAL_IMPLEMENTATION", c.CanonicalImplementation},
		{"NONCE_TRACKER_ADDRESS", c.NonceTrackerAddress},
		{"VALIDATOR_ADDRESS", c.ValidatorAddress},
	}
	for _, a := range addresses {
		if a.value == "" {
			return fmt.Errorf("%s is required", a.name)
		}
		if !common.IsHexAddress(a.value) {
			return fmt.Errorf("%s is not a valid address: %s", a.name, a.value)
		}
		if common.HexToAddress(a.value) == (common.Address{}) {
			return fmt.Errorf("%s must not be the zero address", a.name)
		}
	}

	if c.AuthorizationScope != AuthorizationScopeChain && c.AuthorizationScope != AuthorizationScopeSponsor {
		return fmt.Errorf("AUTHORIZATION_SCOPE must be '%s' or '%s', got: %s",
			AuthorizationScopeChain, AuthorizationScopeSponsor, c.AuthorizationScope)
	}

	switch c.SignerBackend {
	case SignerBackendLocal:
		if len(c.SignerPrivateKeys) == 0 {
			return fmt.Errorf("SIGNER_PRIVATE_KEYS is required when SIGNER_BACKEND is '%s'", SignerBackendLocal)
		}
	case SignerBackendShares:
		if c.SignerKeyDir == "" {
			return fmt.Errorf("SIGNER_KEY_DIR is required when SIGNER_BACKEND is '%s'", SignerBackendShares)
		}
	default:
		return fmt.Errorf("SIGNER_BACKEND must be '%s' or '%s', got: %s",
			SignerBackendLocal, SignerBackendShares, c.SignerBackend)
	}

	if err := c.ValidateKMS(); err != nil {
		return err
	}

	if c.ReceiptPollInterval <= 0 {
		return fmt.Errorf("RECEIPT_POLL_INTERVAL must be positive")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got: %d", c.Port)
	}

	return nil
}

// ValidateKMS checks the KMS provider settings alone
func (c *Config) ValidateKMS() error {
	switch c.KMSProvider {
	case "local", "":
		if c.KMSLocalMasterKey == "" {
			return fmt.Errorf("KMS_LOCAL_MASTER_KEY is required when KMS_PROVIDER is 'local'")
		}
	case "aws-kms":
		if c.KMSAWSKeyID == "" || c.KMSAWSRegion == "" {
			return fmt.Errorf("KMS_AWS_KEY_ID and KMS_AWS_REGION are required when KMS_PROVIDER is 'aws-kms'")
		}
	case "vault":
		if c.KMSVaultAddress == "" || c.KMSVaultToken == "" || c.KMSVaultTransitKey == "" {
			return fmt.Errorf("KMS_VAULT_ADDRESS, KMS_VAULT_TOKEN and KMS_VAULT_TRANSIT_KEY are required when KMS_PROVIDER is 'vault'")
		}
	default:
		return fmt.Errorf("unsupported KMS_PROVIDER: %s", c.KMSProvider)
	}
	return nil
}

// Canonical builds the canonical account configuration for the given chain.
// A configured CHAIN_ID must agree with the chain the RPC reports.
func (c *Config) Canonical(rpcChainID *big.Int) (types.CanonicalConfig, error) {
	if rpcChainID == nil || rpcChainID.Sign() <= 0 {
		return types.CanonicalConfig{}, fmt.Errorf("invalid chain id from RPC: %v", rpcChainID)
	}
	if c.ChainID != 0 && rpcChainID.Cmp(big.NewInt(c.ChainID)) != 0 {
		return types.CanonicalConfig{}, fmt.Errorf("CHAIN_ID %d does not match RPC chain id %s", c.ChainID, rpcChainID)
	}

	return types.CanonicalConfig{
		ChainID:                new(big.Int).Set(rpcChainID),
		ExpectedDelegate:       common.HexToAddress(c.CanonicalDelegate),
		ExpectedImplementation: common.HexToAddress(c.CanonicalImplementation),
		NonceTracker:           common.HexToAddress(c.NonceTrackerAddress),
		Validator:              common.HexToAddress(c.ValidatorAddress),
	}, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	valueStr = strings.ToLower(valueStr)
	return valueStr == "true" || valueStr == "1" || valueStr == "yes"
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvList splits a comma separated variable, dropping empty entries
func getEnvList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
