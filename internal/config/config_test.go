package config

import (
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDelegate       = "0x7702cb554e6bFb442cb743A7dF23154544a7176C"
	testImplementation = "0x000100abaad02f1cfC8Bbe32bD5a564817339E72"
	testNonceTracker   = "0xD0Ff13c28679FDd75Bc09c0a430a0089bf8b95a8"
	testValidator      = "0x79A33f950b90C7d07E66950daedf868BD0cDcF96"
)

func validConfig() *Config {
	return &Config{
		RPCURL:                  "http://localhost:8545",
		RelayURL:                "http://localhost:9000",
		ReceiptPollInterval:     time.Second,
		PostgresDSN:             "postgres://localhost:5432/test",
		CanonicalDelegate:       testDelegate,
		CanonicalImplementation: testImplementation,
		NonceTrackerAddress:     testNonceTracker,
		ValidatorAddress:        testValidator,
		AuthorizationScope:      AuthorizationScopeChain,
		SignerBackend:           SignerBackendLocal,
		SignerPrivateKeys:       []string{"b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"},
		KMSProvider:             "local",
		KMSLocalMasterKey:       "test-master-key-32-bytes-long!!",
		Port:                    8080,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid local signer config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "valid shares signer with vault",
			mutate: func(c *Config) {
				c.SignerBackend = SignerBackendShares
				c.SignerPrivateKeys = nil
				c.SignerKeyDir = "/var/lib/recovery/keys"
				c.KMSProvider = "vault"
				c.KMSVaultAddress = "http://localhost:8200"
				c.KMSVaultToken = "s.token123"
				c.KMSVaultTransitKey = "recovery"
			},
			wantErr: false,
		},
		{
			name: "valid sponsor scope with aws kms",
			mutate: func(c *Config) {
				c.AuthorizationScope = AuthorizationScopeSponsor
				c.KMSProvider = "aws-kms"
				c.KMSAWSKeyID = "alias/recovery"
				c.KMSAWSRegion = "us-east-1"
			},
			wantErr: false,
		},
		{
			name:    "missing RPC URL",
			mutate:  func(c *Config) { c.RPCURL = "" },
			wantErr: true,
			errMsg:  "RPC_URL is required",
		},
		{
			name:    "missing relay URL",
			mutate:  func(c *Config) { c.RelayURL = "" },
			wantErr: true,
			errMsg:  "RELAY_URL is required",
		},
		{
			name:    "missing PostgresDSN",
			mutate:  func(c *Config) { c.PostgresDSN = "" },
			wantErr: true,
			errMsg:  "POSTGRES_DSN is required",
		},
		{
			name:    "missing delegate",
			mutate:  func(c *Config) { c.CanonicalDelegate = "" },
			wantErr: true,
			errMsg:  "CANONICAL_DELEGATE is required",
		},
		{
			name:    "malformed implementation",
			mutate:  func(c *Config) { c.CanonicalImplementation = "0x1234" },
			wantErr: true,
			errMsg:  "CANONICAL_IMPLEMENTATION is not a valid address",
		},
		{
			name:    "zero validator",
			mutate:  func(c *Config) { c.ValidatorAddress = "0x0000000000000000000000000000000000000000" },
			wantErr: true,
			errMsg:  "VALIDATOR_ADDRESS must not be the zero address",
		},
		{
			name:    "unknown authorization scope",
			mutate:  func(c *Config) { c.AuthorizationScope = "any" },
			wantErr: true,
			errMsg:  "AUTHORIZATION_SCOPE must be",
		},
		{
			name:    "local signer without keys",
			mutate:  func(c *Config) { c.SignerPrivateKeys = nil },
			wantErr: true,
			errMsg:  "SIGNER_PRIVATE_KEYS is required",
		},
		{
			name: "shares signer without key dir",
			mutate: func(c *Config) {
				c.SignerBackend = SignerBackendShares
			},
			wantErr: true,
			errMsg:  "SIGNER_KEY_DIR is required",
		},
		{
			name:    "unknown signer backend",
			mutate:  func(c *Config) { c.SignerBackend = "hsm" },
			wantErr: true,
			errMsg:  "SIGNER_BACKEND must be",
		},
		{
			name:    "local kms without master key",
			mutate:  func(c *Config) { c.KMSLocalMasterKey = "" },
			wantErr: true,
			errMsg:  "KMS_LOCAL_MASTER_KEY is required",
		},
		{
			name:    "unsupported kms provider",
			mutate:  func(c *Config) { c.KMSProvider = "gcp-kms" },
			wantErr: true,
			errMsg:  "unsupported KMS_PROVIDER",
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Port = 70000 },
			wantErr: true,
			errMsg:  "PORT must be between",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_Canonical(t *testing.T) {
	t.Run("builds from RPC chain id", func(t *testing.T) {
		cfg := validConfig()

		canonical, err := cfg.Canonical(big.NewInt(84532))
		require.NoError(t, err)

		assert.Equal(t, int64(84532), canonical.ChainID.Int64())
		assert.Equal(t, common.HexToAddress(testDelegate), canonical.ExpectedDelegate)
		assert.Equal(t, common.HexToAddress(testImplementation), canonical.ExpectedImplementation)
		assert.Equal(t, common.HexToAddress(testNonceTracker), canonical.NonceTracker)
		assert.Equal(t, common.HexToAddress(testValidator), canonical.Validator)
	})

	t.Run("chain id copy is independent", func(t *testing.T) {
		cfg := validConfig()
		rpcChainID := big.NewInt(1)

		canonical, err := cfg.Canonical(rpcChainID)
		require.NoError(t, err)

		rpcChainID.SetInt64(2)
		assert.Equal(t, int64(1), canonical.ChainID.Int64())
	})

	t.Run("configured chain id mismatch", func(t *testing.T) {
		cfg := validConfig()
		cfg.ChainID = 1

		_, err := cfg.Canonical(big.NewInt(8453))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not match")
	})

	t.Run("zero chain id rejected", func(t *testing.T) {
		_, err := validConfig().Canonical(big.NewInt(0))
		require.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	env := map[string]string{
		"RPC_URL":                  "http://localhost:8545",
		"RELAY_URL":                "http://localhost:9000",
		"POSTGRES_DSN":             "postgres://localhost:5432/test",
		"CANONICAL_DELEGATE":       testDelegate,
		"CANONICAL_IMPLEMENTATION": testImplementation,
		"NONCE_TRACKER_ADDRESS":    testNonceTracker,
		"VALIDATOR_ADDRESS":        testValidator,
		"SIGNER_PRIVATE_KEYS":      "aa, bb ,,cc",
		"KMS_LOCAL_MASTER_KEY":     "test-master-key-32-bytes-long!!",
		"RECEIPT_POLL_INTERVAL":    "500ms",
		"ALLOW_CROSS_CHAIN_REPLAY": "yes",
		"AUTHORIZATION_SCOPE":      "",
		"SIGNER_BACKEND":           "",
		"KMS_PROVIDER":             "",
		"PORT":                     "",
		"CHAIN_ID":                 "",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"aa", "bb", "cc"}, cfg.SignerPrivateKeys)
	assert.Equal(t, 500*time.Millisecond, cfg.ReceiptPollInterval)
	assert.True(t, cfg.AllowCrossChainReplay)
	assert.Equal(t, AuthorizationScopeChain, cfg.AuthorizationScope)
	assert.Equal(t, SignerBackendLocal, cfg.SignerBackend)
	assert.Equal(t, 8080, cfg.Port)
}

func TestFromEnv_SkipsValidation(t *testing.T) {
	t.Setenv("RPC_URL", "")
	t.Setenv("KMS_PROVIDER", "vault")
	t.Setenv("KMS_VAULT_ADDRESS", "https://vault.internal:8200")
	t.Setenv("KMS_VAULT_TOKEN", "")
	t.Setenv("KMS_VAULT_TRANSIT_KEY", "recovery")

	cfg := FromEnv()
	assert.Empty(t, cfg.RPCURL)
	assert.Error(t, cfg.ValidateKMS())

	t.Setenv("KMS_VAULT_TOKEN", "s.token")
	assert.NoError(t, FromEnv().ValidateKMS())
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_GET_ENV_INT_VAR"
	defer os.Unsetenv(key)

	t.Run("returns default when env not set", func(t *testing.T) {
		os.Unsetenv(key)
		assert.Equal(t, 42, getEnvInt(key, 42))
	})

	t.Run("returns parsed int when set", func(t *testing.T) {
		os.Setenv(key, "100")
		assert.Equal(t, 100, getEnvInt(key, 42))
	})

	t.Run("returns default when value is not a valid int", func(t *testing.T) {
		os.Setenv(key, "not-a-number")
		assert.Equal(t, 42, getEnvInt(key, 42))
	})
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_GET_ENV_BOOL_VAR"
	defer os.Unsetenv(key)

	tests := []struct {
		name     string
		envValue string
		setEnv   bool
		defValue bool
		expected bool
	}{
		{name: "returns default when env not set", setEnv: false, defValue: true, expected: true},
		{name: "true value", envValue: "true", setEnv: true, expected: true},
		{name: "TRUE value (case insensitive)", envValue: "TRUE", setEnv: true, expected: true},
		{name: "1 value", envValue: "1", setEnv: true, expected: true},
		{name: "no value", envValue: "no", setEnv: true, defValue: true, expected: false},
		{name: "invalid value returns false", envValue: "invalid", setEnv: true, defValue: true, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnv {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			assert.Equal(t, tt.expected, getEnvBool(key, tt.defValue))
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	key := "TEST_GET_ENV_DURATION_VAR"

	t.Setenv(key, "garbage")
	assert.Equal(t, time.Minute, getEnvDuration(key, time.Minute))

	t.Setenv(key, "3s")
	assert.Equal(t, 3*time.Second, getEnvDuration(key, time.Minute))
}
