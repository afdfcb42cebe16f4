package mocks

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	apperrors "github.com/better-wallet/delegate-recovery/pkg/errors"
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

// MockKMSProvider seals with AES-GCM under a random key and counts calls
type MockKMSProvider struct {
	mu           sync.Mutex
	aead         cipher.AEAD
	encryptCalls int
	decryptCalls int
	fail         bool
}

// NewMockKMSProvider creates a provider with a fresh random key
func NewMockKMSProvider() *MockKMSProvider {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		panic(err)
	}
	return &MockKMSProvider{aead: aead}
}

func (m *MockKMSProvider) Encrypt(ctx context.Context, data []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.encryptCalls++
	if m.fail {
		return nil, fmt.Errorf("mock KMS encrypt failure")
	}
	nonce := make([]byte, m.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return m.aead.Seal(nonce, nonce, data, nil), nil
}

func (m *MockKMSProvider) Decrypt(ctx context.Context, encryptedData []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.decryptCalls++
	if m.fail {
		return nil, fmt.Errorf("mock KMS decrypt failure")
	}
	n := m.aead.NonceSize()
	if len(encryptedData) < n {
		return nil, fmt.Errorf("ciphertext too short")
	}
	return m.aead.Open(nil, encryptedData[:n], encryptedData[n:], nil)
}

func (m *MockKMSProvider) Provider() string { return "mock" }

// SetShouldFail makes every call fail
func (m *MockKMSProvider) SetShouldFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

// Calls returns the number of encrypt and decrypt calls
func (m *MockKMSProvider) Calls() (encrypt, decrypt int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.encryptCalls, m.decryptCalls
}

// MemoryCredentialStore keeps sealed owner credentials in memory
type MemoryCredentialStore struct {
	mu          sync.Mutex
	credentials map[uuid.UUID]*types.SealedOwnerCredential
	err         error
}

// NewMemoryCredentialStore creates an empty store
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{credentials: make(map[uuid.UUID]*types.SealedOwnerCredential)}
}

// FailWith makes SaveCredential return err
func (s *MemoryCredentialStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *MemoryCredentialStore) SaveCredential(ctx context.Context, cred *types.SealedOwnerCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	if _, ok := s.credentials[cred.Credential.ID]; ok {
		return fmt.Errorf("credential %s already stored", cred.Credential.ID)
	}
	s.credentials[cred.Credential.ID] = cred
	return nil
}

// Get returns a stored credential
func (s *MemoryCredentialStore) Get(id uuid.UUID) (*types.SealedOwnerCredential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.credentials[id]
	return cred, ok
}

// Len returns the number of stored credentials
func (s *MemoryCredentialStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.credentials)
}

// MemoryAttemptStore keeps recovery attempts in memory
type MemoryAttemptStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*types.RecoveryAttempt
}

// NewMemoryAttemptStore creates an empty store
func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{attempts: make(map[uuid.UUID]*types.RecoveryAttempt)}
}

func (s *MemoryAttemptStore) Create(ctx context.Context, attempt *types.RecoveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	attempt.CreatedAt, attempt.UpdatedAt = now, now
	stored := *attempt
	s.attempts[attempt.ID] = &stored
	return nil
}

func (s *MemoryAttemptStore) Update(ctx context.Context, attempt *types.RecoveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempts[attempt.ID]; !ok {
		return apperrors.ErrNotFound
	}
	attempt.UpdatedAt = time.Now().UTC()
	stored := *attempt
	s.attempts[attempt.ID] = &stored
	return nil
}

func (s *MemoryAttemptStore) ListByAccount(ctx context.Context, account common.Address, limit int) ([]*types.RecoveryAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.RecoveryAttempt
	for _, a := range s.attempts {
		if a.Account == account {
			copied := *a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
