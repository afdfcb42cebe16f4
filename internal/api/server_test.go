package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/better-wallet/delegate-recovery/internal/app"
	"github.com/better-wallet/delegate-recovery/internal/config"
	"github.com/better-wallet/delegate-recovery/internal/middleware"
	apperrors "github.com/better-wallet/delegate-recovery/pkg/errors"
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

const (
	testSecret  = "operator-secret"
	testAccount = "0x1111111111111111111111111111111111111111"
)

type stubService struct {
	status     *app.AccountStatus
	attempt    *types.RecoveryAttempt
	attempts   []*types.RecoveryAttempt
	err        error
	gotLimit   int
	recoverCtx context.Context
}

func (s *stubService) Status(ctx context.Context, account common.Address) (*app.AccountStatus, error) {
	return s.status, s.err
}

func (s *stubService) Recover(ctx context.Context, account common.Address) (*types.RecoveryAttempt, error) {
	s.recoverCtx = ctx
	return s.attempt, s.err
}

func (s *stubService) ListAttempts(ctx context.Context, account common.Address, limit int) ([]*types.RecoveryAttempt, error) {
	s.gotLimit = limit
	return s.attempts, s.err
}

func (s *stubService) Accounts() []common.Address {
	return []common.Address{common.HexToAddress(testAccount)}
}

type stubDB struct{ err error }

func (d stubDB) Ping(ctx context.Context) error { return d.err }

func newTestServer(t *testing.T, svc RecoveryService, db HealthChecker) http.Handler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testSecret), bcrypt.MinCost)
	require.NoError(t, err)

	srv := NewServer(
		&config.Config{Port: 0},
		svc,
		db,
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		middleware.NewAppAuth(string(hash)),
		middleware.NewRateLimiter(100, 100, true),
	)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if authed {
		req.Header.Set(middleware.AppSecretHeader, testSecret)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *apperrors.AppError {
	t.Helper()
	var body apperrors.AppError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return &body
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		db         HealthChecker
		wantStatus int
	}{
		{"up", stubDB{}, http.StatusOK},
		{"database down", stubDB{err: errors.New("connection refused")}, http.StatusServiceUnavailable},
		{"no database", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &stubService{}, tt.db)
			rec := do(t, h, http.MethodGet, "/health", false)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
		})
	}
}

func TestMetricsUnauthenticated(t *testing.T) {
	h := newTestServer(t, &stubService{}, nil)
	rec := do(t, h, http.MethodGet, "/metrics", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())
}

func TestRoutesRequireSecret(t *testing.T) {
	h := newTestServer(t, &stubService{}, nil)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/v1/accounts"},
		{http.MethodGet, "/v1/accounts/" + testAccount + "/status"},
		{http.MethodPost, "/v1/accounts/" + testAccount + "/recover"},
		{http.MethodGet, "/v1/accounts/" + testAccount + "/attempts"},
	}
	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			rec := do(t, h, route.method, route.path, false)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestListAccounts(t *testing.T) {
	h := newTestServer(t, &stubService{}, nil)
	rec := do(t, h, http.MethodGet, "/v1/accounts", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var body ListAccountsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, []common.Address{common.HexToAddress(testAccount)}, body.Accounts)
}

func TestStatus(t *testing.T) {
	svc := &stubService{status: &app.AccountStatus{
		Account:  common.HexToAddress(testAccount),
		State:    types.DelegateWrong,
		Strategy: types.StrategyDelegateOnly,
		Managed:  true,
	}}
	h := newTestServer(t, svc, nil)

	rec := do(t, h, http.MethodGet, "/v1/accounts/"+testAccount+"/status", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"strategy":"delegate-only"`)
	assert.Contains(t, rec.Body.String(), `"managed":true`)
}

func TestStatus_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"bad address", "/v1/accounts/0x1234/status", nil, http.StatusBadRequest, apperrors.ErrCodeBadRequest},
		{"chain read", "/v1/accounts/" + testAccount + "/status", apperrors.ChainRead("eth_getCode", errors.New("boom")), http.StatusBadGateway, apperrors.ErrCodeChainRead},
		{"internal", "/v1/accounts/" + testAccount + "/status", errors.New("unexpected"), http.StatusInternalServerError, apperrors.ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &stubService{err: tt.err}, nil)
			rec := do(t, h, http.MethodGet, tt.path, true)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestRecover(t *testing.T) {
	attempt := &types.RecoveryAttempt{
		ID:       uuid.New(),
		Account:  common.HexToAddress(testAccount),
		Status:   types.AttemptSucceeded,
		Strategy: types.StrategyCombined,
	}
	svc := &stubService{attempt: attempt}
	h := newTestServer(t, svc, nil)

	rec := do(t, h, http.MethodPost, "/v1/accounts/"+testAccount+"/recover", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var body RecoverResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotNil(t, body.Attempt)
	assert.Equal(t, attempt.ID, body.Attempt.ID)
	assert.Nil(t, body.Error)

	// Detached from the request so a disconnect cannot cancel it.
	require.NotNil(t, svc.recoverCtx)
	_, hasDeadline := svc.recoverCtx.Deadline()
	assert.True(t, hasDeadline)
}

func TestRecover_FailureCarriesAttempt(t *testing.T) {
	attempt := &types.RecoveryAttempt{ID: uuid.New(), Status: types.AttemptFailed}
	svc := &stubService{
		attempt: attempt,
		err:     apperrors.RecoveryVerificationFailed("still disrupted: delegate"),
	}
	h := newTestServer(t, svc, nil)

	rec := do(t, h, http.MethodPost, "/v1/accounts/"+testAccount+"/recover", true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body RecoverResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotNil(t, body.Attempt)
	require.NotNil(t, body.Error)
	assert.Equal(t, apperrors.ErrCodeRecoveryVerificationFailed, body.Error.Code)
}

func TestRecover_InProgress(t *testing.T) {
	svc := &stubService{err: apperrors.RecoveryInProgress(testAccount)}
	h := newTestServer(t, svc, nil)

	rec := do(t, h, http.MethodPost, "/v1/accounts/"+testAccount+"/recover", true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperrors.ErrCodeRecoveryInProgress, decodeError(t, rec).Code)
}

func TestRecover_WrongMethod(t *testing.T) {
	h := newTestServer(t, &stubService{}, nil)
	rec := do(t, h, http.MethodGet, "/v1/accounts/"+testAccount+"/recover", true)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListAttempts(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
	}{
		{"default", "", http.StatusOK, 0},
		{"explicit", "?limit=5", http.StatusOK, 5},
		{"zero", "?limit=0", http.StatusBadRequest, 0},
		{"too large", "?limit=1000", http.StatusBadRequest, 0},
		{"not a number", "?limit=ten", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{}
			h := newTestServer(t, svc, nil)

			rec := do(t, h, http.MethodGet, "/v1/accounts/"+testAccount+"/attempts"+tt.query, true)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantLimit, svc.gotLimit)
			if tt.wantStatus == http.StatusOK {
				assert.True(t, strings.HasPrefix(rec.Body.String(), `{"attempts":[]`))
			}
		})
	}
}
