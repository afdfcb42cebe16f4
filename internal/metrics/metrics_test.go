package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/better-wallet/delegate-recovery/pkg/errors"
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

func TestObserveRecovery(t *testing.T) {
	m := New()

	m.ObserveRecovery(types.StrategyCombined, nil, false, 3*time.Second)
	m.ObserveRecovery(types.StrategyNone, nil, true, time.Millisecond)
	m.ObserveRecovery(types.StrategyImplementationOnly, apperrors.RecoveryVerificationFailed("still disrupted"), false, time.Second)
	m.ObserveRecovery("", errors.New("boom"), false, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.recoveries.WithLabelValues("combined", OutcomeSucceeded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recoveries.WithLabelValues("none", OutcomeNoop)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recoveries.WithLabelValues("implementation-only", OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recoveries.WithLabelValues("unselected", OutcomeFailed)))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues(apperrors.ErrCodeRecoveryVerificationFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues(apperrors.ErrCodeInternalError)))
}

func TestObserveInspection(t *testing.T) {
	m := New()

	m.ObserveInspection(types.Healthy, 10*time.Millisecond)
	m.ObserveInspection(types.DelegateWrong|types.OwnershipWrong, 10*time.Millisecond)
	m.ObserveInspection(types.Healthy, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.states.WithLabelValues("healthy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.states.WithLabelValues("delegate+ownership")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRecovery(types.StrategyDelegateOnly, nil, false, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `delegate_recovery_recoveries_total{outcome="succeeded",strategy="delegate-only"} 1`))
	assert.Contains(t, body, "go_goroutines")
}
