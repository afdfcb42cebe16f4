package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// AppError represents an application-level error with HTTP status code
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	StatusCode int    `json:"-"`
	Retryable  bool   `json:"retryable"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so the predefined values
// below can be used as errors.Is targets.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Common error codes
const (
	ErrCodeUnauthorized               = "unauthorized"
	ErrCodeNotFound                   = "not_found"
	ErrCodeBadRequest                 = "bad_request"
	ErrCodeConflict                   = "conflict"
	ErrCodeRateLimited                = "rate_limited"
	ErrCodeInternalError              = "internal_error"
	ErrCodeChainRead                  = "chain_read_error"
	ErrCodeTransientChain             = "transient_chain_error"
	ErrCodeStaleNonce                 = "stale_nonce"
	ErrCodeUnsupportedDisruption      = "unsupported_disruption_combination"
	ErrCodeSignatureRejected          = "signature_rejected"
	ErrCodeRecoveryVerificationFailed = "recovery_verification_failed"
	ErrCodeCredentialLoss             = "credential_loss"
	ErrCodeAccountNotUpgraded         = "account_not_upgraded"
	ErrCodeRecoveryInProgress         = "recovery_in_progress"
	ErrCodeRelayFailed                = "relay_error"
	ErrCodeSignerNotFound             = "signer_not_found"
	ErrCodeInvalidAuthorizationScope  = "invalid_authorization_scope"
	ErrCodeKeyOperationFailed         = "key_operation_failed"
)

// Predefined errors, usable as errors.Is targets
var (
	ErrUnauthorized = &AppError{
		Code:       ErrCodeUnauthorized,
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrNotFound = &AppError{
		Code:       ErrCodeNotFound,
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       ErrCodeBadRequest,
		Message:    "Invalid request parameters",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalError = &AppError{
		Code:       ErrCodeInternalError,
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrChainRead                  = &AppError{Code: ErrCodeChainRead}
	ErrTransientChain             = &AppError{Code: ErrCodeTransientChain}
	ErrStaleNonce                 = &AppError{Code: ErrCodeStaleNonce}
	ErrUnsupportedDisruption      = &AppError{Code: ErrCodeUnsupportedDisruption}
	ErrSignatureRejected          = &AppError{Code: ErrCodeSignatureRejected}
	ErrRecoveryVerificationFailed = &AppError{Code: ErrCodeRecoveryVerificationFailed}
	ErrCredentialLoss             = &AppError{Code: ErrCodeCredentialLoss}
	ErrAccountNotUpgraded         = &AppError{Code: ErrCodeAccountNotUpgraded}
	ErrRecoveryInProgress         = &AppError{Code: ErrCodeRecoveryInProgress}
	ErrRelayFailed                = &AppError{Code: ErrCodeRelayFailed}
	ErrSignerNotFound             = &AppError{Code: ErrCodeSignerNotFound}
)

// New creates a new AppError
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewWithDetail creates a new AppError with additional detail
func NewWithDetail(code, message, detail string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Detail:     detail,
		StatusCode: statusCode,
	}
}

// ChainRead wraps a failed chain read. Timeouts and cancelled deadlines are
// reported as transient chain errors instead.
func ChainRead(op string, err error) *AppError {
	if isTimeout(err) {
		return &AppError{
			Code:       ErrCodeTransientChain,
			Message:    "Chain request timed out",
			Detail:     op,
			StatusCode: http.StatusServiceUnavailable,
			Retryable:  true,
			Err:        err,
		}
	}
	return &AppError{
		Code:       ErrCodeChainRead,
		Message:    "Chain read failed",
		Detail:     op,
		StatusCode: http.StatusBadGateway,
		Retryable:  true,
		Err:        err,
	}
}

// StaleNonce reports a signature built against an outdated replay nonce
func StaleNonce(detail string) *AppError {
	return &AppError{
		Code:       ErrCodeStaleNonce,
		Message:    "Replay nonce is stale; rebuild the plan from fresh state",
		Detail:     detail,
		StatusCode: http.StatusConflict,
	}
}

// UnsupportedDisruption reports a disruption state with no recovery strategy
func UnsupportedDisruption(state string) *AppError {
	return &AppError{
		Code:       ErrCodeUnsupportedDisruption,
		Message:    "No recovery strategy for disruption combination",
		Detail:     state,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// SignatureRejected reports an on-chain verifier rejection
func SignatureRejected(detail string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeSignatureRejected,
		Message:    "Signature rejected on-chain",
		Detail:     detail,
		StatusCode: http.StatusUnprocessableEntity,
		Err:        err,
	}
}

// RecoveryVerificationFailed reports a disruption that persists after submission
func RecoveryVerificationFailed(detail string) *AppError {
	return &AppError{
		Code:       ErrCodeRecoveryVerificationFailed,
		Message:    "Disruption persists after recovery",
		Detail:     detail,
		StatusCode: http.StatusConflict,
	}
}

// CredentialLoss reports a minted owner credential that could not be persisted
func CredentialLoss(credentialID string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeCredentialLoss,
		Message:    "New owner credential was not persisted; plan not submitted",
		Detail:     fmt.Sprintf("credential_id: %s", credentialID),
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// AccountNotUpgraded reports an account with no delegation code where one is required
func AccountNotUpgraded(account string) *AppError {
	return &AppError{
		Code:       ErrCodeAccountNotUpgraded,
		Message:    "Account has not been upgraded",
		Detail:     fmt.Sprintf("account: %s", account),
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// RecoveryInProgress reports a second recovery for an account with one in flight
func RecoveryInProgress(account string) *AppError {
	return &AppError{
		Code:       ErrCodeRecoveryInProgress,
		Message:    "A recovery for this account is already in flight",
		Detail:     fmt.Sprintf("account: %s", account),
		StatusCode: http.StatusConflict,
	}
}

// RelayFailed reports a relay that refused or failed to accept an operation
func RelayFailed(operation string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeRelayFailed,
		Message:    "Relay did not accept the operation",
		Detail:     operation,
		StatusCode: http.StatusBadGateway,
		Err:        err,
	}
}

// SignerNotFound reports an account whose key is not held by this process
func SignerNotFound(account string) *AppError {
	return &AppError{
		Code:       ErrCodeSignerNotFound,
		Message:    "No signer configured for account",
		Detail:     fmt.Sprintf("account: %s", account),
		StatusCode: http.StatusNotFound,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsRetryable reports whether the read steps that produced err may be retried
func IsRetryable(err error) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Retryable
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
