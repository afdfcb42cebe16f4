package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/better-wallet/delegate-recovery/internal/logger"
	"github.com/better-wallet/delegate-recovery/internal/middleware"
	apperrors "github.com/better-wallet/delegate-recovery/pkg/errors"
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

const maxAttemptLimit = 200

// ListAccountsResponse lists the managed accounts
type ListAccountsResponse struct {
	Accounts []common.Address `json:"accounts"`
}

// RecoverResponse is the body of a recover call. A failed recovery still
// returns the recorded attempt next to the error.
type RecoverResponse struct {
	Attempt *types.RecoveryAttempt `json:"attempt,omitempty"`
	Error   *apperrors.AppError    `json:"error,omitempty"`
}

// ListAttemptsResponse lists recorded attempts, newest first
type ListAttemptsResponse struct {
	Attempts []*types.RecoveryAttempt `json:"attempts"`
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := s.service.Accounts()
	if accounts == nil {
		accounts = []common.Address{}
	}
	s.writeJSON(w, http.StatusOK, ListAccountsResponse{Accounts: accounts})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	account, ok := s.accountParam(w, r)
	if !ok {
		return
	}

	status, err := s.service.Status(r.Context(), account)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	account, ok := s.accountParam(w, r)
	if !ok {
		return
	}

	// A client disconnect must not abandon a recovery between broadcast
	// and verification.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), RecoverTimeout)
	defer cancel()

	attempt, err := s.service.Recover(ctx, account)
	if err != nil {
		appErr := toAppError(err)
		if attempt == nil {
			s.writeError(w, appErr)
			return
		}
		logger.Warn(r.Context(), "recovery request failed", "error_code", appErr.Code)
		s.writeJSON(w, appErr.StatusCode, RecoverResponse{Attempt: attempt, Error: appErr})
		return
	}
	s.writeJSON(w, http.StatusOK, RecoverResponse{Attempt: attempt})
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	account, ok := s.accountParam(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxAttemptLimit {
			s.writeError(w, apperrors.NewWithDetail(
				apperrors.ErrCodeBadRequest,
				"Invalid limit",
				"limit must be between 1 and 200",
				http.StatusBadRequest,
			))
			return
		}
		limit = n
	}

	attempts, err := s.service.ListAttempts(r.Context(), account, limit)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if attempts == nil {
		attempts = []*types.RecoveryAttempt{}
	}
	s.writeJSON(w, http.StatusOK, ListAttemptsResponse{Attempts: attempts})
}

// accountParam parses the {address} path value, writing a 400 on failure
func (s *Server) accountParam(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := r.PathValue("address")
	if !common.IsHexAddress(raw) {
		s.writeError(w, apperrors.NewWithDetail(
			apperrors.ErrCodeBadRequest,
			"Invalid account address",
			"address must be 20 bytes of hex",
			http.StatusBadRequest,
		))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// handleError maps err to its response. Errors that are not AppErrors are
// logged and hidden behind a generic 500.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		logger.Error(r.Context(), "request failed", "error", err)
	}
	s.writeError(w, appErr)
}

func toAppError(err error) *apperrors.AppError {
	if appErr, ok := apperrors.IsAppError(err); ok {
		return appErr
	}
	return apperrors.ErrInternalError
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, err *apperrors.AppError) {
	middleware.WriteError(w, err)
}
