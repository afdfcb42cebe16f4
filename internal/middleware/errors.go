package middleware

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/better-wallet/delegate-recovery/pkg/errors"
)

// WriteError writes err as a JSON error body with its status code
func WriteError(w http.ResponseWriter, err *apperrors.AppError) {
	status := err.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
