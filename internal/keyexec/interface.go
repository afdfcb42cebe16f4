// Package keyexec holds the account keys used to sign recovery messages and
// the KMS providers that seal key material at rest.
package keyexec

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	apperrors "github.com/better-wallet/delegate-recovery/pkg/errors"
)

// Signer signs on behalf of one account
type Signer interface {
	// Address returns the account the key controls
	Address() common.Address

	// SignHash signs a 32-byte digest as is and returns r || s || v with v in {27, 28}
	SignHash(ctx context.Context, hash common.Hash) ([]byte, error)

	// SignAuthorization signs an EIP-7702 tuple
	SignAuthorization(ctx context.Context, auth ethtypes.SetCodeAuthorization) (ethtypes.SetCodeAuthorization, error)
}

// KeyMaterial is an account key split 2-of-2. The exec share is sealed by
// the KMS provider and only opened for the duration of one signature.
type KeyMaterial struct {
	Address         common.Address
	AuthShare       []byte
	SealedExecShare []byte
	Provider        string
	Version         int
}

func keyOperationFailed(op string, err error) *apperrors.AppError {
	return &apperrors.AppError{
		Code:       apperrors.ErrCodeKeyOperationFailed,
		Message:    "Key operation failed",
		Detail:     op,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}
