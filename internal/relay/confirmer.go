package relay

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/better-wallet/delegate-recovery/internal/eth"
	apperrors "github.com/better-wallet/delegate-recovery/pkg/errors"
)

// maxIntervalFactor caps the poll interval at this multiple of the initial one
const maxIntervalFactor = 8

// Confirmer polls for receipts of relayed transactions
type Confirmer struct {
	receipts eth.ReceiptReader
	interval time.Duration
}

// NewConfirmer polls receipts starting at interval, backing off exponentially
func NewConfirmer(receipts eth.ReceiptReader, interval time.Duration) *Confirmer {
	return &Confirmer{receipts: receipts, interval: interval}
}

// WaitMined blocks until txHash is mined and returns its receipt, whatever its
// status. It gives up only when ctx is done or a read fails permanently.
func (c *Confirmer) WaitMined(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	var receipt *ethtypes.Receipt

	poll := func() error {
		r, err := c.receipts.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			receipt = r
			return nil
		case errors.Is(err, eth.ErrReceiptNotFound), errors.Is(err, apperrors.ErrTransientChain):
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	if err := backoff.Retry(poll, backoff.WithContext(c.backOff(), ctx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperrors.ChainRead("wait_receipt", ctxErr)
		}
		return nil, err
	}
	return receipt, nil
}

func (c *Confirmer) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.interval
	b.MaxInterval = maxIntervalFactor * c.interval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
