// Package inspect reads the delegate, implementation and owner cursor of an
// upgraded EOA.
package inspect

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/better-wallet/delegate-recovery/internal/eth"
	"github.com/better-wallet/delegate-recovery/internal/logger"
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

// Inspector reads AccountFacts. The three reads are independent and are
// issued concurrently; the first failure cancels the others.
type Inspector struct {
	reader eth.ChainReader
	now    func() time.Time
}

// New creates an inspector over reader
func New(reader eth.ChainReader) *Inspector {
	return &Inspector{reader: reader, now: time.Now}
}

// Inspect returns a fresh read of account. Read failures propagate unchanged
// (chain read or transient chain errors); there are no retries here.
func (i *Inspector) Inspect(ctx context.Context, account common.Address) (*types.AccountFacts, error) {
	var (
		code       []byte
		implWord   common.Hash
		cursorWord common.Hash
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		code, err = i.reader.CodeAt(gctx, account)
		return err
	})
	g.Go(func() error {
		var err error
		implWord, err = i.reader.StorageAt(gctx, account, eth.ImplementationSlot)
		return err
	})
	g.Go(func() error {
		var err error
		cursorWord, err = i.reader.StorageAt(gctx, account, eth.OwnerCursorSlot)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	facts := &types.AccountFacts{
		Address:        account,
		Code:           code,
		Implementation: common.BytesToAddress(implWord.Bytes()),
		OwnerCursor:    cursorWord.Big(),
		ReadAt:         i.now(),
	}
	if delegate, ok := eth.ParseDelegation(code); ok {
		facts.Delegate = &delegate
	}

	logger.Debug(ctx, "inspected account",
		"code_len", len(code),
		"delegated", facts.Delegate != nil,
		"implementation", facts.Implementation.Hex(),
		"owner_cursor", facts.OwnerCursor.String(),
	)

	return facts, nil
}
