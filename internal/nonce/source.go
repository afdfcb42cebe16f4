// Package nonce reads the per-account replay nonce from the on-chain nonce
// tracker and guards against reusing a nonce within one process.
package nonce

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/better-wallet/delegate-recovery/internal/eth"
)

const trackerABI = `[{"type":"function","name":"nonces","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}]`

var tracker = eth.MustParseABI(trackerABI)

// Source reads replay nonces. It never caches: any transaction from the
// account between two reads invalidates the earlier value.
type Source struct {
	reader  eth.ChainReader
	tracker common.Address
}

// NewSource creates a nonce source for the tracker contract at trackerAddress
func NewSource(reader eth.ChainReader, trackerAddress common.Address) *Source {
	return &Source{reader: reader, tracker: trackerAddress}
}

// CurrentNonce returns the nonce the tracker will consume next for account
func (s *Source) CurrentNonce(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := eth.ReadContract(ctx, s.reader, s.tracker, tracker, "nonces", account)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay nonce: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unexpected nonces() output length %d", len(out))
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected nonces() output type %T", out[0])
	}
	return n, nil
}

// PackNoncesCall returns the calldata of nonces(account); used by fakes
// that answer tracker reads.
func PackNoncesCall(account common.Address) []byte {
	data, err := tracker.Pack("nonces", account)
	if err != nil {
		panic(err)
	}
	return data
}

// PackNoncesResult encodes a nonces() return value
func PackNoncesResult(n *big.Int) []byte {
	data, err := tracker.Methods["nonces"].Outputs.Pack(n)
	if err != nil {
		panic(err)
	}
	return data
}
