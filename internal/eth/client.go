package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	apperrors "github.com/better-wallet/delegate-recovery/pkg/errors"
)

// ErrReceiptNotFound is returned while a transaction is not yet mined
var ErrReceiptNotFound = errors.New("receipt not found")

// ChainReader is the read capability the recovery core depends on.
// Every call reads latest state; nothing is cached.
type ChainReader interface {
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
	StorageAt(ctx context.Context, account common.Address, slot common.Hash) (common.Hash, error)
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// ReceiptReader fetches transaction receipts
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Client wraps an Ethereum RPC client
type Client struct {
	client  *ethclient.Client
	chainID *big.Int
}

// NewClient creates a new EVM client and auto-detects chain ID
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL is required")
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	// Auto-detect chain ID from RPC
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	return &Client{
		client:  client,
		chainID: chainID,
	}, nil
}

// ChainIDBig returns the chain ID as big.Int
func (c *Client) ChainIDBig() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// CodeAt returns the code stored at an account
func (c *Client) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	code, err := c.client.CodeAt(ctx, account, nil)
	if err != nil {
		return nil, apperrors.ChainRead("eth_getCode", err)
	}
	return code, nil
}

// StorageAt returns one storage word of an account
func (c *Client) StorageAt(ctx context.Context, account common.Address, slot common.Hash) (common.Hash, error) {
	value, err := c.client.StorageAt(ctx, account, slot, nil)
	if err != nil {
		return common.Hash{}, apperrors.ChainRead("eth_getStorageAt", err)
	}
	return common.BytesToHash(value), nil
}

// CallContract executes a read-only call against latest state
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, apperrors.ChainRead("eth_call", err)
	}
	return out, nil
}

// BalanceAt returns the balance of an address in wei
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := c.client.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, apperrors.ChainRead("eth_getBalance", err)
	}
	return balance, nil
}

// NonceAt returns the confirmed transaction count of an account
func (c *Client) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	nonce, err := c.client.NonceAt(ctx, account, nil)
	if err != nil {
		return 0, apperrors.ChainRead("eth_getTransactionCount", err)
	}
	return nonce, nil
}

// TransactionReceipt returns the receipt of a mined transaction or ErrReceiptNotFound
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := c.client.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, apperrors.ChainRead("eth_getTransactionReceipt", err)
	}
	return receipt, nil
}

// Close closes the client connection
func (c *Client) Close() {
	c.client.Close()
}

var (
	_ ChainReader   = (*Client)(nil)
	_ ReceiptReader = (*Client)(nil)
)
