// Package relay submits signed recovery operations to the relay service,
// which pays gas and broadcasts them, and waits for them to be mined.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/better-wallet/delegate-recovery/internal/logger"
	"github.com/better-wallet/delegate-recovery/internal/recoverymsg"
	apperrors "github.com/better-wallet/delegate-recovery/pkg/errors"
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

const (
	operationsPath = "/v1/operations"
	maxBodyBytes   = 1 << 20
)

// Client talks to the relay HTTP API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a relay client for baseURL
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type operationRequest struct {
	Operation types.RelayOperation `json:"operation"`
	Payload   interface{}          `json:"payload"`
}

type operationResponse struct {
	TxHash  *common.Hash `json:"tx_hash"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
}

type authorizationPayload struct {
	ContractAddress common.Address `json:"contractAddress"`
	ChainID         *hexutil.Big   `json:"chainId"`
	Nonce           hexutil.Uint64 `json:"nonce"`
	Signature       hexutil.Bytes  `json:"signature"`
}

type resetPayload struct {
	NewImplementation     common.Address `json:"newImplementation"`
	CallData              hexutil.Bytes  `json:"callData"`
	Validator             common.Address `json:"validator"`
	Signature             hexutil.Bytes  `json:"signature"`
	AllowCrossChainReplay bool           `json:"allowCrossChainReplay"`
	// Calldata is the packed setImplementation call for relays that forward it as is
	Calldata hexutil.Bytes `json:"calldata"`
}

type submitPayload struct {
	Account             common.Address        `json:"account"`
	Authorization       *authorizationPayload `json:"authorization,omitempty"`
	ImplementationReset *resetPayload         `json:"implementationReset,omitempty"`
}

type fundPayload struct {
	Account common.Address `json:"account"`
	Amount  *hexutil.Big   `json:"amount"`
}

type accountPayload struct {
	Account common.Address `json:"account"`
}

// Submit hands one plan operation to the relay and returns its transaction hash
func (c *Client) Submit(ctx context.Context, account common.Address, op types.PlanOperation) (common.Hash, error) {
	payload := submitPayload{Account: account}

	if a := op.Authorization; a != nil {
		chainID := a.ChainID
		if chainID == nil {
			chainID = new(big.Int)
		}
		payload.Authorization = &authorizationPayload{
			ContractAddress: a.ContractAddress,
			ChainID:         (*hexutil.Big)(chainID),
			Nonce:           hexutil.Uint64(a.Nonce),
			Signature:       a.Signature,
		}
	}
	if r := op.ImplementationReset; r != nil {
		calldata, err := recoverymsg.SetImplementationCallData(r)
		if err != nil {
			return common.Hash{}, err
		}
		payload.ImplementationReset = &resetPayload{
			NewImplementation:     r.NewImplementation,
			CallData:              r.CallData,
			Validator:             r.Validator,
			Signature:             r.Signature,
			AllowCrossChainReplay: r.AllowCrossChainReplay,
			Calldata:              calldata,
		}
	}

	switch op.Kind {
	case types.OpSubmitAuthorization, types.OpSetImplementation, types.OpUpgradeAndSetImplementation:
	default:
		return common.Hash{}, fmt.Errorf("operation %q is not a recovery operation", op.Kind)
	}

	return c.do(ctx, op.Kind, payload)
}

// Fund asks the relay to send amount wei to account
func (c *Client) Fund(ctx context.Context, account common.Address, amount *big.Int) (common.Hash, error) {
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("amount must be positive")
	}
	return c.do(ctx, types.OpFund, fundPayload{Account: account, Amount: (*hexutil.Big)(amount)})
}

// EraseOwnerStorage asks the relay to clear the owner storage of account.
// Only test relays accept this operation.
func (c *Client) EraseOwnerStorage(ctx context.Context, account common.Address) (common.Hash, error) {
	return c.do(ctx, types.OpEraseOwnerStorage, accountPayload{Account: account})
}

func (c *Client) do(ctx context.Context, op types.RelayOperation, payload interface{}) (common.Hash, error) {
	body, err := json.Marshal(operationRequest{Operation: op, Payload: payload})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode relay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+operationsPath, bytes.NewReader(body))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to create relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if requestID := logger.GetRequestID(ctx); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return common.Hash{}, apperrors.RelayFailed(string(op), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return common.Hash{}, apperrors.RelayFailed(string(op), fmt.Errorf("failed to read response: %w", err))
	}

	var out operationResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode < 300 {
			return common.Hash{}, apperrors.RelayFailed(string(op), fmt.Errorf("invalid response: %w", err))
		}
	}

	if resp.StatusCode >= 300 {
		return common.Hash{}, relayError(op, resp.StatusCode, out)
	}
	if out.TxHash == nil || *out.TxHash == (common.Hash{}) {
		return common.Hash{}, apperrors.RelayFailed(string(op), fmt.Errorf("response carries no tx_hash"))
	}

	logger.Info(ctx, "relay accepted operation", "operation", op, "tx_hash", out.TxHash.Hex())
	return *out.TxHash, nil
}

func relayError(op types.RelayOperation, status int, out operationResponse) error {
	cause := fmt.Errorf("relay returned %d: %s", status, out.Message)
	switch out.Code {
	case apperrors.ErrCodeStaleNonce:
		return apperrors.StaleNonce(out.Message)
	case apperrors.ErrCodeSignatureRejected:
		return apperrors.SignatureRejected(string(op), cause)
	default:
		return apperrors.RelayFailed(string(op), cause)
	}
}
