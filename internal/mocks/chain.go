// Package mocks provides in-memory stand-ins for the chain, the relay and the
// stores, for tests.
package mocks

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/better-wallet/delegate-recovery/internal/authz"
	"github.com/better-wallet/delegate-recovery/internal/eth"
	"github.com/better-wallet/delegate-recovery/internal/nonce"
	"github.com/better-wallet/delegate-recovery/internal/recoverymsg"
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

// Submission records one operation handed to the fake relay
type Submission struct {
	Account   common.Address
	Operation types.PlanOperation
	TxHash    common.Hash
	Reverted  bool
}

type fakeAccount struct {
	code        []byte
	storage     map[common.Hash]common.Hash
	balance     *big.Int
	txNonce     uint64
	replayNonce *big.Int
}

// FakeChain is an in-memory chain plus relay. Submissions are mined
// immediately: signatures are checked against the chain's own view exactly
// as the proxy and the EIP-7702 processing would, and effects are applied.
type FakeChain struct {
	mu sync.Mutex

	chainID  *big.Int
	tracker  common.Address
	accounts map[common.Address]*fakeAccount
	receipts map[common.Hash]*ethtypes.Receipt
	block    uint64

	submissions []Submission

	readErr     error
	submitErr   error
	revert      bool
	ineffective bool
	dropped     bool
	onSubmit    func(account common.Address, op types.PlanOperation)
}

// NewFakeChain creates an empty chain whose nonce tracker lives at tracker
func NewFakeChain(chainID *big.Int, tracker common.Address) *FakeChain {
	return &FakeChain{
		chainID:  new(big.Int).Set(chainID),
		tracker:  tracker,
		accounts: make(map[common.Address]*fakeAccount),
		receipts: make(map[common.Hash]*ethtypes.Receipt),
	}
}

func (c *FakeChain) account(addr common.Address) *fakeAccount {
	a, ok := c.accounts[addr]
	if !ok {
		a = &fakeAccount{
			storage:     make(map[common.Hash]common.Hash),
			balance:     new(big.Int),
			replayNonce: new(big.Int),
		}
		c.accounts[addr] = a
	}
	return a
}

// Install puts account in the canonical healthy configuration
func (c *FakeChain) Install(account common.Address, canonical types.CanonicalConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := c.account(account)
	a.code = eth.DelegationCode(canonical.ExpectedDelegate)
	a.storage[eth.ImplementationSlot] = common.BytesToHash(canonical.ExpectedImplementation.Bytes())
	a.storage[eth.OwnerCursorSlot] = common.BigToHash(big.NewInt(1))
}

// Disrupt breaks the aspects of account named by state, pointing wrong
// delegates and implementations at bad.
func (c *FakeChain) Disrupt(account common.Address, state types.DisruptionState, bad common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := c.account(account)
	if state.DelegateWrong() {
		a.code = eth.DelegationCode(bad)
	}
	if state.ImplementationWrong() {
		a.storage[eth.ImplementationSlot] = common.BytesToHash(bad.Bytes())
	}
	if state.OwnershipWrong() {
		delete(a.storage, eth.OwnerCursorSlot)
	}
}

func (c *FakeChain) SetCode(account common.Address, code []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.account(account).code = append([]byte(nil), code...)
}

func (c *FakeChain) SetReplayNonce(account common.Address, n *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.account(account).replayNonce = new(big.Int).Set(n)
}

func (c *FakeChain) SetAccountNonce(account common.Address, n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.account(account).txNonce = n
}

// ReplayNonce returns the tracker nonce of account
func (c *FakeChain) ReplayNonce(account common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.account(account).replayNonce)
}

// FailReads makes every read return err; nil restores reads
func (c *FakeChain) FailReads(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

// FailSubmissions makes the relay refuse every operation with err
func (c *FakeChain) FailSubmissions(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitErr = err
}

// RevertSubmissions mines every operation with status 0
func (c *FakeChain) RevertSubmissions(revert bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revert = revert
}

// IgnoreSubmissions mines every operation successfully without effect
func (c *FakeChain) IgnoreSubmissions(ignore bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ineffective = ignore
}

// DropSubmissions accepts every operation but never mines it, as if the
// transaction fell out of the mempool
func (c *FakeChain) DropSubmissions(drop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped = drop
}

// OnSubmit runs fn before each submission is processed. fn may change chain
// state, e.g. to race a concurrent transaction against the plan.
func (c *FakeChain) OnSubmit(fn func(account common.Address, op types.PlanOperation)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSubmit = fn
}

// Submissions returns every operation handed to the relay, in order
func (c *FakeChain) Submissions() []Submission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Submission(nil), c.submissions...)
}

func (c *FakeChain) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	return append([]byte(nil), c.account(account).code...), nil
}

func (c *FakeChain) StorageAt(ctx context.Context, account common.Address, slot common.Hash) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return common.Hash{}, c.readErr
	}
	return c.account(account).storage[slot], nil
}

// CallContract answers nonces(address) on the tracker
func (c *FakeChain) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	if to != c.tracker || len(data) != 36 {
		return nil, fmt.Errorf("execution reverted")
	}
	account := common.BytesToAddress(data[4:])
	if string(nonce.PackNoncesCall(account)) != string(data) {
		return nil, fmt.Errorf("execution reverted")
	}
	return nonce.PackNoncesResult(c.account(account).replayNonce), nil
}

func (c *FakeChain) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	return new(big.Int).Set(c.account(account).balance), nil
}

func (c *FakeChain) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return 0, c.readErr
	}
	return c.account(account).txNonce, nil
}

func (c *FakeChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	receipt, ok := c.receipts[txHash]
	if !ok {
		return nil, eth.ErrReceiptNotFound
	}
	return receipt, nil
}

// Submit hands op to the fake relay and mines it
func (c *FakeChain) Submit(ctx context.Context, account common.Address, op types.PlanOperation) (common.Hash, error) {
	c.mu.Lock()
	hook := c.onSubmit
	c.mu.Unlock()
	if hook != nil {
		hook(account, op)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.submitErr != nil {
		return common.Hash{}, c.submitErr
	}

	if c.dropped {
		c.block++
		s := Submission{Account: account, Operation: op}
		s.TxHash = crypto.Keccak256Hash(big.NewInt(int64(c.block)).Bytes(), account.Bytes())
		c.submissions = append(c.submissions, s)
		return s.TxHash, nil
	}

	a := c.account(account)
	err := c.verify(account, a, op)
	reverted := c.revert || err != nil
	if !reverted && !c.ineffective {
		c.apply(a, op)
	}

	return c.mine(Submission{Account: account, Operation: op, Reverted: reverted}), nil
}

// Fund credits account
func (c *FakeChain) Fund(ctx context.Context, account common.Address, amount *big.Int) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.submitErr != nil {
		return common.Hash{}, c.submitErr
	}
	a := c.account(account)
	a.balance.Add(a.balance, amount)
	return c.mine(Submission{Account: account, Operation: types.PlanOperation{Kind: types.OpFund}}), nil
}

// EraseOwnerStorage clears the owner cursor of account
func (c *FakeChain) EraseOwnerStorage(ctx context.Context, account common.Address) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.submitErr != nil {
		return common.Hash{}, c.submitErr
	}
	delete(c.account(account).storage, eth.OwnerCursorSlot)
	return c.mine(Submission{Account: account, Operation: types.PlanOperation{Kind: types.OpEraseOwnerStorage}}), nil
}

func (c *FakeChain) mine(s Submission) common.Hash {
	c.block++
	s.TxHash = crypto.Keccak256Hash(big.NewInt(int64(c.block)).Bytes(), s.Account.Bytes())

	status := ethtypes.ReceiptStatusSuccessful
	if s.Reverted {
		status = ethtypes.ReceiptStatusFailed
	}
	c.receipts[s.TxHash] = &ethtypes.Receipt{
		Status:      status,
		TxHash:      s.TxHash,
		BlockNumber: new(big.Int).SetUint64(c.block),
	}
	c.submissions = append(c.submissions, s)
	return s.TxHash
}

var errShape = errors.New("operation does not match its kind")

func (c *FakeChain) verify(account common.Address, a *fakeAccount, op types.PlanOperation) error {
	switch op.Kind {
	case types.OpSubmitAuthorization:
		if op.Authorization == nil || op.ImplementationReset != nil {
			return errShape
		}
	case types.OpSetImplementation:
		if op.Authorization != nil || op.ImplementationReset == nil {
			return errShape
		}
	case types.OpUpgradeAndSetImplementation:
		if op.Authorization == nil || op.ImplementationReset == nil {
			return errShape
		}
	default:
		return fmt.Errorf("unsupported operation %s", op.Kind)
	}

	if op.Authorization != nil {
		if err := c.verifyAuthorization(account, a, op.Authorization); err != nil {
			return err
		}
	}
	if op.ImplementationReset != nil {
		if err := c.verifyReset(account, a, op.ImplementationReset); err != nil {
			return err
		}
	}
	return nil
}

func (c *FakeChain) verifyAuthorization(account common.Address, a *fakeAccount, auth *types.Authorization) error {
	authority, err := authz.Authority(auth)
	if err != nil {
		return err
	}
	if authority != account {
		return fmt.Errorf("authorization signed by %s", authority.Hex())
	}
	if auth.ChainID != nil && auth.ChainID.Sign() != 0 && auth.ChainID.Cmp(c.chainID) != 0 {
		return fmt.Errorf("authorization for chain %s", auth.ChainID)
	}
	if auth.Nonce != a.txNonce {
		return fmt.Errorf("authorization nonce %d, account nonce %d", auth.Nonce, a.txNonce)
	}
	return nil
}

func (c *FakeChain) verifyReset(account common.Address, a *fakeAccount, r *types.SignedImplementationReset) error {
	onChain := types.ImplementationReset{
		ChainID:               c.chainID,
		Proxy:                 account,
		Nonce:                 a.replayNonce,
		CurrentImplementation: common.BytesToAddress(a.storage[eth.ImplementationSlot].Bytes()),
		NewImplementation:     r.NewImplementation,
		CallData:              r.CallData,
		Validator:             r.Validator,
		AllowCrossChainReplay: r.AllowCrossChainReplay,
	}
	hash, err := recoverymsg.ImplementationResetHash(onChain)
	if err != nil {
		return err
	}
	signer, err := recoverymsg.RecoverSigner(hash, r.Signature)
	if err != nil {
		return err
	}
	if signer != account {
		return fmt.Errorf("invalid implementation reset signature")
	}

	if len(r.CallData) > 0 {
		if _, err := recoverymsg.DecodeOwnerInitCallData(r.CallData); err != nil {
			return err
		}
		if a.storage[eth.OwnerCursorSlot].Big().Sign() != 0 {
			return fmt.Errorf("wallet already initialized")
		}
	}
	return nil
}

func (c *FakeChain) apply(a *fakeAccount, op types.PlanOperation) {
	if auth := op.Authorization; auth != nil {
		a.code = eth.DelegationCode(auth.ContractAddress)
		a.txNonce++
	}
	if r := op.ImplementationReset; r != nil {
		a.storage[eth.ImplementationSlot] = common.BytesToHash(r.NewImplementation.Bytes())
		a.replayNonce = new(big.Int).Add(a.replayNonce, big.NewInt(1))
		if len(r.CallData) > 0 {
			owners, _ := recoverymsg.DecodeOwnerInitCallData(r.CallData)
			a.storage[eth.OwnerCursorSlot] = common.BigToHash(big.NewInt(int64(len(owners))))
		}
	}
}

var _ eth.ChainReader = (*FakeChain)(nil)
var _ eth.ReceiptReader = (*FakeChain)(nil)
