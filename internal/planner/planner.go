// Package planner turns the disruption state of an account into the minimal
// set of signed relay operations restoring it, submits them and verifies the
// account afterwards.
package planner

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/better-wallet/delegate-recovery/internal/authz"
	"github.com/better-wallet/delegate-recovery/internal/disruption"
	"github.com/better-wallet/delegate-recovery/internal/keyexec"
	"github.com/better-wallet/delegate-recovery/internal/logger"
	"github.com/better-wallet/delegate-recovery/internal/recoverymsg"
	apperrors "github.com/better-wallet/delegate-recovery/pkg/errors"
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

// Inspector reads fresh account facts
type Inspector interface {
	Inspect(ctx context.Context, account common.Address) (*types.AccountFacts, error)
}

// NonceSource reads the replay nonce from the nonce tracker
type NonceSource interface {
	CurrentNonce(ctx context.Context, account common.Address) (*big.Int, error)
}

// AccountNonceReader reads the transaction nonce an authorization must carry
type AccountNonceReader interface {
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// SignerSource finds the signer of a managed account
type SignerSource interface {
	SignerFor(account common.Address) (keyexec.Signer, error)
}

// CredentialMinter creates new owner credentials
type CredentialMinter interface {
	Mint(ctx context.Context, account common.Address) (*types.SealedOwnerCredential, error)
}

// CredentialStore durably stores minted credentials
type CredentialStore interface {
	SaveCredential(ctx context.Context, cred *types.SealedOwnerCredential) error
}

// Submitter hands an operation to the relay
type Submitter interface {
	Submit(ctx context.Context, account common.Address, op types.PlanOperation) (common.Hash, error)
}

// Confirmer waits for a relayed transaction to be mined
type Confirmer interface {
	WaitMined(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// Options is the signing policy of a planner
type Options struct {
	Canonical             types.CanonicalConfig
	Scope                 authz.Scope
	AllowCrossChainReplay bool
}

// Deps are the collaborators of a planner
type Deps struct {
	Inspector   Inspector
	Nonces      NonceSource
	Accounts    AccountNonceReader
	Builder     *recoverymsg.Builder
	Signers     SignerSource
	Minter      CredentialMinter
	Credentials CredentialStore
	Submitter   Submitter
	Confirmer   Confirmer
}

// Planner plans, executes and verifies recoveries
type Planner struct {
	opts Options
	deps Deps
}

// New creates a planner
func New(opts Options, deps Deps) *Planner {
	return &Planner{opts: opts, deps: deps}
}

// Recover inspects account, plans the recovery and executes it.
// A healthy account yields an outcome without transactions.
func (p *Planner) Recover(ctx context.Context, account common.Address) (*types.RecoveryOutcome, error) {
	plan, err := p.Plan(ctx, account)
	if err != nil {
		return nil, err
	}
	if plan.IsNoop() {
		return &types.RecoveryOutcome{Plan: plan, After: plan.Before, State: plan.State}, nil
	}
	return p.Execute(ctx, plan)
}

// Plan inspects account and builds the signed operations restoring it.
// Nothing is submitted. A minted owner credential is persisted before it is
// referenced by the plan; if that fails the plan is abandoned.
func (p *Planner) Plan(ctx context.Context, account common.Address) (*types.RecoveryPlan, error) {
	ctx = logger.WithAccount(ctx, account)

	facts, err := p.deps.Inspector.Inspect(ctx, account)
	if err != nil {
		return nil, &RecoveryError{Account: account, Err: err}
	}

	state := disruption.Classify(facts, p.opts.Canonical)
	plan := &types.RecoveryPlan{
		Account: account,
		State:   state,
		Before:  facts,
	}
	fail := func(err error) error {
		return &RecoveryError{
			Account:    account,
			State:      state,
			Strategy:   plan.Strategy,
			Before:     facts,
			Credential: plan.Credential,
			Err:        err,
		}
	}

	strategy, err := SelectStrategy(state, facts.Unupgraded())
	if err != nil {
		return nil, fail(err)
	}
	plan.Strategy = strategy
	if strategy == types.StrategyNone {
		logger.Debug(ctx, "account is healthy")
		return plan, nil
	}

	signer, err := p.deps.Signers.SignerFor(account)
	if err != nil {
		return nil, fail(err)
	}

	op := types.PlanOperation{Kind: operationFor(strategy)}

	if strategy.NeedsImplementationReset() {
		var callData []byte
		if state.OwnershipWrong() {
			cred, err := p.mintCredential(ctx, account)
			if err != nil {
				return nil, fail(err)
			}
			plan.Credential = cred
			if callData, err = recoverymsg.OwnerInitCallData(cred); err != nil {
				return nil, fail(err)
			}
		}

		reset, err := p.signReset(ctx, signer, facts, callData)
		if err != nil {
			return nil, fail(err)
		}
		plan.Nonce = reset.Nonce
		op.ImplementationReset = reset
	}

	if strategy.NeedsAuthorization() {
		auth, err := p.signAuthorization(ctx, signer)
		if err != nil {
			if op.ImplementationReset != nil {
				p.deps.Builder.Release(op.ImplementationReset.ImplementationReset)
			}
			return nil, fail(err)
		}
		op.Authorization = auth
	}

	plan.Operations = []types.PlanOperation{op}

	logger.Info(ctx, "recovery plan built",
		"state", state.String(),
		"strategy", string(strategy),
		"operation", string(op.Kind),
		"new_owner", plan.Credential != nil,
	)
	return plan, nil
}

// Execute submits the operations of plan one at a time, waits for each to
// be mined and then re-inspects the account. Every flag set before the plan
// must be clear afterwards; a transaction that lands without effect is a
// verification failure, not a success.
func (p *Planner) Execute(ctx context.Context, plan *types.RecoveryPlan) (*types.RecoveryOutcome, error) {
	ctx = logger.WithAccount(ctx, plan.Account)

	outcome := &types.RecoveryOutcome{Plan: plan}
	fail := func(err error) error {
		return &RecoveryError{
			Account:    plan.Account,
			State:      plan.State,
			Strategy:   plan.Strategy,
			Before:     plan.Before,
			After:      outcome.After,
			TxHashes:   outcome.TxHashes,
			Credential: plan.Credential,
			Err:        err,
		}
	}

	for _, op := range plan.Operations {
		txHash, err := p.deps.Submitter.Submit(ctx, plan.Account, op)
		if err != nil {
			// The relay never took the signature, so its nonce may be signed again.
			p.release(op)
			return nil, fail(err)
		}
		outcome.TxHashes = append(outcome.TxHashes, txHash)

		receipt, err := p.deps.Confirmer.WaitMined(ctx, txHash)
		if err != nil {
			// Dropped or still pending. If it lands later the tracker consumes the
			// nonce and a re-signed reset reverts, so the claim can go.
			p.release(op)
			return nil, fail(err)
		}
		if receipt.Status != ethtypes.ReceiptStatusSuccessful {
			// A revert rolls back useNonce along with everything else.
			p.release(op)
			logger.Warn(ctx, "recovery transaction reverted", "operation", string(op.Kind), "tx_hash", txHash.Hex())
			return nil, fail(apperrors.SignatureRejected(string(op.Kind), fmt.Errorf("transaction %s reverted", txHash.Hex())))
		}
	}

	after, err := p.deps.Inspector.Inspect(ctx, plan.Account)
	if err != nil {
		return nil, fail(err)
	}
	outcome.After = after
	outcome.State = disruption.Classify(after, p.opts.Canonical)

	if persisting := plan.State.Persisting(outcome.State); !persisting.IsHealthy() {
		return nil, fail(apperrors.RecoveryVerificationFailed(fmt.Sprintf("still disrupted: %s", persisting)))
	}
	if after.Unupgraded() {
		return nil, fail(apperrors.RecoveryVerificationFailed("account still has no code"))
	}

	logger.Info(ctx, "recovery verified",
		"strategy", string(plan.Strategy),
		"tx_count", len(outcome.TxHashes),
		"state_after", outcome.State.String(),
	)
	return outcome, nil
}

// release hands back the replay nonce claimed for op's reset, if it has one.
// The tracker still decides which signature lands.
func (p *Planner) release(op types.PlanOperation) {
	if op.ImplementationReset != nil {
		p.deps.Builder.Release(op.ImplementationReset.ImplementationReset)
	}
}

func (p *Planner) mintCredential(ctx context.Context, account common.Address) (*types.NewOwnerCredential, error) {
	sealed, err := p.deps.Minter.Mint(ctx, account)
	if err != nil {
		return nil, err
	}
	if err := p.deps.Credentials.SaveCredential(ctx, sealed); err != nil {
		logger.Error(ctx, "failed to persist new owner credential",
			"credential_id", sealed.Credential.ID.String(),
			"error", err,
		)
		return nil, apperrors.CredentialLoss(sealed.Credential.ID.String(), err)
	}
	return sealed.Credential, nil
}

// signReset reads the replay nonce immediately before signing
func (p *Planner) signReset(ctx context.Context, signer keyexec.Signer, facts *types.AccountFacts, callData []byte) (*types.SignedImplementationReset, error) {
	n, err := p.deps.Nonces.CurrentNonce(ctx, facts.Address)
	if err != nil {
		return nil, err
	}

	reset := types.ImplementationReset{
		ChainID:               p.opts.Canonical.ChainID,
		Proxy:                 facts.Address,
		Nonce:                 n,
		CurrentImplementation: facts.Implementation,
		NewImplementation:     p.opts.Canonical.ExpectedImplementation,
		CallData:              callData,
		Validator:             p.opts.Canonical.Validator,
		AllowCrossChainReplay: p.opts.AllowCrossChainReplay,
	}

	hash, err := p.deps.Builder.Build(reset)
	if err != nil {
		return nil, err
	}

	sig, err := signer.SignHash(ctx, hash)
	if err != nil {
		p.deps.Builder.Release(reset)
		return nil, err
	}

	return &types.SignedImplementationReset{ImplementationReset: reset, Hash: hash, Signature: sig}, nil
}

// signAuthorization reassigns the delegate. The relay broadcasts, so the
// tuple carries the account's current transaction nonce.
func (p *Planner) signAuthorization(ctx context.Context, signer keyexec.Signer) (*types.Authorization, error) {
	accountNonce, err := p.deps.Accounts.NonceAt(ctx, signer.Address())
	if err != nil {
		return nil, err
	}
	return authz.Build(ctx, signer, p.opts.Canonical.ExpectedDelegate, p.opts.Scope, accountNonce)
}
