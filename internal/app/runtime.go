package app

import (
	"context"
	"fmt"

	"github.com/better-wallet/delegate-recovery/internal/authz"
	"github.com/better-wallet/delegate-recovery/internal/config"
	"github.com/better-wallet/delegate-recovery/internal/eth"
	"github.com/better-wallet/delegate-recovery/internal/inspect"
	"github.com/better-wallet/delegate-recovery/internal/keyexec"
	"github.com/better-wallet/delegate-recovery/internal/logger"
	"github.com/better-wallet/delegate-recovery/internal/metrics"
	"github.com/better-wallet/delegate-recovery/internal/nonce"
	"github.com/better-wallet/delegate-recovery/internal/planner"
	"github.com/better-wallet/delegate-recovery/internal/recoverymsg"
	"github.com/better-wallet/delegate-recovery/internal/relay"
	"github.com/better-wallet/delegate-recovery/internal/storage"
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

// Runtime holds the wired components of a running process
type Runtime struct {
	Config    *config.Config
	Canonical types.CanonicalConfig
	Chain     *eth.Client
	Store     *storage.Store
	KMS       keyexec.KMSProvider
	Keyring   *keyexec.Keyring
	Relay     *relay.Client
	Planner   *planner.Planner
	Metrics   *metrics.Metrics
	Service   *RecoveryService
}

// NewRuntime connects to the chain and the database, loads the signers and
// wires the recovery pipeline. Every signer is probed before it is used.
func NewRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	var err error
	rt.Chain, err = eth.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, err
	}
	rt.Canonical, err = cfg.Canonical(rt.Chain.ChainIDBig())
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "connected to chain", "chain_id", rt.Canonical.ChainID.String())

	rt.Store, err = storage.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "connected to database")

	rt.KMS, err = keyexec.NewKMSProvider(ctx, keyexec.KMSConfigFrom(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize KMS provider: %w", err)
	}

	rt.Keyring, err = keyexec.LoadKeyring(cfg, rt.KMS)
	if err != nil {
		return nil, fmt.Errorf("failed to load signers: %w", err)
	}
	if err := rt.Keyring.Probe(ctx); err != nil {
		return nil, fmt.Errorf("signer probe failed: %w", err)
	}
	logger.Info(ctx, "loaded signers",
		"backend", cfg.SignerBackend,
		"kms_provider", rt.KMS.Provider(),
		"accounts", len(rt.Keyring.Addresses()),
	)

	scope, err := authz.ScopeFromConfig(cfg.AuthorizationScope, rt.Canonical.ChainID)
	if err != nil {
		return nil, err
	}

	rt.Relay = relay.NewClient(cfg.RelayURL, cfg.RelayAPIKey)
	inspector := inspect.New(rt.Chain)

	rt.Planner = planner.New(
		planner.Options{
			Canonical:             rt.Canonical,
			Scope:                 scope,
			AllowCrossChainReplay: cfg.AllowCrossChainReplay,
		},
		planner.Deps{
			Inspector:   inspector,
			Nonces:      nonce.NewSource(rt.Chain, rt.Canonical.NonceTracker),
			Accounts:    rt.Chain,
			Builder:     recoverymsg.NewBuilder(nonce.NewGuard()),
			Signers:     rt.Keyring,
			Minter:      keyexec.NewCredentialMinter(rt.KMS),
			Credentials: storage.NewCredentialRepository(rt.Store),
			Submitter:   rt.Relay,
			Confirmer:   relay.NewConfirmer(rt.Chain, cfg.ReceiptPollInterval),
		},
	)

	rt.Metrics = metrics.New()
	rt.Service = NewRecoveryService(
		rt.Planner,
		inspector,
		rt.Canonical,
		storage.NewRecoveryAttemptRepository(rt.Store),
		rt.Keyring,
		rt.Metrics,
	)

	ok = true
	return rt, nil
}

// Close releases the chain and database connections
func (rt *Runtime) Close() {
	if rt.Store != nil {
		rt.Store.Close()
	}
	if rt.Chain != nil {
		rt.Chain.Close()
	}
}
