package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"pawnchain/core/state"
	"pawnchain/native/assets"
	"pawnchain/native/bundle"
	nativecommon "pawnchain/native/common"
	"pawnchain/native/flash"
	"pawnchain/native/loan"
	"pawnchain/native/origination"
	"pawnchain/native/rollover"
)

// Deployment slots. Each component address is CreateAddress(deployer, slot).
const (
	slotCurrency uint64 = iota
	slotBundles
	slotPool
	slotLegacyLedger
	slotCurrentLedger
	slotOrchestrator
)

// DeployConfig describes a protocol deployment.
type DeployConfig struct {
	Deployer         common.Address
	ChainID          *big.Int
	ProtocolName     string
	CurrencySymbol   string
	CurrencyDecimals uint8
	FlashFeeBps      uint32
	// FixCurrency binds the orchestrator to the deployed currency. Otherwise
	// every rollover names its currency.
	FixCurrency bool
	Pauses      nativecommon.PauseView
	Logger      *slog.Logger
}

// Deployment is a wired protocol instance: one asset registry and bundle
// registry shared by a legacy and a current ledger, a flash pool and the
// orchestrator moving loans from legacy to current.
type Deployment struct {
	Store        *state.Store
	Assets       *assets.Registry
	Minter       *nativecommon.Capability
	Bundles      *bundle.Registry
	Pool         *flash.Pool
	Currency     common.Address
	Legacy       rollover.LedgerSet
	Current      rollover.LedgerSet
	Orchestrator *rollover.Orchestrator
	// LegacyAdmin and CurrentAdmin administer the ledger authorities.
	LegacyAdmin  *nativecommon.Capability
	CurrentAdmin *nativecommon.Capability
	// Repayer is the legacy-ledger capability held by the orchestrator.
	Repayer *nativecommon.Capability
}

// DeriveAddress returns the address of deployment slot n.
func DeriveAddress(deployer common.Address, slot uint64) common.Address {
	return ethcrypto.CreateAddress(deployer, slot)
}

// Deploy wires every component and registers the settlement currency on
// store.
func Deploy(ctx context.Context, store *state.Store, cfg DeployConfig) (*Deployment, error) {
	if store == nil {
		return nil, fmt.Errorf("deploy: store required")
	}
	if cfg.Deployer == (common.Address{}) {
		return nil, fmt.Errorf("deploy: deployer address required")
	}
	symbol := cfg.CurrencySymbol
	if symbol == "" {
		symbol = "PUSD"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	assetRegistry, assetAdmin := assets.NewRegistry()
	minter, err := assetRegistry.Authority().Grant(assetAdmin, assets.RoleMinter)
	if err != nil {
		return nil, err
	}
	bundles, bundleAdmin := bundle.NewRegistry(DeriveAddress(cfg.Deployer, slotBundles), assetRegistry)
	bundles.SetPauses(cfg.Pauses)
	pool, err := flash.NewPool(DeriveAddress(cfg.Deployer, slotPool), assetRegistry, cfg.FlashFeeBps)
	if err != nil {
		return nil, err
	}
	pool.SetPauses(cfg.Pauses)

	legacy, err := deployLedgerSet(cfg, bundles, bundleAdmin, assetRegistry, slotLegacyLedger)
	if err != nil {
		return nil, fmt.Errorf("deploy: legacy ledger: %w", err)
	}
	current, err := deployLedgerSet(cfg, bundles, bundleAdmin, assetRegistry, slotCurrentLedger)
	if err != nil {
		return nil, fmt.Errorf("deploy: current ledger: %w", err)
	}
	repayer, err := legacy.set.Ledger.Authority().Grant(legacy.admin, loan.RoleRepayer)
	if err != nil {
		return nil, err
	}

	currency := DeriveAddress(cfg.Deployer, slotCurrency)
	var fixed common.Address
	if cfg.FixCurrency {
		fixed = currency
	}
	orchestrator, err := rollover.New(rollover.Config{
		Address:  DeriveAddress(cfg.Deployer, slotOrchestrator),
		Store:    store,
		Assets:   assetRegistry,
		Bundles:  bundles,
		Source:   legacy.set,
		Target:   current.set,
		Repayer:  repayer,
		Provider: pool,
		Currency: fixed,
		Logger:   logger,
		Pauses:   cfg.Pauses,
	})
	if err != nil {
		return nil, err
	}

	// Redeploying over existing state reuses the registered currency.
	if err := store.Update(ctx, func(st *state.Manager) error {
		meta, err := assetRegistry.Metadata(st, currency)
		switch {
		case errors.Is(err, assets.ErrUnknownAsset):
			return assetRegistry.RegisterFungible(st, currency, symbol, cfg.CurrencyDecimals)
		case err != nil:
			return err
		case meta.Kind != assets.KindFungible || meta.Symbol != strings.ToUpper(symbol) || meta.Decimals != cfg.CurrencyDecimals:
			return fmt.Errorf("%w: %s registered as %s/%d", assets.ErrAssetExists, currency.Hex(), meta.Symbol, meta.Decimals)
		default:
			return nil
		}
	}); err != nil {
		return nil, fmt.Errorf("deploy: register currency: %w", err)
	}
	logger.Info("protocol deployed",
		"currency", currency.Hex(),
		"bundles", bundles.Address().Hex(),
		"pool", pool.Address().Hex(),
		"legacy_ledger", legacy.set.Ledger.Address().Hex(),
		"current_ledger", current.set.Ledger.Address().Hex(),
		"orchestrator", orchestrator.Address().Hex())

	return &Deployment{
		Store:        store,
		Assets:       assetRegistry,
		Minter:       minter,
		Bundles:      bundles,
		Pool:         pool,
		Currency:     currency,
		Legacy:       legacy.set,
		Current:      current.set,
		Orchestrator: orchestrator,
		LegacyAdmin:  legacy.admin,
		CurrentAdmin: current.admin,
		Repayer:      repayer,
	}, nil
}

type deployedSet struct {
	set   rollover.LedgerSet
	admin *nativecommon.Capability
}

func deployLedgerSet(cfg DeployConfig, bundles *bundle.Registry, bundleAdmin *nativecommon.Capability, registry *assets.Registry, slot uint64) (deployedSet, error) {
	custodian, err := bundles.Authority().Grant(bundleAdmin, bundle.RoleCustodian)
	if err != nil {
		return deployedSet{}, err
	}
	ledger, admin, err := loan.NewLedger(loan.Config{
		Address:   DeriveAddress(cfg.Deployer, slot),
		Name:      cfg.ProtocolName,
		ChainID:   cfg.ChainID,
		Assets:    registry,
		Bundles:   bundles,
		Custodian: custodian,
	})
	if err != nil {
		return deployedSet{}, err
	}
	ledger.SetPauses(cfg.Pauses)
	originator, err := ledger.Authority().Grant(admin, loan.RoleOriginator)
	if err != nil {
		return deployedSet{}, err
	}
	controller, err := origination.NewController(ledger, originator)
	if err != nil {
		return deployedSet{}, err
	}
	return deployedSet{set: rollover.LedgerSet{Ledger: ledger, Controller: controller}, admin: admin}, nil
}
