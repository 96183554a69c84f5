package rollover

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	coreerrors "pawnchain/core/errors"
	"pawnchain/core/state"
	"pawnchain/core/types"
	"pawnchain/native/assets"
	"pawnchain/native/bundle"
	nativecommon "pawnchain/native/common"
	"pawnchain/native/flash"
	"pawnchain/native/loan"
	"pawnchain/native/origination"
	"pawnchain/observability"
)

const (
	moduleName = "rollover"

	EventTypeRolloverCompleted = "rollover.completed"
)

// Config wires an orchestrator.
type Config struct {
	// Address holds drawn liquidity and released collateral mid-rollover.
	Address common.Address
	Store   *state.Store
	Assets  *assets.Registry
	Bundles *bundle.Registry
	Source  LedgerSet
	Target  LedgerSet
	// Repayer is a repayer capability on the source ledger.
	Repayer  *nativecommon.Capability
	Provider flash.Provider
	// Currency fixes the settlement currency. Zero leaves it to each request.
	Currency common.Address
	Logger   *slog.Logger
	Pauses   nativecommon.PauseView
}

// Orchestrator migrates active loans from the source ledger to the target
// ledger in one atomic unit funded by flash liquidity.
type Orchestrator struct {
	cfg     Config
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.RolloverMetrics
}

// New validates cfg and builds the orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("rollover: store required")
	case cfg.Assets == nil || cfg.Bundles == nil:
		return nil, fmt.Errorf("rollover: asset and bundle registries required")
	case cfg.Source.Ledger == nil || cfg.Target.Controller == nil:
		return nil, fmt.Errorf("rollover: source ledger and target controller required")
	case cfg.Provider == nil:
		return nil, fmt.Errorf("rollover: flash provider required")
	case cfg.Address == (common.Address{}):
		return nil, fmt.Errorf("rollover: custody address required")
	}
	if err := cfg.Source.Ledger.Authority().Check(cfg.Repayer, loan.RoleRepayer); err != nil {
		return nil, fmt.Errorf("rollover: repayer capability: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger.With("component", moduleName),
		tracer:   otel.Tracer("pawnchain/rollover"),
		metrics:  observability.Rollover(),
	}, nil
}

// Address is the orchestrator's custody address. Borrowers approve it to
// cover shortfalls.
func (o *Orchestrator) Address() common.Address { return o.cfg.Address }

// Rollover closes the caller's loan on the source ledger and reopens it on
// the target ledger. Either every step commits or none does.
func (o *Orchestrator) Rollover(ctx context.Context, caller common.Address, req Request) (*Result, error) {
	requestID := uuid.NewString()
	logger := o.logger.With("request_id", requestID, "loan_id", req.OldLoanID, "ledger", o.cfg.Source.Ledger.Address().Hex())
	ctx, span := o.tracer.Start(ctx, "rollover.Rollover", trace.WithAttributes(
		attribute.String("rollover.request_id", requestID),
		attribute.Int64("rollover.loan_id", int64(req.OldLoanID)),
	))
	defer span.End()

	start := time.Now()
	result, err := o.rollover(ctx, caller, req)
	o.metrics.Observe(coreerrors.KindOf(err).String(), time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("rollover aborted", "error", err.Error())
		return nil, err
	}
	result.RequestID = requestID
	if fee, _ := new(big.Float).SetInt(result.FlashFee).Float64(); fee > 0 {
		o.metrics.RecordFee(req.NewTerms.Currency.Hex(), fee)
	}
	span.SetAttributes(attribute.Int64("rollover.new_loan_id", int64(result.NewLoanID)))
	logger.Info("rollover committed",
		"new_loan_id", result.NewLoanID,
		"payoff", result.OldPayoff.String(),
		"fee", result.FlashFee.String(),
		"delta", result.Delta.String())
	return result, nil
}

func (o *Orchestrator) rollover(ctx context.Context, caller common.Address, req Request) (*Result, error) {
	if err := nativecommon.Guard(o.cfg.Pauses, moduleName); err != nil {
		return nil, err
	}
	// Shared by every orchestrator draining the source ledger.
	release, ok := o.cfg.Source.Ledger.BeginSettlement(req.OldLoanID)
	if !ok {
		return nil, fmt.Errorf("%w: loan %d on %s", ErrRolloverInProgress, req.OldLoanID, o.cfg.Source.Ledger.Address().Hex())
	}
	defer release()
	defer o.metrics.Begin()()

	var result *Result
	err := o.cfg.Store.Update(ctx, func(st *state.Manager) error {
		var err error
		result, err = o.execute(st, caller, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) settlementCurrency(req Request) (common.Address, error) {
	switch {
	case o.cfg.Currency == (common.Address{}) && req.Currency == (common.Address{}):
		return common.Address{}, ErrCurrencyRequired
	case o.cfg.Currency == (common.Address{}):
		return req.Currency, nil
	case req.Currency != (common.Address{}) && req.Currency != o.cfg.Currency:
		return common.Address{}, fmt.Errorf("%w: request %s, configured %s", ErrCurrencyMismatch, req.Currency.Hex(), o.cfg.Currency.Hex())
	default:
		return o.cfg.Currency, nil
	}
}

func (o *Orchestrator) execute(st *state.Manager, caller common.Address, req Request) (*Result, error) {
	source := o.cfg.Source.Ledger
	old, err := source.Get(st, req.OldLoanID)
	if err != nil {
		return nil, err
	}
	if caller != old.Borrower {
		return nil, fmt.Errorf("%w: only the borrower may roll loan %d", nativecommon.ErrUnauthorized, old.ID)
	}
	if req.NewTerms.CollateralID != old.Terms.CollateralID || o.cfg.Target.Controller.Ledger().Bundles() != source.Bundles() {
		return nil, fmt.Errorf("%w: loan %d pledges bundle %d", ErrCollateralMismatch, old.ID, old.Terms.CollateralID)
	}
	currency, err := o.settlementCurrency(req)
	if err != nil {
		return nil, err
	}
	if old.Terms.Currency != currency || req.NewTerms.Currency != currency {
		return nil, fmt.Errorf("%w: old %s, new %s, settlement %s", ErrCurrencyMismatch, old.Terms.Currency.Hex(), req.NewTerms.Currency.Hex(), currency.Hex())
	}
	payoff := new(big.Int).Set(old.Payoff)
	amount := payoff
	if req.FlashAmount != nil {
		amount = new(big.Int).Set(req.FlashAmount)
	}
	if amount.Cmp(payoff) < 0 {
		return nil, fmt.Errorf("%w: draw %s, payoff %s", ErrInsufficientLiquidity, amount, payoff)
	}
	if req.NewTerms.Principal == nil {
		return nil, fmt.Errorf("rollover: new principal required")
	}
	self := o.cfg.Address

	// Step 1: flash liquidity.
	draw, err := o.cfg.Provider.Draw(st, currency, amount, self)
	if err != nil {
		return nil, coreerrors.External(fmt.Errorf("rollover: flash draw: %w", err))
	}

	// Step 2: close the source loan, collateral into custody.
	if err := o.cfg.Assets.Approve(st, currency, self, source.Address(), payoff); err != nil {
		return nil, err
	}
	if err := source.RepayFor(st, o.cfg.Repayer, self, old.ID, self); err != nil {
		return nil, fmt.Errorf("rollover: close loan %d: %w", old.ID, err)
	}

	// Step 3: hand the bundle back and open the target loan against it.
	if err := o.cfg.Bundles.TransferOwnership(st, self, old.Terms.CollateralID, old.Borrower); err != nil {
		return nil, err
	}
	newID, err := o.cfg.Target.Controller.Originate(st, old.Borrower, origination.Request{
		Terms:         req.NewTerms,
		Borrower:      old.Borrower,
		Lender:        req.NewLender,
		Signature:     req.NewSignature,
		ReferenceTime: req.ReferenceTime,
		PrincipalTo:   self,
	})
	if err != nil {
		return nil, fmt.Errorf("rollover: open target loan: %w", err)
	}

	// Step 4: settle the difference with the borrower.
	newPrincipal := new(big.Int).Set(req.NewTerms.Principal)
	delta := new(big.Int).Sub(newPrincipal, payoff)
	delta.Sub(delta, draw.Fee)
	switch delta.Sign() {
	case 1:
		if err := o.cfg.Assets.Transfer(st, currency, self, old.Borrower, delta); err != nil {
			return nil, err
		}
	case -1:
		shortfall := new(big.Int).Neg(delta)
		if err := o.cfg.Assets.TransferFrom(st, currency, self, old.Borrower, self, shortfall); err != nil {
			return nil, fmt.Errorf("%w: %s short: %w", ErrShortfallUncovered, shortfall, err)
		}
	}

	// Step 5: repay the provider.
	if err := o.cfg.Assets.Approve(st, currency, self, draw.Lender, draw.Due()); err != nil {
		return nil, err
	}
	if err := o.cfg.Provider.Repay(st, draw, self); err != nil {
		return nil, coreerrors.External(fmt.Errorf("rollover: flash repay: %w", err))
	}

	st.Emit(types.NewEvent(EventTypeRolloverCompleted,
		"source", source.Address().Hex(),
		"target", o.cfg.Target.Controller.Ledger().Address().Hex(),
		"oldLoanId", strconv.FormatUint(old.ID, 10),
		"newLoanId", strconv.FormatUint(newID, 10),
		"borrower", old.Borrower.Hex(),
		"payoff", payoff.String(),
		"fee", draw.Fee.String(),
		"delta", delta.String(),
	))
	return &Result{
		NewLoanID:    newID,
		OldPayoff:    payoff,
		FlashFee:     new(big.Int).Set(draw.Fee),
		Delta:        delta,
		NewPrincipal: newPrincipal,
	}, nil
}

// IsInProgress reports whether a rollover of loanID is executing on the
// source ledger.
func (o *Orchestrator) IsInProgress(loanID uint64) bool {
	return o.cfg.Source.Ledger.Settling(loanID)
}
