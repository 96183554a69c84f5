package rollover

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "pawnchain/core/errors"
	"pawnchain/native/loan"
	"pawnchain/native/origination"
	"pawnchain/native/terms"
)

var (
	ErrRolloverInProgress    = coreerrors.New(coreerrors.KindConcurrency, "rollover: loan already rolling over")
	ErrCollateralMismatch    = coreerrors.New(coreerrors.KindValue, "rollover: new terms reference different collateral")
	ErrCurrencyMismatch      = coreerrors.New(coreerrors.KindValue, "rollover: settlement currency mismatch")
	ErrCurrencyRequired      = coreerrors.New(coreerrors.KindValue, "rollover: settlement currency required")
	ErrInsufficientLiquidity = coreerrors.New(coreerrors.KindValue, "rollover: flash amount below payoff")
	ErrShortfallUncovered    = coreerrors.New(coreerrors.KindValue, "rollover: borrower cannot cover shortfall")
)

// LedgerSet is one deployment a loan can live on.
type LedgerSet struct {
	Ledger     *loan.Ledger
	Controller *origination.Controller
}

// Request migrates OldLoanID from the source ledger to the target ledger
// under NewTerms signed by NewLender.
type Request struct {
	OldLoanID    uint64
	NewTerms     terms.LoanTerms
	NewLender    common.Address
	NewSignature terms.Signature
	// FlashAmount defaults to the old payoff.
	FlashAmount *big.Int
	// Currency is required when the orchestrator has no fixed currency.
	Currency      common.Address
	ReferenceTime uint64
}

// Result summarizes a committed rollover. NewPrincipal always equals
// OldPayoff + FlashFee + Delta.
type Result struct {
	RequestID    string
	NewLoanID    uint64
	OldPayoff    *big.Int
	FlashFee     *big.Int
	Delta        *big.Int
	NewPrincipal *big.Int
}
