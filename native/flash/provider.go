package flash

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "pawnchain/core/errors"
	"pawnchain/core/state"
)

var (
	ErrInsufficientReserves = coreerrors.New(coreerrors.KindValue, "flash: reserves below requested amount")
	ErrDrawOutstanding      = coreerrors.New(coreerrors.KindState, "flash: draw not repaid before commit")
	ErrDrawSettled          = coreerrors.New(coreerrors.KindState, "flash: draw already repaid")
	ErrUnknownDraw          = coreerrors.New(coreerrors.KindValue, "flash: draw not issued by this provider")
	ErrInvalidAmount        = coreerrors.New(coreerrors.KindValue, "flash: amount must be positive")
)

// Draw is same-unit liquidity that must be repaid with its fee before the
// unit commits.
type Draw struct {
	Currency common.Address
	Amount   *big.Int
	Fee      *big.Int
	To       common.Address
	// Lender is the address the borrower approves for the repayment pull.
	Lender common.Address

	issuer *Pool
	repaid bool
}

// Due is the amount the repayment must cover.
func (d *Draw) Due() *big.Int {
	return new(big.Int).Add(d.Amount, d.Fee)
}

// Repaid reports whether the draw was settled.
func (d *Draw) Repaid() bool { return d.repaid }

// Provider lends liquidity inside a unit of work. Calls are synchronous; an
// error means nothing moved.
type Provider interface {
	Fee(currency common.Address, amount *big.Int) (*big.Int, error)
	Draw(st *state.Manager, currency common.Address, amount *big.Int, to common.Address) (*Draw, error)
	Repay(st *state.Manager, draw *Draw, from common.Address) error
}
