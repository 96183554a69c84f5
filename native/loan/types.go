package loan

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "pawnchain/core/errors"
	"pawnchain/native/terms"
)

var (
	ErrTermsExpired          = coreerrors.New(coreerrors.KindState, "loan: terms expired")
	ErrCollateralUnavailable = coreerrors.New(coreerrors.KindState, "loan: collateral unavailable")
	ErrSignatureMismatch     = coreerrors.New(coreerrors.KindAuthorization, "loan: signature does not match the counter-party")
	ErrInvalidTerms          = coreerrors.New(coreerrors.KindValue, "loan: invalid terms")
	ErrNonceUsed             = coreerrors.New(coreerrors.KindState, "loan: terms nonce already consumed")
	ErrLoanNotActive         = coreerrors.New(coreerrors.KindState, "loan: loan not active")
	ErrLoanNotDefaulted      = coreerrors.New(coreerrors.KindState, "loan: loan not defaulted")
	ErrPaymentShortfall      = coreerrors.New(coreerrors.KindValue, "loan: payer balance below payoff")
	ErrNotYetDue             = coreerrors.New(coreerrors.KindState, "loan: loan not yet due")
	ErrLoanNotFound          = coreerrors.New(coreerrors.KindValue, "loan: loan not found")
	ErrNotLender             = coreerrors.New(coreerrors.KindAuthorization, "loan: caller is not the lender")
)

// Status is the lifecycle position of a loan.
type Status uint8

const (
	StatusCreated Status = iota
	StatusActive
	StatusRepaid
	StatusDefaulted
	StatusClaimed
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusActive:
		return "active"
	case StatusRepaid:
		return "repaid"
	case StatusDefaulted:
		return "defaulted"
	case StatusClaimed:
		return "claimed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusRepaid || s == StatusClaimed
}

// Loan is the authoritative record of one loan.
type Loan struct {
	ID        uint64
	Borrower  common.Address
	Lender    common.Address
	Terms     terms.LoanTerms
	StartTime uint64
	Status    Status
	Payoff    *big.Int
}

// DueTime is the unix second at which the loan may be defaulted.
func (l *Loan) DueTime() uint64 {
	return l.StartTime + l.Terms.DurationSecs
}

// Clone returns a deep copy.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	out := *l
	out.Terms = l.Terms.Clone()
	if l.Payoff != nil {
		out.Payoff = new(big.Int).Set(l.Payoff)
	}
	return &out
}

// InitializeRequest carries a signed offer into the ledger.
type InitializeRequest struct {
	Terms     terms.LoanTerms
	Borrower  common.Address
	Lender    common.Address
	Signer    common.Address
	Signature terms.Signature
	// ReferenceTime is the unix second the offer was made. Zero means now.
	ReferenceTime uint64
	// PrincipalTo receives the principal. Zero means the borrower.
	PrincipalTo common.Address
}
