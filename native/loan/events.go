package loan

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"pawnchain/core/types"
)

const (
	EventTypeLoanStarted   = "loan.started"
	EventTypeLoanRepaid    = "loan.repaid"
	EventTypeLoanDefaulted = "loan.defaulted"
	EventTypeLoanClaimed   = "loan.claimed"
)

func newLoanEvent(eventType string, ledger common.Address, l *Loan) *types.Event {
	return types.NewEvent(eventType,
		"ledger", ledger.Hex(),
		"id", strconv.FormatUint(l.ID, 10),
		"borrower", l.Borrower.Hex(),
		"lender", l.Lender.Hex(),
		"collateral", strconv.FormatUint(l.Terms.CollateralID, 10),
		"payoff", l.Payoff.String(),
		"status", l.Status.String(),
	)
}
