package rpc

import (
	"math/big"
	"strconv"

	"pawnchain/native/bundle"
	"pawnchain/native/loan"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Amounts are decimal strings; JSON numbers cannot carry 256-bit values.
type LoanView struct {
	ID           string `json:"id"`
	Ledger       string `json:"ledger"`
	Status       string `json:"status"`
	Borrower     string `json:"borrower"`
	Lender       string `json:"lender"`
	Principal    string `json:"principal"`
	Interest     string `json:"interest"`
	Payoff       string `json:"payoff"`
	Currency     string `json:"currency"`
	CollateralID string `json:"collateralId"`
	DurationSecs uint64 `json:"durationSecs"`
	StartTime    uint64 `json:"startTime"`
	DueTime      uint64 `json:"dueTime"`
}

func newLoanView(ledger string, ln *loan.Loan) LoanView {
	return LoanView{
		ID:           strconv.FormatUint(ln.ID, 10),
		Ledger:       ledger,
		Status:       ln.Status.String(),
		Borrower:     ln.Borrower.Hex(),
		Lender:       ln.Lender.Hex(),
		Principal:    amount(ln.Terms.Principal),
		Interest:     amount(ln.Terms.Interest),
		Payoff:       amount(ln.Payoff),
		Currency:     ln.Terms.Currency.Hex(),
		CollateralID: strconv.FormatUint(ln.Terms.CollateralID, 10),
		DurationSecs: ln.Terms.DurationSecs,
		StartTime:    ln.StartTime,
		DueTime:      ln.DueTime(),
	}
}

type HoldingView struct {
	Asset    string `json:"asset"`
	ItemID   string `json:"itemId,omitempty"`
	Quantity string `json:"quantity"`
}

type BundleView struct {
	ID       string        `json:"id"`
	Owner    string        `json:"owner"`
	Locked   bool          `json:"locked"`
	Retired  bool          `json:"retired"`
	Unique   []HoldingView `json:"unique"`
	Semi     []HoldingView `json:"semiFungible"`
	Fungible []HoldingView `json:"fungible"`
}

func newBundleView(b *bundle.Bundle) BundleView {
	view := BundleView{
		ID:       strconv.FormatUint(b.ID, 10),
		Owner:    b.Owner.Hex(),
		Locked:   b.Locked,
		Retired:  b.Retired,
		Unique:   make([]HoldingView, 0, len(b.Unique)),
		Semi:     make([]HoldingView, 0, len(b.Semi)),
		Fungible: make([]HoldingView, 0, len(b.Fungible)),
	}
	for _, h := range b.Unique {
		view.Unique = append(view.Unique, HoldingView{Asset: h.Collection.Hex(), ItemID: amount(h.ItemID), Quantity: "1"})
	}
	for _, h := range b.Semi {
		view.Semi = append(view.Semi, HoldingView{Asset: h.Collection.Hex(), ItemID: amount(h.ItemID), Quantity: amount(h.Quantity)})
	}
	for _, h := range b.Fungible {
		view.Fungible = append(view.Fungible, HoldingView{Asset: h.Asset.Hex(), Quantity: amount(h.Amount)})
	}
	return view
}

type BalanceView struct {
	Asset    string `json:"asset"`
	Owner    string `json:"owner"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Balance  string `json:"balance"`
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
