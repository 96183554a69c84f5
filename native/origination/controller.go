package origination

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"pawnchain/core/state"
	nativecommon "pawnchain/native/common"
	"pawnchain/native/loan"
	"pawnchain/native/terms"
)

// Request is a counter-signed origination: one party submits, the other
// party's signature authorizes.
type Request struct {
	Terms         terms.LoanTerms
	Borrower      common.Address
	Lender        common.Address
	Signature     terms.Signature
	ReferenceTime uint64
	PrincipalTo   common.Address
}

// Controller is the entry point parties use to open loans on one ledger.
type Controller struct {
	ledger     *loan.Ledger
	originator *nativecommon.Capability
}

// NewController binds a controller to ledger. originator must be a live
// originator capability of that ledger.
func NewController(ledger *loan.Ledger, originator *nativecommon.Capability) (*Controller, error) {
	if ledger == nil {
		return nil, fmt.Errorf("origination: ledger required")
	}
	if err := ledger.Authority().Check(originator, loan.RoleOriginator); err != nil {
		return nil, fmt.Errorf("origination: originator capability: %w", err)
	}
	return &Controller{ledger: ledger, originator: originator}, nil
}

// Ledger returns the ledger the controller originates on.
func (c *Controller) Ledger() *loan.Ledger { return c.ledger }

// Originate opens a loan. When the lender initiates, the signature must come
// from the borrower and the other way round.
func (c *Controller) Originate(st *state.Manager, initiator common.Address, req Request) (uint64, error) {
	if initiator == (common.Address{}) {
		return 0, nativecommon.ErrUnauthorized
	}
	var signer common.Address
	switch initiator {
	case req.Lender:
		if req.PrincipalTo != (common.Address{}) && req.PrincipalTo != req.Borrower {
			return 0, fmt.Errorf("%w: only the borrower may redirect principal", nativecommon.ErrUnauthorized)
		}
		signer = req.Borrower
	case req.Borrower:
		signer = req.Lender
	default:
		return 0, fmt.Errorf("%w: %s is neither borrower nor lender", nativecommon.ErrUnauthorized, initiator.Hex())
	}
	return c.ledger.Initialize(st, c.originator, loan.InitializeRequest{
		Terms:         req.Terms,
		Borrower:      req.Borrower,
		Lender:        req.Lender,
		Signer:        signer,
		Signature:     req.Signature,
		ReferenceTime: req.ReferenceTime,
		PrincipalTo:   req.PrincipalTo,
	})
}
