package loan

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"pawnchain/core/state"
	"pawnchain/native/assets"
	"pawnchain/native/bundle"
	nativecommon "pawnchain/native/common"
	"pawnchain/native/terms"
)

const moduleName = "loan"

const (
	// RoleOriginator may open loans.
	RoleOriginator nativecommon.Role = "originator"
	// RoleRepayer may settle a loan on the borrower's behalf and redirect the
	// released collateral.
	RoleRepayer nativecommon.Role = "repayer"
)

var errNilCollaborator = errors.New("loan ledger: collaborators not configured")

// Config wires a ledger instance.
type Config struct {
	Address common.Address
	Name    string
	Version string
	ChainID *big.Int
	Assets  *assets.Registry
	Bundles *bundle.Registry
	// Custodian is the bundle capability the ledger uses to freeze and settle
	// collateral.
	Custodian *nativecommon.Capability
}

// Ledger owns every loan of one deployment.
type Ledger struct {
	address   common.Address
	domain    terms.Domain
	assets    *assets.Registry
	bundles   *bundle.Registry
	custodian *nativecommon.Capability
	authority *nativecommon.Authority
	pauses    nativecommon.PauseView
	nowFn     func() int64

	settleMu sync.Mutex
	settling map[uint64]struct{}
}

// NewLedger builds a ledger and returns its admin capability.
func NewLedger(cfg Config) (*Ledger, *nativecommon.Capability, error) {
	if cfg.Assets == nil || cfg.Bundles == nil {
		return nil, nil, errNilCollaborator
	}
	if cfg.Address == (common.Address{}) {
		return nil, nil, fmt.Errorf("loan ledger: address required")
	}
	if err := cfg.Bundles.Authority().Check(cfg.Custodian, bundle.RoleCustodian); err != nil {
		return nil, nil, fmt.Errorf("loan ledger: custodian capability: %w", err)
	}
	name := cfg.Name
	if name == "" {
		name = terms.DefaultName
	}
	version := cfg.Version
	if version == "" {
		version = terms.DefaultVersion
	}
	chainID := big.NewInt(1)
	if cfg.ChainID != nil {
		chainID = new(big.Int).Set(cfg.ChainID)
	}
	auth, admin := nativecommon.NewAuthority(moduleName + ":" + cfg.Address.Hex())
	return &Ledger{
		address: cfg.Address,
		domain: terms.Domain{
			Name:              name,
			Version:           version,
			ChainID:           chainID,
			VerifyingContract: cfg.Address,
		},
		assets:    cfg.Assets,
		bundles:   cfg.Bundles,
		custodian: cfg.Custodian,
		authority: auth,
		nowFn:     func() int64 { return time.Now().Unix() },
		settling:  make(map[uint64]struct{}),
	}, admin, nil
}

// Address identifies the ledger. Lenders and payers approve it for currency
// pulls.
func (l *Ledger) Address() common.Address { return l.address }

// Domain is the signature domain of this instance.
func (l *Ledger) Domain() terms.Domain {
	d := l.domain
	d.ChainID = new(big.Int).Set(l.domain.ChainID)
	return d
}

// Authority exposes the ledger's capability issuer.
func (l *Ledger) Authority() *nativecommon.Authority { return l.authority }

// Bundles returns the collateral registry the ledger settles against.
func (l *Ledger) Bundles() *bundle.Registry { return l.bundles }

// SetPauses configures the pause switches consulted by mutating calls.
func (l *Ledger) SetPauses(p nativecommon.PauseView) { l.pauses = p }

// BeginSettlement marks loan id as held by a multi-step settlement running
// outside the store lock. It reports false while another holder has it; the
// returned release must be called once the settlement ends.
func (l *Ledger) BeginSettlement(id uint64) (release func(), ok bool) {
	l.settleMu.Lock()
	defer l.settleMu.Unlock()
	if _, busy := l.settling[id]; busy {
		return nil, false
	}
	l.settling[id] = struct{}{}
	return func() {
		l.settleMu.Lock()
		delete(l.settling, id)
		l.settleMu.Unlock()
	}, true
}

// Settling reports whether loan id is held by BeginSettlement.
func (l *Ledger) Settling(id uint64) bool {
	l.settleMu.Lock()
	defer l.settleMu.Unlock()
	_, busy := l.settling[id]
	return busy
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (l *Ledger) SetNowFunc(now func() int64) {
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

func (l *Ledger) now() uint64 {
	ts := l.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (l *Ledger) key(parts ...string) []byte {
	key := "loan/" + l.address.Hex()
	for _, p := range parts {
		key += "/" + p
	}
	return []byte(key)
}

func (l *Ledger) recordKey(id uint64) []byte { return l.key("record", fmt.Sprint(id)) }

func (l *Ledger) nonceKey(signer common.Address, nonce *big.Int) []byte {
	return l.key("nonce", signer.Hex(), nonce.Text(16))
}

// Get loads a loan.
func (l *Ledger) Get(st *state.Manager, id uint64) (*Loan, error) {
	var ln Loan
	ok, err := st.KVGet(l.recordKey(id), &ln)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrLoanNotFound, id)
	}
	return &ln, nil
}

// Count returns the number of loans ever opened.
func (l *Ledger) Count(st *state.Manager) (uint64, error) {
	return st.Sequence(l.key("seq"))
}

// NonceUsed reports whether signer already consumed nonce on this ledger.
func (l *Ledger) NonceUsed(st *state.Manager, signer common.Address, nonce *big.Int) (bool, error) {
	return st.KVGet(l.nonceKey(signer, cloneBigInt(nonce)), nil)
}

func (l *Ledger) put(st *state.Manager, ln *Loan) error {
	return st.KVPut(l.recordKey(ln.ID), ln)
}

func validateTerms(t terms.LoanTerms) error {
	if t.DurationSecs == 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidTerms)
	}
	if t.Principal == nil || t.Principal.Sign() <= 0 {
		return fmt.Errorf("%w: principal must be positive", ErrInvalidTerms)
	}
	if t.Interest != nil && t.Interest.Sign() < 0 {
		return fmt.Errorf("%w: interest must not be negative", ErrInvalidTerms)
	}
	if t.Nonce != nil && t.Nonce.Sign() < 0 {
		return fmt.Errorf("%w: nonce must not be negative", ErrInvalidTerms)
	}
	if t.Currency == (common.Address{}) {
		return fmt.Errorf("%w: currency required", ErrInvalidTerms)
	}
	return nil
}

// Initialize opens a loan from a signed offer. The signature must recover
// req.Signer; the originator decides which party that is.
func (l *Ledger) Initialize(st *state.Manager, originator *nativecommon.Capability, req InitializeRequest) (uint64, error) {
	if err := l.authority.Check(originator, RoleOriginator); err != nil {
		return 0, err
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return 0, err
	}
	t := req.Terms.Clone()
	if err := validateTerms(t); err != nil {
		return 0, err
	}
	if req.Borrower == (common.Address{}) || req.Lender == (common.Address{}) {
		return 0, fmt.Errorf("%w: borrower and lender required", ErrInvalidTerms)
	}
	if req.Borrower == req.Lender {
		return 0, fmt.Errorf("%w: borrower and lender must differ", ErrInvalidTerms)
	}

	now := l.now()
	reference := req.ReferenceTime
	if reference == 0 {
		reference = now
	}
	// Both the offer window and the due time must fit in uint64.
	if t.DurationSecs > math.MaxUint64-max(reference, now) {
		return 0, fmt.Errorf("%w: duration %ds overflows the clock", ErrInvalidTerms, t.DurationSecs)
	}
	if reference+t.DurationSecs <= now {
		return 0, fmt.Errorf("%w: offer from %d lasting %ds", ErrTermsExpired, reference, t.DurationSecs)
	}

	signer, err := terms.Verify(l.domain, t, req.Signature)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSignatureMismatch, err)
	}
	if signer != req.Signer {
		return 0, fmt.Errorf("%w: recovered %s, want %s", ErrSignatureMismatch, signer.Hex(), req.Signer.Hex())
	}
	used, err := l.NonceUsed(st, signer, t.Nonce)
	if err != nil {
		return 0, err
	}
	if used {
		return 0, fmt.Errorf("%w: %s nonce %s", ErrNonceUsed, signer.Hex(), t.Nonce)
	}
	if err := st.KVPut(l.nonceKey(signer, t.Nonce), true); err != nil {
		return 0, err
	}

	b, err := l.bundles.Get(st, t.CollateralID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCollateralUnavailable, err)
	}
	if b.Retired || b.Locked || b.Owner != req.Borrower {
		return 0, fmt.Errorf("%w: bundle %d", ErrCollateralUnavailable, t.CollateralID)
	}
	if err := l.bundles.Lock(st, l.custodian, t.CollateralID); err != nil {
		return 0, err
	}

	recipient := req.PrincipalTo
	if recipient == (common.Address{}) {
		recipient = req.Borrower
	}
	if err := l.assets.TransferFrom(st, t.Currency, l.address, req.Lender, recipient, t.Principal); err != nil {
		return 0, err
	}

	id, err := st.NextSequence(l.key("seq"))
	if err != nil {
		return 0, err
	}
	ln := &Loan{
		ID:        id,
		Borrower:  req.Borrower,
		Lender:    req.Lender,
		Terms:     t,
		StartTime: now,
		Status:    StatusActive,
		Payoff:    t.Payoff(),
	}
	if err := l.put(st, ln); err != nil {
		return 0, err
	}
	st.Emit(newLoanEvent(EventTypeLoanStarted, l.address, ln))
	return id, nil
}

func (l *Ledger) active(st *state.Manager, id uint64) (*Loan, error) {
	ln, err := l.Get(st, id)
	if err != nil {
		return nil, err
	}
	if ln.Status != StatusActive {
		return nil, fmt.Errorf("%w: loan %d is %s", ErrLoanNotActive, id, ln.Status)
	}
	return ln, nil
}

func (l *Ledger) settle(st *state.Manager, ln *Loan, payer common.Address) error {
	balance, err := l.assets.BalanceOf(st, ln.Terms.Currency, payer)
	if err != nil {
		return err
	}
	if balance.Cmp(ln.Payoff) < 0 {
		return fmt.Errorf("%w: %s holds %s, payoff %s", ErrPaymentShortfall, payer.Hex(), balance, ln.Payoff)
	}
	return l.assets.TransferFrom(st, ln.Terms.Currency, l.address, payer, ln.Lender, ln.Payoff)
}

// Repay settles an active loan with funds pulled from payer. The collateral
// is released to the borrower.
func (l *Ledger) Repay(st *state.Manager, payer common.Address, id uint64) error {
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	ln, err := l.active(st, id)
	if err != nil {
		return err
	}
	if err := l.settle(st, ln, payer); err != nil {
		return err
	}
	if err := l.bundles.Unlock(st, l.custodian, ln.Terms.CollateralID); err != nil {
		return err
	}
	return l.finish(st, ln, StatusRepaid, EventTypeLoanRepaid)
}

// RepayFor settles an active loan and hands the released collateral to
// collateralTo instead of the borrower.
func (l *Ledger) RepayFor(st *state.Manager, repayer *nativecommon.Capability, payer common.Address, id uint64, collateralTo common.Address) error {
	if err := l.authority.Check(repayer, RoleRepayer); err != nil {
		return err
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	ln, err := l.active(st, id)
	if err != nil {
		return err
	}
	if err := l.settle(st, ln, payer); err != nil {
		return err
	}
	if collateralTo == (common.Address{}) {
		collateralTo = ln.Borrower
	}
	if err := l.release(st, ln.Terms.CollateralID, collateralTo); err != nil {
		return err
	}
	return l.finish(st, ln, StatusRepaid, EventTypeLoanRepaid)
}

// MarkDefault flags an overdue loan.
func (l *Ledger) MarkDefault(st *state.Manager, id uint64) error {
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	ln, err := l.active(st, id)
	if err != nil {
		return err
	}
	if now := l.now(); now < ln.DueTime() {
		return fmt.Errorf("%w: due at %d, now %d", ErrNotYetDue, ln.DueTime(), now)
	}
	return l.finish(st, ln, StatusDefaulted, EventTypeLoanDefaulted)
}

// Claim hands the collateral of a defaulted loan to its lender.
func (l *Ledger) Claim(st *state.Manager, lender common.Address, id uint64) error {
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	ln, err := l.Get(st, id)
	if err != nil {
		return err
	}
	if ln.Status != StatusDefaulted {
		return fmt.Errorf("%w: loan %d is %s", ErrLoanNotDefaulted, id, ln.Status)
	}
	if lender != ln.Lender {
		return ErrNotLender
	}
	if err := l.release(st, ln.Terms.CollateralID, ln.Lender); err != nil {
		return err
	}
	return l.finish(st, ln, StatusClaimed, EventTypeLoanClaimed)
}

func (l *Ledger) release(st *state.Manager, bundleID uint64, to common.Address) error {
	if err := l.bundles.TransferLocked(st, l.custodian, bundleID, to); err != nil {
		return err
	}
	return l.bundles.Unlock(st, l.custodian, bundleID)
}

func (l *Ledger) finish(st *state.Manager, ln *Loan, status Status, eventType string) error {
	ln.Status = status
	if err := l.put(st, ln); err != nil {
		return err
	}
	st.Emit(newLoanEvent(eventType, l.address, ln))
	return nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
