package origination_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"pawnchain/core"
	"pawnchain/core/state"
	nativecommon "pawnchain/native/common"
	"pawnchain/native/loan"
	"pawnchain/native/origination"
	"pawnchain/native/terms"
	"pawnchain/storage"
)

type parties struct {
	dep       *core.Deployment
	borrowerK *ecdsa.PrivateKey
	lenderK   *ecdsa.PrivateKey
	borrower  common.Address
	lender    common.Address
	bundleID  uint64
}

func setup(t *testing.T) *parties {
	t.Helper()
	ctx := context.Background()
	store := state.NewStore(storage.NewMemDB())
	dep, err := core.Deploy(ctx, store, core.DeployConfig{
		Deployer: common.HexToAddress("0x00000000000000000000000000000000000000d0"),
		ChainID:  big.NewInt(31337),
	})
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	p := &parties{dep: dep}
	p.borrowerK = newKey(t)
	p.lenderK = newKey(t)
	p.borrower = ethcrypto.PubkeyToAddress(p.borrowerK.PublicKey)
	p.lender = ethcrypto.PubkeyToAddress(p.lenderK.PublicKey)
	ledger := dep.Current.Ledger.Address()
	if err := store.Update(ctx, func(st *state.Manager) error {
		if err := dep.Assets.Mint(st, dep.Minter, dep.Currency, p.lender, big.NewInt(1_000)); err != nil {
			return err
		}
		if err := dep.Assets.Approve(st, dep.Currency, p.lender, ledger, big.NewInt(1_000)); err != nil {
			return err
		}
		p.bundleID, err = dep.Bundles.Create(st, p.borrower)
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return p
}

func (p *parties) request(t *testing.T, signer *ecdsa.PrivateKey) origination.Request {
	t.Helper()
	lt := terms.LoanTerms{
		DurationSecs: 3600,
		Principal:    big.NewInt(100),
		Interest:     big.NewInt(5),
		CollateralID: p.bundleID,
		Currency:     p.dep.Currency,
		Nonce:        big.NewInt(1),
	}
	sig, err := terms.Sign(p.dep.Current.Ledger.Domain(), lt, signer)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return origination.Request{Terms: lt, Borrower: p.borrower, Lender: p.lender, Signature: sig}
}

func (p *parties) originate(initiator common.Address, req origination.Request) (uint64, error) {
	var id uint64
	err := p.dep.Store.Update(context.Background(), func(st *state.Manager) error {
		var err error
		id, err = p.dep.Current.Controller.Originate(st, initiator, req)
		return err
	})
	return id, err
}

func TestLenderInitiatesWithBorrowerSignature(t *testing.T) {
	p := setup(t)
	id, err := p.originate(p.lender, p.request(t, p.borrowerK))
	if err != nil {
		t.Fatalf("originate: %v", err)
	}
	if err := p.dep.Store.View(context.Background(), func(st *state.Manager) error {
		ln, err := p.dep.Current.Ledger.Get(st, id)
		if err != nil {
			return err
		}
		if ln.Status != loan.StatusActive || ln.Borrower != p.borrower || ln.Lender != p.lender {
			t.Fatalf("unexpected loan %+v", ln)
		}
		bal, err := p.dep.Assets.BalanceOf(st, p.dep.Currency, p.borrower)
		if err != nil {
			return err
		}
		if bal.Int64() != 100 {
			t.Fatalf("borrower should receive principal, got %s", bal)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestBorrowerInitiatesWithLenderSignature(t *testing.T) {
	p := setup(t)
	req := p.request(t, p.lenderK)
	req.PrincipalTo = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	if _, err := p.originate(p.borrower, req); err != nil {
		t.Fatalf("originate: %v", err)
	}
	if err := p.dep.Store.View(context.Background(), func(st *state.Manager) error {
		bal, err := p.dep.Assets.BalanceOf(st, p.dep.Currency, req.PrincipalTo)
		if err != nil {
			return err
		}
		if bal.Int64() != 100 {
			t.Fatalf("principal should be redirected, got %s", bal)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestSelfSignedOriginationRejected(t *testing.T) {
	p := setup(t)
	if _, err := p.originate(p.lender, p.request(t, p.lenderK)); !errors.Is(err, loan.ErrSignatureMismatch) {
		t.Fatalf("lender must not countersign their own offer, got %v", err)
	}
	if _, err := p.originate(p.borrower, p.request(t, p.borrowerK)); !errors.Is(err, loan.ErrSignatureMismatch) {
		t.Fatalf("borrower must not countersign their own offer, got %v", err)
	}
}

func TestInitiatorMustBeAParty(t *testing.T) {
	p := setup(t)
	outsider := common.HexToAddress("0x0000000000000000000000000000000000000077")
	if _, err := p.originate(outsider, p.request(t, p.borrowerK)); !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	req := p.request(t, p.borrowerK)
	req.PrincipalTo = outsider
	if _, err := p.originate(p.lender, req); !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("lender must not redirect principal, got %v", err)
	}
}

func TestControllerNeedsOriginatorCapability(t *testing.T) {
	p := setup(t)
	if _, err := origination.NewController(p.dep.Current.Ledger, nil); !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	repayer, err := p.dep.Current.Ledger.Authority().Grant(p.dep.CurrentAdmin, loan.RoleRepayer)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := origination.NewController(p.dep.Current.Ledger, repayer); err == nil {
		t.Fatalf("wrong-role capability must be rejected")
	}
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}
