package main

import (
	"context"
	"crypto/ecdsa"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"pawnchain/core"
	"pawnchain/core/state"
	"pawnchain/crypto"
	"pawnchain/native/loan"
	"pawnchain/native/origination"
	"pawnchain/native/rollover"
	"pawnchain/native/terms"
	"pawnchain/storage"
)

//go:embed scenario.yaml
var defaultScenario []byte

var (
	punksAddress = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	beatsAddress = common.HexToAddress("0x00000000000000000000000000000000000b0b00")
)

// Scenario is a scripted run against an in-memory deployment.
type Scenario struct {
	ChainID      uint64         `yaml:"chain_id"`
	FlashFeeBps  uint32         `yaml:"flash_fee_bps"`
	Decimals     uint8          `yaml:"decimals"`
	PoolReserves string         `yaml:"pool_reserves"`
	Parties      []PartySpec    `yaml:"parties"`
	Bundles      []BundleSpec   `yaml:"bundles"`
	Loans        []LoanSpec     `yaml:"loans"`
	Rollovers    []RolloverSpec `yaml:"rollovers"`
}

type PartySpec struct {
	Name    string `yaml:"name"`
	Balance string `yaml:"balance"`
	Punks   int    `yaml:"punks"`
	Beats   int64  `yaml:"beats"`
}

type BundleSpec struct {
	Owner    string `yaml:"owner"`
	Punks    int    `yaml:"punks"`
	Beats    int64  `yaml:"beats"`
	Fungible string `yaml:"fungible"`
}

type LoanSpec struct {
	Name      string        `yaml:"name"`
	Bundle    uint64        `yaml:"bundle"`
	Borrower  string        `yaml:"borrower"`
	Lender    string        `yaml:"lender"`
	Principal string        `yaml:"principal"`
	Interest  string        `yaml:"interest"`
	Duration  time.Duration `yaml:"duration"`
}

type RolloverSpec struct {
	Loan      string        `yaml:"loan"`
	NewLender string        `yaml:"new_lender"`
	Principal string        `yaml:"principal"`
	Interest  string        `yaml:"interest"`
	Duration  time.Duration `yaml:"duration"`
}

// LoadScenario decodes a scenario file. An empty path selects the built-in
// bootstrap scenario.
func LoadScenario(path string) (*Scenario, error) {
	raw := defaultScenario
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read scenario: %w", err)
		}
		raw = data
	}
	var sc Scenario
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if sc.ChainID == 0 {
		sc.ChainID = 31337
	}
	return &sc, nil
}

// parseUnits scales a decimal string by 10^decimals.
func parseUnits(value string, decimals uint8) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return big.NewInt(0), nil
	}
	whole, frac, _ := strings.Cut(value, ".")
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", value, decimals)
	}
	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	out, ok := new(big.Int).SetString(digits, 10)
	if !ok || out.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return out, nil
}

type party struct {
	key     *ecdsa.PrivateKey
	address common.Address
	punks   []*big.Int
}

// Outcome summarizes a finished simulation.
type Outcome struct {
	Deployment *core.Deployment
	Parties    map[string]common.Address
	Loans      map[string]uint64
	Rollovers  []*rollover.Result
}

type simulation struct {
	ctx     context.Context
	sc      *Scenario
	dep     *core.Deployment
	logger  *slog.Logger
	parties map[string]*party
	nextID  *big.Int
	loans   map[string]uint64
	nonces  map[common.Address]int64
}

// Simulate runs sc on a fresh in-memory store.
func Simulate(ctx context.Context, sc *Scenario, logger *slog.Logger) (*Outcome, error) {
	if logger == nil {
		logger = slog.Default()
	}
	deployer, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	dep, err := core.Deploy(ctx, state.NewStore(storage.NewMemDB()), core.DeployConfig{
		Deployer:         deployer.Address(),
		ChainID:          new(big.Int).SetUint64(sc.ChainID),
		CurrencyDecimals: sc.Decimals,
		FlashFeeBps:      sc.FlashFeeBps,
		FixCurrency:      true,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	sim := &simulation{
		ctx:     ctx,
		sc:      sc,
		dep:     dep,
		logger:  logger,
		parties: map[string]*party{},
		nextID:  big.NewInt(0),
		loans:   map[string]uint64{},
		nonces:  map[common.Address]int64{},
	}
	for _, step := range []func() error{sim.distribute, sim.wrap, sim.originate} {
		if err := step(); err != nil {
			return nil, err
		}
	}
	out := &Outcome{Deployment: dep, Parties: map[string]common.Address{}, Loans: sim.loans}
	for _, spec := range sc.Rollovers {
		res, err := sim.roll(spec)
		if err != nil {
			return nil, fmt.Errorf("rollover %s: %w", spec.Loan, err)
		}
		out.Rollovers = append(out.Rollovers, res)
	}
	for name, p := range sim.parties {
		out.Parties[name] = p.address
	}
	return out, nil
}

func (s *simulation) update(fn func(st *state.Manager) error) error {
	return s.dep.Store.Update(s.ctx, fn)
}

func (s *simulation) party(name string) (*party, error) {
	p, ok := s.parties[name]
	if !ok {
		return nil, fmt.Errorf("unknown party %q", name)
	}
	return p, nil
}

func (s *simulation) units(v string) (*big.Int, error) {
	return parseUnits(v, s.sc.Decimals)
}

func (s *simulation) distribute() error {
	reserves, err := s.units(s.sc.PoolReserves)
	if err != nil {
		return err
	}
	a, cur := s.dep.Assets, s.dep.Currency
	return s.update(func(st *state.Manager) error {
		if err := a.RegisterUnique(st, punksAddress, "PawnFiPunk"); err != nil {
			return err
		}
		if err := a.RegisterSemiFungible(st, beatsAddress, "PawnBeats"); err != nil {
			return err
		}
		if reserves.Sign() > 0 {
			if err := a.Mint(st, s.dep.Minter, cur, s.dep.Pool.Address(), reserves); err != nil {
				return err
			}
		}
		for _, spec := range s.sc.Parties {
			key, err := crypto.GeneratePrivateKey()
			if err != nil {
				return err
			}
			p := &party{key: key.PrivateKey, address: key.Address()}
			s.parties[spec.Name] = p
			balance, err := s.units(spec.Balance)
			if err != nil {
				return fmt.Errorf("party %s: %w", spec.Name, err)
			}
			if balance.Sign() > 0 {
				if err := a.Mint(st, s.dep.Minter, cur, p.address, balance); err != nil {
					return err
				}
			}
			for i := 0; i < spec.Punks; i++ {
				id := new(big.Int).Set(s.nextID)
				s.nextID.Add(s.nextID, big.NewInt(1))
				if err := a.MintUnique(st, s.dep.Minter, punksAddress, p.address, id); err != nil {
					return err
				}
				p.punks = append(p.punks, id)
			}
			if spec.Beats > 0 {
				if err := a.MintSemiFungible(st, s.dep.Minter, beatsAddress, p.address, big.NewInt(0), big.NewInt(spec.Beats)); err != nil {
					return err
				}
			}
			s.logger.Info("party funded", "party", spec.Name, "address", p.address.Hex(), "balance", balance.String(), "punks", spec.Punks)
		}
		return nil
	})
}

func (s *simulation) wrap() error {
	a, b, custody := s.dep.Assets, s.dep.Bundles, s.dep.Bundles.Address()
	return s.update(func(st *state.Manager) error {
		for i, spec := range s.sc.Bundles {
			owner, err := s.party(spec.Owner)
			if err != nil {
				return err
			}
			id, err := b.Create(st, owner.address)
			if err != nil {
				return err
			}
			if spec.Punks > len(owner.punks) {
				return fmt.Errorf("bundle %d: %s holds %d punks", i+1, spec.Owner, len(owner.punks))
			}
			for _, item := range owner.punks[:spec.Punks] {
				if err := a.ApproveUnique(st, punksAddress, owner.address, custody, item); err != nil {
					return err
				}
				if err := b.DepositUnique(st, owner.address, id, punksAddress, item); err != nil {
					return err
				}
			}
			owner.punks = owner.punks[spec.Punks:]
			if spec.Beats > 0 {
				if err := a.SetApprovalForAll(st, beatsAddress, owner.address, custody, true); err != nil {
					return err
				}
				if err := b.DepositSemiFungible(st, owner.address, id, beatsAddress, big.NewInt(0), big.NewInt(spec.Beats)); err != nil {
					return err
				}
			}
			fungible, err := s.units(spec.Fungible)
			if err != nil {
				return err
			}
			if fungible.Sign() > 0 {
				if err := a.Approve(st, s.dep.Currency, owner.address, custody, fungible); err != nil {
					return err
				}
				if err := b.DepositFungible(st, owner.address, id, s.dep.Currency, fungible); err != nil {
					return err
				}
			}
			s.logger.Info("bundle created", "bundle", id, "owner", spec.Owner, "punks", spec.Punks, "beats", spec.Beats, "fungible", fungible.String())
		}
		return nil
	})
}

func (s *simulation) terms(signer common.Address, bundleID uint64, principal, interest string, duration time.Duration) (terms.LoanTerms, error) {
	p, err := s.units(principal)
	if err != nil {
		return terms.LoanTerms{}, err
	}
	i, err := s.units(interest)
	if err != nil {
		return terms.LoanTerms{}, err
	}
	s.nonces[signer]++
	return terms.LoanTerms{
		DurationSecs: uint64(duration / time.Second),
		Principal:    p,
		Interest:     i,
		CollateralID: bundleID,
		Currency:     s.dep.Currency,
		Nonce:        big.NewInt(s.nonces[signer]),
	}, nil
}

// originate opens every scenario loan on the legacy ledger. The borrower signs
// and the lender initiates.
func (s *simulation) originate() error {
	set := s.dep.Legacy
	for _, spec := range s.sc.Loans {
		borrower, err := s.party(spec.Borrower)
		if err != nil {
			return err
		}
		lender, err := s.party(spec.Lender)
		if err != nil {
			return err
		}
		lt, err := s.terms(borrower.address, spec.Bundle, spec.Principal, spec.Interest, spec.Duration)
		if err != nil {
			return fmt.Errorf("loan %s: %w", spec.Name, err)
		}
		sig, err := terms.Sign(set.Ledger.Domain(), lt, borrower.key)
		if err != nil {
			return err
		}
		err = s.update(func(st *state.Manager) error {
			if err := s.dep.Assets.Approve(st, s.dep.Currency, lender.address, set.Ledger.Address(), lt.Principal); err != nil {
				return err
			}
			id, err := set.Controller.Originate(st, lender.address, origination.Request{
				Terms: lt, Borrower: borrower.address, Lender: lender.address, Signature: sig,
			})
			s.loans[spec.Name] = id
			return err
		})
		if err != nil {
			return fmt.Errorf("loan %s: %w", spec.Name, err)
		}
		s.logger.Info("loan started", "loan", spec.Name, "id", s.loans[spec.Name], "ledger", set.Ledger.Address().Hex(),
			"borrower", spec.Borrower, "lender", spec.Lender, "principal", lt.Principal.String(), "interest", lt.Interest.String())
	}
	return nil
}

// roll migrates a loan to the current ledger. The new lender signs and the
// borrower approves the orchestrator for any shortfall.
func (s *simulation) roll(spec RolloverSpec) (*rollover.Result, error) {
	id, ok := s.loans[spec.Loan]
	if !ok {
		return nil, fmt.Errorf("unknown loan %q", spec.Loan)
	}
	newLender, err := s.party(spec.NewLender)
	if err != nil {
		return nil, err
	}
	var old *loan.Loan
	if err := s.dep.Store.View(s.ctx, func(st *state.Manager) error {
		old, err = s.dep.Legacy.Ledger.Get(st, id)
		return err
	}); err != nil {
		return nil, err
	}
	target := s.dep.Current.Ledger
	lt, err := s.terms(newLender.address, old.Terms.CollateralID, spec.Principal, spec.Interest, spec.Duration)
	if err != nil {
		return nil, err
	}
	sig, err := terms.Sign(target.Domain(), lt, newLender.key)
	if err != nil {
		return nil, err
	}
	fee, err := s.dep.Pool.Fee(s.dep.Currency, old.Payoff)
	if err != nil {
		return nil, err
	}
	shortfall := new(big.Int).Add(old.Payoff, fee)
	shortfall.Sub(shortfall, lt.Principal)
	if err := s.update(func(st *state.Manager) error {
		if err := s.dep.Assets.Approve(st, s.dep.Currency, newLender.address, target.Address(), lt.Principal); err != nil {
			return err
		}
		if shortfall.Sign() > 0 {
			return s.dep.Assets.Approve(st, s.dep.Currency, old.Borrower, s.dep.Orchestrator.Address(), shortfall)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	res, err := s.dep.Orchestrator.Rollover(s.ctx, old.Borrower, rollover.Request{
		OldLoanID:    id,
		NewTerms:     lt,
		NewLender:    newLender.address,
		NewSignature: sig,
	})
	if err != nil {
		return nil, err
	}
	s.loans[spec.Loan+"-rolled"] = res.NewLoanID
	return res, nil
}

// printReport writes loan states and party balances.
func printReport(w io.Writer, out *Outcome) error {
	dep := out.Deployment
	return dep.Store.View(context.Background(), func(st *state.Manager) error {
		fmt.Fprintln(w, "LOANS")
		for _, set := range []struct {
			name   string
			ledger *loan.Ledger
		}{{"legacy", dep.Legacy.Ledger}, {"current", dep.Current.Ledger}} {
			count, err := set.ledger.Count(st)
			if err != nil {
				return err
			}
			for id := uint64(1); id <= count; id++ {
				ln, err := set.ledger.Get(st, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "  %-8s #%d  %-9s principal=%s payoff=%s bundle=%d\n",
					set.name, ln.ID, ln.Status, ln.Terms.Principal, ln.Payoff, ln.Terms.CollateralID)
			}
		}
		for _, res := range out.Rollovers {
			fmt.Fprintf(w, "ROLLOVER %s  new loan #%d  payoff=%s fee=%s delta=%s\n",
				res.RequestID, res.NewLoanID, res.OldPayoff, res.FlashFee, res.Delta)
		}
		fmt.Fprintln(w, "BALANCES")
		names := make([]string, 0, len(out.Parties))
		for name := range out.Parties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			addr := out.Parties[name]
			bal, err := dep.Assets.BalanceOf(st, dep.Currency, addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "  %-16s %s  %s\n", name, addr.Hex(), bal)
		}
		return nil
	})
}
