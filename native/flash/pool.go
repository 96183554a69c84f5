package flash

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"pawnchain/core/state"
	"pawnchain/core/types"
	"pawnchain/native/assets"
	nativecommon "pawnchain/native/common"
)

const (
	moduleName = "flash"

	EventTypeFlashDrawn  = "flash.drawn"
	EventTypeFlashRepaid = "flash.repaid"

	maxFeeBps = 10_000
)

// Pool is a Provider backed by reserves held at its own address in the asset
// registry.
type Pool struct {
	address common.Address
	assets  *assets.Registry
	feeBps  uint32
	pauses  nativecommon.PauseView
}

// NewPool creates a pool charging feeBps basis points per draw.
func NewPool(address common.Address, registry *assets.Registry, feeBps uint32) (*Pool, error) {
	if registry == nil {
		return nil, fmt.Errorf("flash: asset registry required")
	}
	if address == (common.Address{}) {
		return nil, fmt.Errorf("flash: pool address required")
	}
	if feeBps > maxFeeBps {
		return nil, fmt.Errorf("flash: fee %d bps exceeds %d", feeBps, maxFeeBps)
	}
	return &Pool{address: address, assets: registry, feeBps: feeBps}, nil
}

// Address holds the pool reserves.
func (p *Pool) Address() common.Address { return p.address }

// FeeBps returns the configured fee.
func (p *Pool) FeeBps() uint32 { return p.feeBps }

// SetPauses configures the pause switches consulted by draws.
func (p *Pool) SetPauses(v nativecommon.PauseView) { p.pauses = v }

// Reserves returns the pool balance of currency.
func (p *Pool) Reserves(st *state.Manager, currency common.Address) (*big.Int, error) {
	return p.assets.BalanceOf(st, currency, p.address)
}

// Fee returns amount * feeBps / 10000 rounded up so any non-zero rate charges
// at least one unit.
func (p *Pool) Fee(_ common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if p.feeBps == 0 {
		return big.NewInt(0), nil
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(p.feeBps)))
	fee.Add(fee, big.NewInt(maxFeeBps-1))
	return fee.Quo(fee, big.NewInt(maxFeeBps)), nil
}

// Draw moves amount of currency from the reserves to to. The unit cannot
// commit until the draw is repaid.
func (p *Pool) Draw(st *state.Manager, currency common.Address, amount *big.Int, to common.Address) (*Draw, error) {
	if err := nativecommon.Guard(p.pauses, moduleName); err != nil {
		return nil, err
	}
	fee, err := p.Fee(currency, amount)
	if err != nil {
		return nil, err
	}
	reserves, err := p.Reserves(st, currency)
	if err != nil {
		return nil, err
	}
	if reserves.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: holds %s, requested %s", ErrInsufficientReserves, reserves, amount)
	}
	if err := p.assets.Transfer(st, currency, p.address, to, amount); err != nil {
		return nil, err
	}
	draw := &Draw{
		Currency: currency,
		Amount:   new(big.Int).Set(amount),
		Fee:      fee,
		To:       to,
		Lender:   p.address,
		issuer:   p,
	}
	st.BeforeCommit(func() error {
		if !draw.repaid {
			return fmt.Errorf("%w: %s of %s", ErrDrawOutstanding, draw.Amount, currency.Hex())
		}
		return nil
	})
	st.Emit(types.NewEvent(EventTypeFlashDrawn,
		"pool", p.address.Hex(),
		"currency", currency.Hex(),
		"amount", draw.Amount.String(),
		"fee", fee.String(),
		"to", to.Hex(),
	))
	return draw, nil
}

// Repay pulls amount plus fee from from using its allowance to the pool.
func (p *Pool) Repay(st *state.Manager, draw *Draw, from common.Address) error {
	if draw == nil || draw.issuer != p {
		return ErrUnknownDraw
	}
	if draw.repaid {
		return ErrDrawSettled
	}
	due := draw.Due()
	if err := p.assets.TransferFrom(st, draw.Currency, p.address, from, p.address, due); err != nil {
		return err
	}
	draw.repaid = true
	st.Emit(types.NewEvent(EventTypeFlashRepaid,
		"pool", p.address.Hex(),
		"currency", draw.Currency.Hex(),
		"amount", due.String(),
		"from", from.Hex(),
		"feeBps", strconv.FormatUint(uint64(p.feeBps), 10),
	))
	return nil
}
