package assets

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"pawnchain/core/state"
	nativecommon "pawnchain/native/common"
)

// MintSemiFungible credits qty units of item id to holder.
func (r *Registry) MintSemiFungible(st *state.Manager, minter *nativecommon.Capability, collection, holder common.Address, id, qty *big.Int) error {
	if err := r.authority.Check(minter, RoleMinter); err != nil {
		return err
	}
	if !positive(qty) {
		return ErrInvalidAmount
	}
	if err := r.requireKind(st, collection, KindSemiFungible); err != nil {
		return err
	}
	if holder == (common.Address{}) {
		return ErrZeroAddress
	}
	key := semiKey(collection, id, holder)
	current, err := r.loadAmount(st, key)
	if err != nil {
		return err
	}
	next, err := addBounded(current, qty)
	if err != nil {
		return err
	}
	if err := r.storeAmount(st, key, next); err != nil {
		return err
	}
	st.Emit(newTransferEvent(collection, common.Address{}, holder, qty, id))
	return nil
}

// SemiBalanceOf returns the quantity of item id held by holder.
func (r *Registry) SemiBalanceOf(st *state.Manager, collection common.Address, id *big.Int, holder common.Address) (*big.Int, error) {
	return r.loadAmount(st, semiKey(collection, id, holder))
}

// SemiTransfer is one leg of a batch transfer.
type SemiTransfer struct {
	ID       *big.Int
	Quantity *big.Int
}

// TransferSemiFrom moves qty units of item id. The spender must be the holder
// or an approved operator.
func (r *Registry) TransferSemiFrom(st *state.Manager, collection, spender, from, to common.Address, id, qty *big.Int) error {
	return r.BatchTransferSemiFrom(st, collection, spender, from, to, []SemiTransfer{{ID: id, Quantity: qty}})
}

// BatchTransferSemiFrom moves every leg or fails as a whole.
func (r *Registry) BatchTransferSemiFrom(st *state.Manager, collection, spender, from, to common.Address, legs []SemiTransfer) error {
	if err := r.requireKind(st, collection, KindSemiFungible); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if len(legs) == 0 {
		return ErrInvalidAmount
	}
	if spender != from {
		operator, err := r.IsApprovedForAll(st, collection, from, spender)
		if err != nil {
			return err
		}
		if !operator {
			return fmt.Errorf("%w: %s is not an operator for %s", ErrApprovalMissing, spender.Hex(), from.Hex())
		}
	}
	for _, leg := range legs {
		if !positive(leg.Quantity) {
			return ErrInvalidAmount
		}
		fromKey := semiKey(collection, leg.ID, from)
		balance, err := r.loadAmount(st, fromKey)
		if err != nil {
			return err
		}
		remaining, err := subBounded(balance, leg.Quantity)
		if err != nil {
			return fmt.Errorf("%w: %s holds %s of #%s", err, from.Hex(), balance, cloneBigInt(leg.ID))
		}
		if err := r.storeAmount(st, fromKey, remaining); err != nil {
			return err
		}
		toKey := semiKey(collection, leg.ID, to)
		received, err := r.loadAmount(st, toKey)
		if err != nil {
			return err
		}
		next, err := addBounded(received, leg.Quantity)
		if err != nil {
			return err
		}
		if err := r.storeAmount(st, toKey, next); err != nil {
			return err
		}
		st.Emit(newTransferEvent(collection, from, to, leg.Quantity, leg.ID))
	}
	return nil
}
