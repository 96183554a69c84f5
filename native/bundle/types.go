package bundle

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "pawnchain/core/errors"
)

var (
	ErrNotOwner       = coreerrors.New(coreerrors.KindAuthorization, "bundle: caller is not the holder")
	ErrBundleLocked   = coreerrors.New(coreerrors.KindState, "bundle: bundle is locked")
	ErrAlreadyLocked  = coreerrors.New(coreerrors.KindConcurrency, "bundle: bundle already locked")
	ErrNotLocked      = coreerrors.New(coreerrors.KindState, "bundle: bundle is not locked")
	ErrBundleRetired  = coreerrors.New(coreerrors.KindState, "bundle: bundle was withdrawn")
	ErrBundleNotFound = coreerrors.New(coreerrors.KindValue, "bundle: bundle not found")
	ErrInvalidAmount  = coreerrors.New(coreerrors.KindValue, "bundle: amount must be positive")
	ErrZeroAddress    = coreerrors.New(coreerrors.KindValue, "bundle: zero address")
)

// UniqueHolding is one unique item held by a bundle.
type UniqueHolding struct {
	Collection common.Address
	ItemID     *big.Int
}

// SemiHolding is a quantity of one semi-fungible item.
type SemiHolding struct {
	Collection common.Address
	ItemID     *big.Int
	Quantity   *big.Int
}

// FungibleHolding is a balance of one fungible asset.
type FungibleHolding struct {
	Asset  common.Address
	Amount *big.Int
}

// Bundle aggregates holdings under a single ownership token. The recorded
// holdings always equal what the registry custodies on the bundle's behalf.
type Bundle struct {
	ID       uint64
	Owner    common.Address
	Approved common.Address
	Locked   bool
	Retired  bool
	Unique   []UniqueHolding
	Semi     []SemiHolding
	Fungible []FungibleHolding
}

// Clone returns a deep copy.
func (b *Bundle) Clone() *Bundle {
	if b == nil {
		return nil
	}
	out := *b
	out.Unique = make([]UniqueHolding, len(b.Unique))
	for i, h := range b.Unique {
		out.Unique[i] = UniqueHolding{Collection: h.Collection, ItemID: cloneBigInt(h.ItemID)}
	}
	out.Semi = make([]SemiHolding, len(b.Semi))
	for i, h := range b.Semi {
		out.Semi[i] = SemiHolding{Collection: h.Collection, ItemID: cloneBigInt(h.ItemID), Quantity: cloneBigInt(h.Quantity)}
	}
	out.Fungible = make([]FungibleHolding, len(b.Fungible))
	for i, h := range b.Fungible {
		out.Fungible[i] = FungibleHolding{Asset: h.Asset, Amount: cloneBigInt(h.Amount)}
	}
	return &out
}

// Empty reports whether the bundle holds nothing.
func (b *Bundle) Empty() bool {
	return len(b.Unique) == 0 && len(b.Semi) == 0 && len(b.Fungible) == 0
}

// FungibleBalance returns the recorded balance of asset.
func (b *Bundle) FungibleBalance(asset common.Address) *big.Int {
	for _, h := range b.Fungible {
		if h.Asset == asset {
			return cloneBigInt(h.Amount)
		}
	}
	return big.NewInt(0)
}

// SemiQuantity returns the recorded quantity of a semi-fungible item.
func (b *Bundle) SemiQuantity(collection common.Address, itemID *big.Int) *big.Int {
	for _, h := range b.Semi {
		if h.Collection == collection && h.ItemID.Cmp(itemID) == 0 {
			return cloneBigInt(h.Quantity)
		}
	}
	return big.NewInt(0)
}

// HoldsUnique reports whether the bundle holds the item.
func (b *Bundle) HoldsUnique(collection common.Address, itemID *big.Int) bool {
	for _, h := range b.Unique {
		if h.Collection == collection && h.ItemID.Cmp(itemID) == 0 {
			return true
		}
	}
	return false
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
