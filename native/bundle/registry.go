package bundle

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"pawnchain/core/state"
	"pawnchain/native/assets"
	nativecommon "pawnchain/native/common"
)

const moduleName = "bundle"

// RoleCustodian lets a loan ledger freeze, release and settle pledged
// bundles.
const RoleCustodian nativecommon.Role = "custodian"

var sequenceKey = []byte("bundle/seq")

func bundleKey(id uint64) []byte {
	return []byte(fmt.Sprintf("bundle/record/%d", id))
}

// Registry owns every bundle and custodies the deposited assets at its own
// address.
type Registry struct {
	address   common.Address
	assets    *assets.Registry
	authority *nativecommon.Authority
	pauses    nativecommon.PauseView
}

// NewRegistry creates a bundle registry custodying assets at address and
// returns its admin capability.
func NewRegistry(address common.Address, assetRegistry *assets.Registry) (*Registry, *nativecommon.Capability) {
	auth, admin := nativecommon.NewAuthority(moduleName)
	return &Registry{address: address, assets: assetRegistry, authority: auth}, admin
}

// Address is the custody address depositors must approve.
func (r *Registry) Address() common.Address { return r.address }

// Authority exposes the registry's capability issuer.
func (r *Registry) Authority() *nativecommon.Authority { return r.authority }

// SetPauses configures the pause switches consulted by mutating calls.
func (r *Registry) SetPauses(p nativecommon.PauseView) { r.pauses = p }

func (r *Registry) guard() error {
	return nativecommon.Guard(r.pauses, moduleName)
}

// Get loads a bundle.
func (r *Registry) Get(st *state.Manager, id uint64) (*Bundle, error) {
	var b Bundle
	ok, err := st.KVGet(bundleKey(id), &b)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrBundleNotFound, id)
	}
	return &b, nil
}

// Count returns the number of bundles ever created.
func (r *Registry) Count(st *state.Manager) (uint64, error) {
	return st.Sequence(sequenceKey)
}

func (r *Registry) put(st *state.Manager, b *Bundle) error {
	return st.KVPut(bundleKey(b.ID), b)
}

// mutable loads a bundle the holder may still change.
func (r *Registry) mutable(st *state.Manager, caller common.Address, id uint64) (*Bundle, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}
	b, err := r.Get(st, id)
	if err != nil {
		return nil, err
	}
	if b.Retired {
		return nil, ErrBundleRetired
	}
	if b.Owner != caller {
		return nil, ErrNotOwner
	}
	if b.Locked {
		return nil, ErrBundleLocked
	}
	return b, nil
}

// Create opens an empty bundle held by owner.
func (r *Registry) Create(st *state.Manager, owner common.Address) (uint64, error) {
	if err := r.guard(); err != nil {
		return 0, err
	}
	if owner == (common.Address{}) {
		return 0, ErrZeroAddress
	}
	id, err := st.NextSequence(sequenceKey)
	if err != nil {
		return 0, err
	}
	b := &Bundle{ID: id, Owner: owner}
	if err := r.put(st, b); err != nil {
		return 0, err
	}
	st.Emit(newCreatedEvent(b))
	return id, nil
}

// DepositUnique moves a unique item from the holder into the bundle. The
// holder must have approved the registry address for the item.
func (r *Registry) DepositUnique(st *state.Manager, caller common.Address, id uint64, collection common.Address, itemID *big.Int) error {
	b, err := r.mutable(st, caller, id)
	if err != nil {
		return err
	}
	if err := r.assets.TransferUniqueFrom(st, collection, r.address, caller, r.address, itemID); err != nil {
		return err
	}
	b.Unique = append(b.Unique, UniqueHolding{Collection: collection, ItemID: cloneBigInt(itemID)})
	if err := r.put(st, b); err != nil {
		return err
	}
	st.Emit(newDepositedEvent(id, "unique", collection, itemID, big.NewInt(1)))
	return nil
}

// DepositSemiFungible moves qty units of a semi-fungible item into the
// bundle. The registry address must be an approved operator for the holder.
func (r *Registry) DepositSemiFungible(st *state.Manager, caller common.Address, id uint64, collection common.Address, itemID, qty *big.Int) error {
	if !positive(qty) {
		return ErrInvalidAmount
	}
	b, err := r.mutable(st, caller, id)
	if err != nil {
		return err
	}
	if err := r.assets.TransferSemiFrom(st, collection, r.address, caller, r.address, itemID, qty); err != nil {
		return err
	}
	merged := false
	for i := range b.Semi {
		if b.Semi[i].Collection == collection && b.Semi[i].ItemID.Cmp(itemID) == 0 {
			b.Semi[i].Quantity = new(big.Int).Add(b.Semi[i].Quantity, qty)
			merged = true
			break
		}
	}
	if !merged {
		b.Semi = append(b.Semi, SemiHolding{Collection: collection, ItemID: cloneBigInt(itemID), Quantity: cloneBigInt(qty)})
	}
	if err := r.put(st, b); err != nil {
		return err
	}
	st.Emit(newDepositedEvent(id, "semi-fungible", collection, itemID, qty))
	return nil
}

// DepositFungible pulls amount of a fungible asset into the bundle using the
// holder's allowance to the registry address.
func (r *Registry) DepositFungible(st *state.Manager, caller common.Address, id uint64, asset common.Address, amount *big.Int) error {
	if !positive(amount) {
		return ErrInvalidAmount
	}
	b, err := r.mutable(st, caller, id)
	if err != nil {
		return err
	}
	if err := r.assets.TransferFrom(st, asset, r.address, caller, r.address, amount); err != nil {
		return err
	}
	merged := false
	for i := range b.Fungible {
		if b.Fungible[i].Asset == asset {
			b.Fungible[i].Amount = new(big.Int).Add(b.Fungible[i].Amount, amount)
			merged = true
			break
		}
	}
	if !merged {
		b.Fungible = append(b.Fungible, FungibleHolding{Asset: asset, Amount: cloneBigInt(amount)})
	}
	if err := r.put(st, b); err != nil {
		return err
	}
	st.Emit(newDepositedEvent(id, "fungible", asset, nil, amount))
	return nil
}

// Approve lets spender transfer the bundle once on the holder's behalf. The
// zero address clears the approval.
func (r *Registry) Approve(st *state.Manager, caller common.Address, id uint64, spender common.Address) error {
	b, err := r.mutable(st, caller, id)
	if err != nil {
		return err
	}
	b.Approved = spender
	if err := r.put(st, b); err != nil {
		return err
	}
	st.Emit(newApprovedEvent(id, caller, spender))
	return nil
}

// TransferOwnership hands an unlocked bundle to newOwner. The caller must be
// the holder or the approved spender.
func (r *Registry) TransferOwnership(st *state.Manager, caller common.Address, id uint64, newOwner common.Address) error {
	if err := r.guard(); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return ErrZeroAddress
	}
	b, err := r.Get(st, id)
	if err != nil {
		return err
	}
	if b.Retired {
		return ErrBundleRetired
	}
	if caller != b.Owner && (b.Approved == (common.Address{}) || caller != b.Approved) {
		return ErrNotOwner
	}
	if b.Locked {
		return ErrBundleLocked
	}
	from := b.Owner
	b.Owner = newOwner
	b.Approved = common.Address{}
	if err := r.put(st, b); err != nil {
		return err
	}
	st.Emit(newTransferredEvent(id, from, newOwner, false))
	return nil
}

// Lock freezes the bundle. Only a custodian may lock.
func (r *Registry) Lock(st *state.Manager, custodian *nativecommon.Capability, id uint64) error {
	if err := r.authority.Check(custodian, RoleCustodian); err != nil {
		return err
	}
	b, err := r.Get(st, id)
	if err != nil {
		return err
	}
	if b.Retired {
		return ErrBundleRetired
	}
	if b.Locked {
		return fmt.Errorf("%w: %d", ErrAlreadyLocked, id)
	}
	b.Locked = true
	b.Approved = common.Address{}
	if err := r.put(st, b); err != nil {
		return err
	}
	st.Emit(newLockEvent(EventTypeBundleLocked, b))
	return nil
}

// Unlock releases a frozen bundle. Only a custodian may unlock.
func (r *Registry) Unlock(st *state.Manager, custodian *nativecommon.Capability, id uint64) error {
	if err := r.authority.Check(custodian, RoleCustodian); err != nil {
		return err
	}
	b, err := r.Get(st, id)
	if err != nil {
		return err
	}
	if !b.Locked {
		return fmt.Errorf("%w: %d", ErrNotLocked, id)
	}
	b.Locked = false
	if err := r.put(st, b); err != nil {
		return err
	}
	st.Emit(newLockEvent(EventTypeBundleUnlocked, b))
	return nil
}

// TransferLocked reassigns a locked bundle during settlement. The bundle stays
// locked; the custodian unlocks it once settlement completes.
func (r *Registry) TransferLocked(st *state.Manager, custodian *nativecommon.Capability, id uint64, newOwner common.Address) error {
	if err := r.authority.Check(custodian, RoleCustodian); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return ErrZeroAddress
	}
	b, err := r.Get(st, id)
	if err != nil {
		return err
	}
	if !b.Locked {
		return fmt.Errorf("%w: %d", ErrNotLocked, id)
	}
	from := b.Owner
	b.Owner = newOwner
	if err := r.put(st, b); err != nil {
		return err
	}
	st.Emit(newTransferredEvent(id, from, newOwner, true))
	return nil
}

// Withdraw returns every holding to the holder and retires the bundle.
func (r *Registry) Withdraw(st *state.Manager, caller common.Address, id uint64) error {
	b, err := r.mutable(st, caller, id)
	if err != nil {
		return err
	}
	for _, h := range b.Unique {
		if err := r.assets.TransferUnique(st, h.Collection, r.address, caller, h.ItemID); err != nil {
			return err
		}
	}
	for _, h := range b.Semi {
		if err := r.assets.TransferSemiFrom(st, h.Collection, r.address, r.address, caller, h.ItemID, h.Quantity); err != nil {
			return err
		}
	}
	for _, h := range b.Fungible {
		if err := r.assets.Transfer(st, h.Asset, r.address, caller, h.Amount); err != nil {
			return err
		}
	}
	st.Emit(newWithdrawnEvent(b))
	b.Unique, b.Semi, b.Fungible = nil, nil, nil
	b.Retired = true
	return r.put(st, b)
}
