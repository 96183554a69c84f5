package assets

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"pawnchain/core/state"
	nativecommon "pawnchain/native/common"
)

// MintUnique creates item id of collection owned by holder.
func (r *Registry) MintUnique(st *state.Manager, minter *nativecommon.Capability, collection, holder common.Address, id *big.Int) error {
	if err := r.authority.Check(minter, RoleMinter); err != nil {
		return err
	}
	if err := r.requireKind(st, collection, KindUnique); err != nil {
		return err
	}
	if holder == (common.Address{}) {
		return ErrZeroAddress
	}
	if _, ok, err := r.ownerOf(st, collection, id); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s #%s", ErrItemExists, collection.Hex(), cloneBigInt(id))
	}
	if err := st.KVPut(ownerKey(collection, id), holder); err != nil {
		return err
	}
	st.Emit(newTransferEvent(collection, common.Address{}, holder, big.NewInt(1), id))
	return nil
}

func (r *Registry) ownerOf(st *state.Manager, collection common.Address, id *big.Int) (common.Address, bool, error) {
	var owner common.Address
	ok, err := st.KVGet(ownerKey(collection, id), &owner)
	return owner, ok, err
}

// OwnerOf returns the holder of a unique item.
func (r *Registry) OwnerOf(st *state.Manager, collection common.Address, id *big.Int) (common.Address, error) {
	owner, ok, err := r.ownerOf(st, collection, id)
	if err != nil {
		return common.Address{}, err
	}
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s #%s not minted", ErrUnknownAsset, collection.Hex(), cloneBigInt(id))
	}
	return owner, nil
}

// ApproveUnique lets spender move one specific item. Only the holder may
// approve. The zero address clears the approval.
func (r *Registry) ApproveUnique(st *state.Manager, collection, owner, spender common.Address, id *big.Int) error {
	if err := r.requireKind(st, collection, KindUnique); err != nil {
		return err
	}
	current, err := r.OwnerOf(st, collection, id)
	if err != nil {
		return err
	}
	if current != owner {
		return ErrNotItemOwner
	}
	key := itemApprovalKey(collection, id)
	if spender == (common.Address{}) {
		if err := st.KVDelete(key); err != nil {
			return err
		}
	} else if err := st.KVPut(key, spender); err != nil {
		return err
	}
	st.Emit(newApprovalEvent(collection, owner, spender, cloneBigInt(id).String()))
	return nil
}

// SetApprovalForAll toggles operator rights over every unique or
// semi-fungible item owner holds in collection.
func (r *Registry) SetApprovalForAll(st *state.Manager, collection, owner, operator common.Address, approved bool) error {
	meta, err := r.Metadata(st, collection)
	if err != nil {
		return err
	}
	if meta.Kind != KindUnique && meta.Kind != KindSemiFungible {
		return fmt.Errorf("%w: operator approvals need a unique or semi-fungible collection", ErrWrongKind)
	}
	if operator == (common.Address{}) {
		return ErrZeroAddress
	}
	key := operatorKey(collection, owner, operator)
	if approved {
		if err := st.KVPut(key, true); err != nil {
			return err
		}
	} else if err := st.KVDelete(key); err != nil {
		return err
	}
	flag := "false"
	if approved {
		flag = "true"
	}
	st.Emit(newApprovalEvent(collection, owner, operator, "all:"+flag))
	return nil
}

// IsApprovedForAll reports operator rights.
func (r *Registry) IsApprovedForAll(st *state.Manager, collection, owner, operator common.Address) (bool, error) {
	var approved bool
	ok, err := st.KVGet(operatorKey(collection, owner, operator), &approved)
	if err != nil {
		return false, err
	}
	return ok && approved, nil
}

// TransferUniqueFrom moves item id from its holder to to on behalf of
// spender. The spender must be the holder, an operator, or the single-item
// approvee; a single-item approval is consumed by the transfer.
func (r *Registry) TransferUniqueFrom(st *state.Manager, collection, spender, from, to common.Address, id *big.Int) error {
	if err := r.requireKind(st, collection, KindUnique); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	owner, err := r.OwnerOf(st, collection, id)
	if err != nil {
		return err
	}
	if owner != from {
		return ErrNotItemOwner
	}
	if spender != owner {
		var approved common.Address
		hasItemApproval, err := st.KVGet(itemApprovalKey(collection, id), &approved)
		if err != nil {
			return err
		}
		operator, err := r.IsApprovedForAll(st, collection, owner, spender)
		if err != nil {
			return err
		}
		if !operator && (!hasItemApproval || approved != spender) {
			return fmt.Errorf("%w: %s may not move %s #%s", ErrApprovalMissing, spender.Hex(), collection.Hex(), cloneBigInt(id))
		}
	}
	// A transfer always clears the single-item approval.
	if err := st.KVDelete(itemApprovalKey(collection, id)); err != nil {
		return err
	}
	if err := st.KVPut(ownerKey(collection, id), to); err != nil {
		return err
	}
	st.Emit(newTransferEvent(collection, from, to, big.NewInt(1), id))
	return nil
}

// TransferUnique moves an item the caller holds.
func (r *Registry) TransferUnique(st *state.Manager, collection, from, to common.Address, id *big.Int) error {
	return r.TransferUniqueFrom(st, collection, from, from, to, id)
}
