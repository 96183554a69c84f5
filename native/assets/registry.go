package assets

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"pawnchain/core/state"
	nativecommon "pawnchain/native/common"
)

// RoleMinter permits creating new supply. Minting belongs to bootstrap code;
// settlement paths only move existing value.
const RoleMinter nativecommon.Role = "minter"

// Registry hosts every fungible, unique and semi-fungible asset contract and
// enforces approval-gated transfers between holders.
type Registry struct {
	authority *nativecommon.Authority
}

// NewRegistry returns the registry and its admin capability.
func NewRegistry() (*Registry, *nativecommon.Capability) {
	auth, admin := nativecommon.NewAuthority("assets")
	return &Registry{authority: auth}, admin
}

// Authority exposes the registry's capability issuer.
func (r *Registry) Authority() *nativecommon.Authority { return r.authority }

// Register records a new asset contract.
func (r *Registry) Register(st *state.Manager, meta Metadata) error {
	if meta.Address == (common.Address{}) {
		return ErrZeroAddress
	}
	switch meta.Kind {
	case KindFungible, KindUnique, KindSemiFungible:
	default:
		return fmt.Errorf("assets: unsupported kind %d", meta.Kind)
	}
	meta.normalize()
	ok, err := st.KVGet(metaKey(meta.Address), nil)
	if err != nil {
		return err
	}
	if ok {
		return ErrAssetExists
	}
	if err := st.KVPut(metaKey(meta.Address), meta); err != nil {
		return err
	}
	st.Emit(newRegisteredEvent(meta))
	return nil
}

// Metadata loads the descriptor of asset.
func (r *Registry) Metadata(st *state.Manager, asset common.Address) (*Metadata, error) {
	var meta Metadata
	ok, err := st.KVGet(metaKey(asset), &meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}
	return &meta, nil
}

func (r *Registry) requireKind(st *state.Manager, asset common.Address, kind Kind) error {
	meta, err := r.Metadata(st, asset)
	if err != nil {
		return err
	}
	if meta.Kind != kind {
		return fmt.Errorf("%w: %s is %s, want %s", ErrWrongKind, asset.Hex(), meta.Kind, kind)
	}
	return nil
}

func (r *Registry) loadAmount(st *state.Manager, key []byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := st.KVGet(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (r *Registry) storeAmount(st *state.Manager, key []byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return st.KVDelete(key)
	}
	return st.KVPut(key, amount)
}

// --- Fungible ---

// Mint credits amount of a fungible asset to holder.
func (r *Registry) Mint(st *state.Manager, minter *nativecommon.Capability, asset, holder common.Address, amount *big.Int) error {
	if err := r.authority.Check(minter, RoleMinter); err != nil {
		return err
	}
	if !positive(amount) {
		return ErrInvalidAmount
	}
	if err := r.requireKind(st, asset, KindFungible); err != nil {
		return err
	}
	if err := r.credit(st, asset, holder, amount); err != nil {
		return err
	}
	st.Emit(newTransferEvent(asset, common.Address{}, holder, amount, nil))
	return nil
}

// BalanceOf returns the fungible balance of holder.
func (r *Registry) BalanceOf(st *state.Manager, asset, holder common.Address) (*big.Int, error) {
	return r.loadAmount(st, balanceKey(asset, holder))
}

func (r *Registry) credit(st *state.Manager, asset, holder common.Address, amount *big.Int) error {
	if holder == (common.Address{}) {
		return ErrZeroAddress
	}
	key := balanceKey(asset, holder)
	current, err := r.loadAmount(st, key)
	if err != nil {
		return err
	}
	next, err := addBounded(current, amount)
	if err != nil {
		return err
	}
	return r.storeAmount(st, key, next)
}

func (r *Registry) debit(st *state.Manager, asset, holder common.Address, amount *big.Int) error {
	key := balanceKey(asset, holder)
	current, err := r.loadAmount(st, key)
	if err != nil {
		return err
	}
	next, err := subBounded(current, amount)
	if err != nil {
		return fmt.Errorf("%w: %s holds %s, needs %s", err, holder.Hex(), current, amount)
	}
	return r.storeAmount(st, key, next)
}

// Transfer moves amount from the caller's own balance.
func (r *Registry) Transfer(st *state.Manager, asset, from, to common.Address, amount *big.Int) error {
	if !positive(amount) {
		return ErrInvalidAmount
	}
	if err := r.requireKind(st, asset, KindFungible); err != nil {
		return err
	}
	if err := r.debit(st, asset, from, amount); err != nil {
		return err
	}
	if err := r.credit(st, asset, to, amount); err != nil {
		return err
	}
	st.Emit(newTransferEvent(asset, from, to, amount, nil))
	return nil
}

// Approve sets the allowance spender may pull from owner. A zero amount clears
// the allowance.
func (r *Registry) Approve(st *state.Manager, asset, owner, spender common.Address, amount *big.Int) error {
	if err := r.requireKind(st, asset, KindFungible); err != nil {
		return err
	}
	if spender == (common.Address{}) {
		return ErrZeroAddress
	}
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := r.storeAmount(st, allowanceKey(asset, owner, spender), amt); err != nil {
		return err
	}
	st.Emit(newApprovalEvent(asset, owner, spender, amt.String()))
	return nil
}

// Allowance returns the amount spender may still pull from owner.
func (r *Registry) Allowance(st *state.Manager, asset, owner, spender common.Address) (*big.Int, error) {
	return r.loadAmount(st, allowanceKey(asset, owner, spender))
}

// TransferFrom pulls amount from owner on behalf of spender, consuming the
// allowance owner granted earlier.
func (r *Registry) TransferFrom(st *state.Manager, asset, spender, owner, to common.Address, amount *big.Int) error {
	if !positive(amount) {
		return ErrInvalidAmount
	}
	if err := r.requireKind(st, asset, KindFungible); err != nil {
		return err
	}
	if spender != owner {
		key := allowanceKey(asset, owner, spender)
		allowance, err := r.loadAmount(st, key)
		if err != nil {
			return err
		}
		if allowance.Cmp(amount) < 0 {
			return fmt.Errorf("%w: %s allowed %s to pull %s, needs %s", ErrApprovalMissing, owner.Hex(), spender.Hex(), allowance, amount)
		}
		if err := r.storeAmount(st, key, new(big.Int).Sub(allowance, amount)); err != nil {
			return err
		}
	}
	if err := r.debit(st, asset, owner, amount); err != nil {
		return err
	}
	if err := r.credit(st, asset, to, amount); err != nil {
		return err
	}
	st.Emit(newTransferEvent(asset, owner, to, amount, nil))
	return nil
}

// RegisterFungible records a fungible asset contract.
func (r *Registry) RegisterFungible(st *state.Manager, asset common.Address, symbol string, decimals uint8) error {
	return r.Register(st, Metadata{Address: asset, Kind: KindFungible, Symbol: symbol, Decimals: decimals})
}

// RegisterUnique records a unique-item collection.
func (r *Registry) RegisterUnique(st *state.Manager, collection common.Address, symbol string) error {
	return r.Register(st, Metadata{Address: collection, Kind: KindUnique, Symbol: symbol})
}

// RegisterSemiFungible records a semi-fungible collection.
func (r *Registry) RegisterSemiFungible(st *state.Manager, collection common.Address, symbol string) error {
	return r.Register(st, Metadata{Address: collection, Kind: KindSemiFungible, Symbol: symbol})
}
