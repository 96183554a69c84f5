package assets

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"pawnchain/core/state"
	nativecommon "pawnchain/native/common"
	"pawnchain/storage"
)

var (
	usd    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	punks  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	beats  = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000000011")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000022")
	broker = common.HexToAddress("0x0000000000000000000000000000000000000033")
)

type harness struct {
	store    *state.Store
	registry *Registry
	minter   *nativecommon.Capability
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	registry, admin := NewRegistry()
	minter, err := registry.Authority().Grant(admin, RoleMinter)
	if err != nil {
		t.Fatalf("grant minter: %v", err)
	}
	h := &harness{store: state.NewStore(storage.NewMemDB()), registry: registry, minter: minter}
	h.update(t, func(st *state.Manager) error {
		for _, meta := range []Metadata{
			{Address: usd, Kind: KindFungible, Symbol: "pusd", Decimals: 6},
			{Address: punks, Kind: KindUnique, Symbol: "punk"},
			{Address: beats, Kind: KindSemiFungible, Symbol: "beat"},
		} {
			if err := registry.Register(st, meta); err != nil {
				return err
			}
		}
		return nil
	})
	return h
}

func (h *harness) update(t *testing.T, fn func(st *state.Manager) error) {
	t.Helper()
	if err := h.store.Update(context.Background(), fn); err != nil {
		t.Fatalf("update: %v", err)
	}
}

func (h *harness) try(fn func(st *state.Manager) error) error {
	return h.store.Update(context.Background(), fn)
}

func (h *harness) balance(t *testing.T, asset, holder common.Address) *big.Int {
	t.Helper()
	var out *big.Int
	if err := h.store.View(context.Background(), func(st *state.Manager) error {
		var err error
		out, err = h.registry.BalanceOf(st, asset, holder)
		return err
	}); err != nil {
		t.Fatalf("balance: %v", err)
	}
	return out
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	h := newHarness(t)
	err := h.try(func(st *state.Manager) error {
		return h.registry.Register(st, Metadata{Address: usd, Kind: KindFungible, Symbol: "dup"})
	})
	if !errors.Is(err, ErrAssetExists) {
		t.Fatalf("expected ErrAssetExists, got %v", err)
	}
	h.update(t, func(st *state.Manager) error {
		meta, err := h.registry.Metadata(st, usd)
		if err != nil {
			return err
		}
		if meta.Symbol != "PUSD" || meta.Decimals != 6 {
			t.Fatalf("unexpected metadata %+v", meta)
		}
		return nil
	})
}

func TestMintRequiresMinterCapability(t *testing.T) {
	h := newHarness(t)
	err := h.try(func(st *state.Manager) error {
		return h.registry.Mint(st, nil, usd, alice, big.NewInt(10))
	})
	if !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	h := newHarness(t)
	h.update(t, func(st *state.Manager) error {
		if err := h.registry.Mint(st, h.minter, usd, alice, big.NewInt(100)); err != nil {
			return err
		}
		return h.registry.Approve(st, usd, alice, broker, big.NewInt(60))
	})

	h.update(t, func(st *state.Manager) error {
		return h.registry.TransferFrom(st, usd, broker, alice, bob, big.NewInt(40))
	})
	if got := h.balance(t, usd, bob); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("expected bob to hold 40, got %s", got)
	}

	err := h.try(func(st *state.Manager) error {
		return h.registry.TransferFrom(st, usd, broker, alice, bob, big.NewInt(30))
	})
	if !errors.Is(err, ErrApprovalMissing) {
		t.Fatalf("expected ErrApprovalMissing, got %v", err)
	}
	if got := h.balance(t, usd, alice); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("failed pull must not move funds, alice holds %s", got)
	}

	h.update(t, func(st *state.Manager) error {
		remaining, err := h.registry.Allowance(st, usd, alice, broker)
		if err != nil {
			return err
		}
		if remaining.Cmp(big.NewInt(20)) != 0 {
			t.Fatalf("expected 20 allowance left, got %s", remaining)
		}
		return nil
	})
}

func TestTransferRejectsOverdraftAndOverflow(t *testing.T) {
	h := newHarness(t)
	h.update(t, func(st *state.Manager) error {
		return h.registry.Mint(st, h.minter, usd, alice, big.NewInt(5))
	})
	err := h.try(func(st *state.Manager) error {
		return h.registry.Transfer(st, usd, alice, bob, big.NewInt(6))
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	err = h.try(func(st *state.Manager) error {
		return h.registry.Mint(st, h.minter, usd, alice, max)
	})
	if !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected ErrBalanceOverflow, got %v", err)
	}
}

func TestUniqueApprovalIsSingleUse(t *testing.T) {
	h := newHarness(t)
	id := big.NewInt(7)
	h.update(t, func(st *state.Manager) error {
		if err := h.registry.MintUnique(st, h.minter, punks, alice, id); err != nil {
			return err
		}
		return h.registry.ApproveUnique(st, punks, alice, broker, id)
	})

	err := h.try(func(st *state.Manager) error {
		return h.registry.TransferUniqueFrom(st, punks, bob, alice, bob, id)
	})
	if !errors.Is(err, ErrApprovalMissing) {
		t.Fatalf("expected ErrApprovalMissing for stranger, got %v", err)
	}

	h.update(t, func(st *state.Manager) error {
		return h.registry.TransferUniqueFrom(st, punks, broker, alice, broker, id)
	})
	h.update(t, func(st *state.Manager) error {
		owner, err := h.registry.OwnerOf(st, punks, id)
		if err != nil {
			return err
		}
		if owner != broker {
			t.Fatalf("expected broker to own item, got %s", owner.Hex())
		}
		return h.registry.TransferUniqueFrom(st, punks, broker, broker, alice, id)
	})

	err = h.try(func(st *state.Manager) error {
		return h.registry.TransferUniqueFrom(st, punks, broker, alice, broker, id)
	})
	if !errors.Is(err, ErrApprovalMissing) {
		t.Fatalf("approval must be consumed by the first transfer, got %v", err)
	}

	err = h.try(func(st *state.Manager) error {
		return h.registry.MintUnique(st, h.minter, punks, bob, id)
	})
	if !errors.Is(err, ErrItemExists) {
		t.Fatalf("expected ErrItemExists, got %v", err)
	}
}

func TestSemiBatchTransferIsAllOrNothing(t *testing.T) {
	h := newHarness(t)
	h.update(t, func(st *state.Manager) error {
		if err := h.registry.MintSemiFungible(st, h.minter, beats, alice, big.NewInt(0), big.NewInt(3)); err != nil {
			return err
		}
		if err := h.registry.MintSemiFungible(st, h.minter, beats, alice, big.NewInt(1), big.NewInt(1)); err != nil {
			return err
		}
		return h.registry.SetApprovalForAll(st, beats, alice, broker, true)
	})

	err := h.try(func(st *state.Manager) error {
		return h.registry.BatchTransferSemiFrom(st, beats, broker, alice, bob, []SemiTransfer{
			{ID: big.NewInt(0), Quantity: big.NewInt(2)},
			{ID: big.NewInt(1), Quantity: big.NewInt(5)},
		})
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	h.update(t, func(st *state.Manager) error {
		got, err := h.registry.SemiBalanceOf(st, beats, big.NewInt(0), alice)
		if err != nil {
			return err
		}
		if got.Cmp(big.NewInt(3)) != 0 {
			t.Fatalf("failed batch must not move the first leg, alice holds %s", got)
		}
		return h.registry.TransferSemiFrom(st, beats, broker, alice, bob, big.NewInt(0), big.NewInt(2))
	})

	h.update(t, func(st *state.Manager) error {
		if err := h.registry.SetApprovalForAll(st, beats, alice, broker, false); err != nil {
			return err
		}
		ok, err := h.registry.IsApprovedForAll(st, beats, alice, broker)
		if err != nil {
			return err
		}
		if ok {
			t.Fatalf("operator approval should be revoked")
		}
		return nil
	})
	err = h.try(func(st *state.Manager) error {
		return h.registry.TransferSemiFrom(st, beats, broker, alice, bob, big.NewInt(0), big.NewInt(1))
	})
	if !errors.Is(err, ErrApprovalMissing) {
		t.Fatalf("expected ErrApprovalMissing, got %v", err)
	}
}

func TestKindMismatchIsRejected(t *testing.T) {
	h := newHarness(t)
	err := h.try(func(st *state.Manager) error {
		return h.registry.Transfer(st, punks, alice, bob, big.NewInt(1))
	})
	if !errors.Is(err, ErrWrongKind) {
		t.Fatalf("expected ErrWrongKind, got %v", err)
	}
}
