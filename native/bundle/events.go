package bundle

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"pawnchain/core/types"
)

const (
	EventTypeBundleCreated     = "bundle.created"
	EventTypeBundleDeposited   = "bundle.deposited"
	EventTypeBundleLocked      = "bundle.locked"
	EventTypeBundleUnlocked    = "bundle.unlocked"
	EventTypeBundleTransferred = "bundle.transferred"
	EventTypeBundleApproved    = "bundle.approved"
	EventTypeBundleWithdrawn   = "bundle.withdrawn"
)

func idString(id uint64) string { return strconv.FormatUint(id, 10) }

func newCreatedEvent(b *Bundle) *types.Event {
	return types.NewEvent(EventTypeBundleCreated, "id", idString(b.ID), "owner", b.Owner.Hex())
}

func newDepositedEvent(id uint64, kind string, asset common.Address, itemID, amount *big.Int) *types.Event {
	evt := types.NewEvent(EventTypeBundleDeposited,
		"id", idString(id),
		"kind", kind,
		"asset", asset.Hex(),
		"amount", cloneBigInt(amount).String(),
	)
	if itemID != nil {
		evt.Attributes["itemId"] = itemID.String()
	}
	return evt
}

func newLockEvent(eventType string, b *Bundle) *types.Event {
	return types.NewEvent(eventType, "id", idString(b.ID), "owner", b.Owner.Hex())
}

func newTransferredEvent(id uint64, from, to common.Address, locked bool) *types.Event {
	return types.NewEvent(EventTypeBundleTransferred,
		"id", idString(id),
		"from", from.Hex(),
		"to", to.Hex(),
		"locked", strconv.FormatBool(locked),
	)
}

func newApprovedEvent(id uint64, owner, spender common.Address) *types.Event {
	return types.NewEvent(EventTypeBundleApproved, "id", idString(id), "owner", owner.Hex(), "spender", spender.Hex())
}

func newWithdrawnEvent(b *Bundle) *types.Event {
	return types.NewEvent(EventTypeBundleWithdrawn,
		"id", idString(b.ID),
		"owner", b.Owner.Hex(),
		"unique", strconv.Itoa(len(b.Unique)),
		"semi", strconv.Itoa(len(b.Semi)),
		"fungible", strconv.Itoa(len(b.Fungible)),
	)
}
