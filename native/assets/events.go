package assets

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"pawnchain/core/types"
)

const (
	EventTypeAssetRegistered = "assets.registered"
	EventTypeAssetTransfer   = "assets.transfer"
	EventTypeAssetApproval   = "assets.approval"
)

func newRegisteredEvent(meta Metadata) *types.Event {
	return types.NewEvent(EventTypeAssetRegistered,
		"asset", meta.Address.Hex(),
		"kind", meta.Kind.String(),
		"symbol", meta.Symbol,
		"decimals", strconv.FormatUint(uint64(meta.Decimals), 10),
	)
}

func newTransferEvent(asset, from, to common.Address, amount, id *big.Int) *types.Event {
	evt := types.NewEvent(EventTypeAssetTransfer,
		"asset", asset.Hex(),
		"from", from.Hex(),
		"to", to.Hex(),
		"amount", cloneBigInt(amount).String(),
	)
	if id != nil {
		evt.Attributes["id"] = id.String()
	}
	return evt
}

func newApprovalEvent(asset, owner, spender common.Address, value string) *types.Event {
	return types.NewEvent(EventTypeAssetApproval,
		"asset", asset.Hex(),
		"owner", owner.Hex(),
		"spender", spender.Hex(),
		"value", value,
	)
}
