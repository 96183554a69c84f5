package assets

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	metaPrefix      = []byte("assets/meta/")
	balancePrefix   = []byte("assets/balance/")
	allowancePrefix = []byte("assets/allowance/")
	ownerPrefix     = []byte("assets/owner/")
	itemApprPrefix  = []byte("assets/item-approval/")
	operatorPrefix  = []byte("assets/operator/")
	semiPrefix      = []byte("assets/semi/")
)

func join(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, p := range parts {
		if i > 0 {
			buf = append(buf, '/')
		}
		buf = append(buf, p...)
	}
	return buf
}

func idBytes(id *big.Int) []byte {
	return []byte(cloneBigInt(id).Text(16))
}

func metaKey(asset common.Address) []byte { return join(metaPrefix, asset.Bytes()) }

func balanceKey(asset, owner common.Address) []byte {
	return join(balancePrefix, asset.Bytes(), owner.Bytes())
}

func allowanceKey(asset, owner, spender common.Address) []byte {
	return join(allowancePrefix, asset.Bytes(), owner.Bytes(), spender.Bytes())
}

func ownerKey(collection common.Address, id *big.Int) []byte {
	return join(ownerPrefix, collection.Bytes(), idBytes(id))
}

func itemApprovalKey(collection common.Address, id *big.Int) []byte {
	return join(itemApprPrefix, collection.Bytes(), idBytes(id))
}

func operatorKey(collection, owner, operator common.Address) []byte {
	return join(operatorPrefix, collection.Bytes(), owner.Bytes(), operator.Bytes())
}

func semiKey(collection common.Address, id *big.Int, owner common.Address) []byte {
	return join(semiPrefix, collection.Bytes(), idBytes(id), owner.Bytes())
}
