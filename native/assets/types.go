package assets

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	coreerrors "pawnchain/core/errors"
)

var (
	ErrApprovalMissing     = coreerrors.New(coreerrors.KindAuthorization, "assets: approval missing")
	ErrNotItemOwner        = coreerrors.New(coreerrors.KindAuthorization, "assets: caller does not own item")
	ErrInsufficientBalance = coreerrors.New(coreerrors.KindValue, "assets: insufficient balance")
	ErrInvalidAmount       = coreerrors.New(coreerrors.KindValue, "assets: amount must be positive")
	ErrBalanceOverflow     = coreerrors.New(coreerrors.KindValue, "assets: balance exceeds 256 bits")
	ErrUnknownAsset        = coreerrors.New(coreerrors.KindValue, "assets: unknown asset")
	ErrWrongKind           = coreerrors.New(coreerrors.KindValue, "assets: asset kind mismatch")
	ErrAssetExists         = coreerrors.New(coreerrors.KindState, "assets: asset already registered")
	ErrItemExists          = coreerrors.New(coreerrors.KindState, "assets: item already minted")
	ErrZeroAddress         = coreerrors.New(coreerrors.KindValue, "assets: zero address")
)

// Kind distinguishes the three supported asset standards.
type Kind uint8

const (
	KindFungible Kind = iota + 1
	KindUnique
	KindSemiFungible
)

func (k Kind) String() string {
	switch k {
	case KindFungible:
		return "fungible"
	case KindUnique:
		return "unique"
	case KindSemiFungible:
		return "semi-fungible"
	default:
		return "unknown"
	}
}

// Metadata describes a registered asset contract.
type Metadata struct {
	Address  common.Address
	Kind     Kind
	Symbol   string
	Name     string
	Decimals uint8
}

func (m *Metadata) normalize() {
	m.Symbol = strings.ToUpper(strings.TrimSpace(m.Symbol))
	m.Name = strings.TrimSpace(m.Name)
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

// addBounded returns a+b, rejecting results that do not fit in 256 bits.
func addBounded(a, b *big.Int) (*big.Int, error) {
	x, overflowA := uint256.FromBig(cloneBigInt(a))
	y, overflowB := uint256.FromBig(cloneBigInt(b))
	if overflowA || overflowB {
		return nil, ErrBalanceOverflow
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrBalanceOverflow
	}
	return sum.ToBig(), nil
}

// subBounded returns a-b, failing with ErrInsufficientBalance on underflow.
func subBounded(a, b *big.Int) (*big.Int, error) {
	x, overflowA := uint256.FromBig(cloneBigInt(a))
	y, overflowB := uint256.FromBig(cloneBigInt(b))
	if overflowA || overflowB {
		return nil, ErrBalanceOverflow
	}
	diff, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrInsufficientBalance
	}
	return diff.ToBig(), nil
}
