package terms

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "pawnchain/core/errors"
)

const (
	// DefaultName is the protocol name bound into every terms signature.
	DefaultName = "OriginationController"
	// DefaultVersion is the domain version.
	DefaultVersion = "1"
)

var (
	ErrInvalidSignature = coreerrors.New(coreerrors.KindAuthorization, "terms: invalid signature")
	ErrDomainMismatch   = coreerrors.New(coreerrors.KindAuthorization, "terms: signature bound to a different domain")
	ErrInvalidDomain    = coreerrors.New(coreerrors.KindValue, "terms: domain incomplete")
)

// Domain binds a signature to one protocol deployment.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// Equal reports whether two domains separate signatures identically.
func (d Domain) Equal(other Domain) bool {
	if d.Name != other.Name || d.Version != other.Version || d.VerifyingContract != other.VerifyingContract {
		return false
	}
	return chainID(d).Cmp(chainID(other)) == 0
}

func chainID(d Domain) *big.Int {
	if d.ChainID == nil {
		return big.NewInt(0)
	}
	return d.ChainID
}

// LoanTerms is the immutable offer a party signs.
type LoanTerms struct {
	DurationSecs uint64
	Principal    *big.Int
	Interest     *big.Int
	CollateralID uint64
	Currency     common.Address
	Nonce        *big.Int
}

// Payoff is principal plus the fixed interest.
func (t LoanTerms) Payoff() *big.Int {
	return new(big.Int).Add(cloneBigInt(t.Principal), cloneBigInt(t.Interest))
}

// Clone returns a deep copy.
func (t LoanTerms) Clone() LoanTerms {
	out := t
	out.Principal = cloneBigInt(t.Principal)
	out.Interest = cloneBigInt(t.Interest)
	out.Nonce = cloneBigInt(t.Nonce)
	return out
}

// Signature is a recoverable secp256k1 signature over the typed-data hash of
// a LoanTerms value. Domain, when set, names the domain the signer intended.
type Signature struct {
	V      uint8
	R      [32]byte
	S      [32]byte
	Domain *Domain
}

// Bytes returns the 65-byte R || S || V encoding with V in {27, 28}.
func (s Signature) Bytes() []byte {
	out := make([]byte, 65)
	copy(out[:32], s.R[:])
	copy(out[32:64], s.S[:])
	out[64] = s.V
	return out
}

// SignatureFromBytes parses a 65-byte R || S || V signature.
func SignatureFromBytes(raw []byte) (Signature, error) {
	var sig Signature
	if len(raw) != 65 {
		return sig, ErrInvalidSignature
	}
	copy(sig.R[:], raw[:32])
	copy(sig.S[:], raw[32:64])
	sig.V = raw[64]
	return sig, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
