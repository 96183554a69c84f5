package terms

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const primaryType = "LoanTerms"

var typedDataTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	primaryType: {
		{Name: "durationSecs", Type: "uint256"},
		{Name: "principal", Type: "uint256"},
		{Name: "interest", Type: "uint256"},
		{Name: "collateralTokenId", Type: "uint256"},
		{Name: "payableCurrency", Type: "address"},
		{Name: "nonce", Type: "uint256"},
	},
}

func typedData(domain Domain, t LoanTerms) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       typedDataTypes,
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID(domain))),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"durationSecs":      new(big.Int).SetUint64(t.DurationSecs),
			"principal":         cloneBigInt(t.Principal),
			"interest":          cloneBigInt(t.Interest),
			"collateralTokenId": new(big.Int).SetUint64(t.CollateralID),
			"payableCurrency":   t.Currency.Hex(),
			"nonce":             cloneBigInt(t.Nonce),
		},
	}
}

func validateDomain(domain Domain) error {
	if strings.TrimSpace(domain.Name) == "" || strings.TrimSpace(domain.Version) == "" {
		return ErrInvalidDomain
	}
	if domain.ChainID == nil || domain.ChainID.Sign() <= 0 {
		return ErrInvalidDomain
	}
	if domain.VerifyingContract == (common.Address{}) {
		return ErrInvalidDomain
	}
	return nil
}

// Hash returns the EIP-712 digest of terms under domain.
func Hash(domain Domain, t LoanTerms) (common.Hash, error) {
	if err := validateDomain(domain); err != nil {
		return common.Hash{}, err
	}
	digest, _, err := apitypes.TypedDataAndHash(typedData(domain, t))
	if err != nil {
		return common.Hash{}, fmt.Errorf("terms: hash: %w", err)
	}
	return common.BytesToHash(digest), nil
}

// Sign produces a signature over terms bound to domain.
func Sign(domain Domain, t LoanTerms, key *ecdsa.PrivateKey) (Signature, error) {
	if key == nil {
		return Signature{}, fmt.Errorf("terms: signing key required")
	}
	digest, err := Hash(domain, t)
	if err != nil {
		return Signature{}, err
	}
	raw, err := ethcrypto.Sign(digest.Bytes(), key)
	if err != nil {
		return Signature{}, err
	}
	raw[64] += 27
	sig, err := SignatureFromBytes(raw)
	if err != nil {
		return Signature{}, err
	}
	bound := domain
	bound.ChainID = new(big.Int).Set(domain.ChainID)
	sig.Domain = &bound
	return sig, nil
}

// Verify recovers the address that signed terms under domain. A signature
// declaring another domain fails with ErrDomainMismatch; a signature produced
// under another domain without declaring it recovers an unrelated address.
func Verify(domain Domain, t LoanTerms, sig Signature) (common.Address, error) {
	if sig.Domain != nil && !sig.Domain.Equal(domain) {
		return common.Address{}, ErrDomainMismatch
	}
	digest, err := Hash(domain, t)
	if err != nil {
		return common.Address{}, err
	}
	v := sig.V
	if v >= 27 {
		v -= 27
	}
	r := new(big.Int).SetBytes(sig.R[:])
	s := new(big.Int).SetBytes(sig.S[:])
	if !ethcrypto.ValidateSignatureValues(v, r, s, true) {
		return common.Address{}, ErrInvalidSignature
	}
	raw := sig.Bytes()
	raw[64] = v
	pub, err := ethcrypto.SigToPub(digest.Bytes(), raw)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
