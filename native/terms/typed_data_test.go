package terms

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func testDomain(contract string) Domain {
	return Domain{
		Name:              DefaultName,
		Version:           DefaultVersion,
		ChainID:           big.NewInt(1337),
		VerifyingContract: common.HexToAddress(contract),
	}
}

func sampleTerms() LoanTerms {
	return LoanTerms{
		DurationSecs: 7 * 24 * 3600,
		Principal:    big.NewInt(10),
		Interest:     big.NewInt(1),
		CollateralID: 1,
		Currency:     common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Nonce:        big.NewInt(0),
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	domain := testDomain("0x00000000000000000000000000000000000000c1")
	sig, err := Sign(domain, sampleTerms(), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if sig.V != 27 && sig.V != 28 {
		t.Fatalf("unexpected recovery id %d", sig.V)
	}
	signer, err := Verify(domain, sampleTerms(), sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if want := ethcrypto.PubkeyToAddress(key.PublicKey); signer != want {
		t.Fatalf("recovered %s, want %s", signer.Hex(), want.Hex())
	}

	parsed, err := SignatureFromBytes(sig.Bytes())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if again, err := Verify(domain, sampleTerms(), parsed); err != nil || again != signer {
		t.Fatalf("raw signature should recover the same signer: %s %v", again.Hex(), err)
	}
}

func TestDomainSeparation(t *testing.T) {
	key := newKey(t)
	signer := ethcrypto.PubkeyToAddress(key.PublicKey)
	ledgerA := testDomain("0x00000000000000000000000000000000000000c1")
	ledgerB := testDomain("0x00000000000000000000000000000000000000c2")

	sig, err := Sign(ledgerA, sampleTerms(), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := Verify(ledgerB, sampleTerms(), sig); !errors.Is(err, ErrDomainMismatch) {
		t.Fatalf("expected ErrDomainMismatch, got %v", err)
	}

	sig.Domain = nil
	recovered, err := Verify(ledgerB, sampleTerms(), sig)
	if err == nil && recovered == signer {
		t.Fatalf("signature for ledger A must not verify on ledger B")
	}

	otherChain := ledgerA
	otherChain.ChainID = big.NewInt(1)
	recovered, err = Verify(otherChain, sampleTerms(), sig)
	if err == nil && recovered == signer {
		t.Fatalf("signature must not verify on another chain")
	}
}

func TestTamperedTermsRecoverAnotherSigner(t *testing.T) {
	key := newKey(t)
	domain := testDomain("0x00000000000000000000000000000000000000c1")
	sig, err := Sign(domain, sampleTerms(), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	tampered := sampleTerms()
	tampered.Principal = big.NewInt(11)
	recovered, err := Verify(domain, tampered, sig)
	if err == nil && recovered == ethcrypto.PubkeyToAddress(key.PublicKey) {
		t.Fatalf("altered principal must change the recovered signer")
	}
}

func TestMalleableSignatureRejected(t *testing.T) {
	key := newKey(t)
	domain := testDomain("0x00000000000000000000000000000000000000c1")
	sig, err := Sign(domain, sampleTerms(), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	// Flip s into the upper half of the curve order.
	n := ethcrypto.S256().Params().N
	s := new(big.Int).SetBytes(sig.S[:])
	high := new(big.Int).Sub(n, s)
	high.FillBytes(sig.S[:])
	if _, err := Verify(domain, sampleTerms(), sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	if _, err := SignatureFromBytes([]byte{1, 2, 3}); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for short input, got %v", err)
	}
}

func TestHashRejectsIncompleteDomain(t *testing.T) {
	domain := testDomain("0x00000000000000000000000000000000000000c1")
	domain.ChainID = nil
	if _, err := Hash(domain, sampleTerms()); !errors.Is(err, ErrInvalidDomain) {
		t.Fatalf("expected ErrInvalidDomain, got %v", err)
	}
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}
