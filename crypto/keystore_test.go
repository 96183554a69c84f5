package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

func init() {
	scryptN = keystore.LightScryptN
	scryptP = keystore.LightScryptP
}

func TestKeystoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "party.keystore")
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := SaveToKeystore(path, key, "hunter2"); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600, got %o", perm)
	}
	loaded, err := LoadFromKeystore(path, "hunter2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Address() != key.Address() {
		t.Fatalf("address mismatch: %s != %s", loaded.Address().Hex(), key.Address().Hex())
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}

func TestLoadOrCreateGeneratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployer.keystore")
	first, created, err := LoadOrCreate(path, "")
	if err != nil || !created {
		t.Fatalf("first call: created=%v err=%v", created, err)
	}
	second, created, err := LoadOrCreate(path, "")
	if err != nil || created {
		t.Fatalf("second call: created=%v err=%v", created, err)
	}
	if first.Address() != second.Address() {
		t.Fatalf("expected the stored key to be reused")
	}
}

func TestParseAddress(t *testing.T) {
	if _, err := ParseAddress("0x00000000000000000000000000000000000000a1"); err != nil {
		t.Fatalf("valid address rejected: %v", err)
	}
	for _, bad := range []string{"", "0x1234", "00000000000000000000000000000000000000a1", "pawn1qqqq"} {
		if _, err := ParseAddress(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
	key, err := PrivateKeyFromHex("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	if err != nil {
		t.Fatalf("hex key: %v", err)
	}
	if got := key.Address().Hex(); got != "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23" {
		t.Fatalf("unexpected address %s", got)
	}
}
