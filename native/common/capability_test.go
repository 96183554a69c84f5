package common

import (
	"errors"
	"testing"

	coreerrors "pawnchain/core/errors"
)

const roleOriginator Role = "originator"

func TestGrantedCapabilityPassesCheck(t *testing.T) {
	auth, admin := NewAuthority("ledger")
	capability, err := auth.Grant(admin, roleOriginator)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := auth.Check(capability, roleOriginator); err != nil {
		t.Fatalf("expected capability to pass, got %v", err)
	}
	if capability.Role() != roleOriginator {
		t.Fatalf("unexpected role %q", capability.Role())
	}
}

func TestCheckRejectsForgedAndForeignCapabilities(t *testing.T) {
	auth, admin := NewAuthority("ledger")
	other, otherAdmin := NewAuthority("other")
	foreign, err := other.Grant(otherAdmin, roleOriginator)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	cases := map[string]*Capability{
		"nil":        nil,
		"zero value": &Capability{},
		"foreign":    foreign,
		"admin":      admin,
	}
	for name, capability := range cases {
		if err := auth.Check(capability, roleOriginator); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: expected ErrUnauthorized, got %v", name, err)
		}
	}
	if !errors.Is(ErrUnauthorized, coreerrors.ErrAuthorization) {
		t.Fatalf("unauthorized must be an authorization error")
	}
}

func TestOnlyAdminGrantsAndRevokes(t *testing.T) {
	auth, admin := NewAuthority("ledger")
	capability, err := auth.Grant(admin, roleOriginator)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := auth.Grant(capability, roleOriginator); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-admin grant should fail, got %v", err)
	}
	if err := auth.Revoke(capability, capability); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-admin revoke should fail, got %v", err)
	}
	if err := auth.Revoke(admin, capability); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := auth.Check(capability, roleOriginator); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("revoked capability should fail, got %v", err)
	}
}

func TestGuardBlocksPausedModule(t *testing.T) {
	pauses := StaticPauses{"loan": true}
	if err := Guard(pauses, "loan"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, "bundle"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := Guard(nil, "loan"); err != nil {
		t.Fatalf("nil view must not block, got %v", err)
	}
}
