package common

import (
	"sync"

	coreerrors "pawnchain/core/errors"
)

// ErrUnauthorized is returned when a caller presents a missing, foreign,
// revoked or wrong-role capability.
var ErrUnauthorized = coreerrors.New(coreerrors.KindAuthorization, "unauthorized caller")

// Role names a permission issued by an Authority.
type Role string

const RoleAdmin Role = "admin"

// Capability is an unforgeable token. Its fields are unexported so the only
// valid instances are the ones handed out by an Authority.
type Capability struct {
	issuer *Authority
	role   Role
}

// Role returns the permission carried by the capability.
func (c *Capability) Role() Role {
	if c == nil {
		return ""
	}
	return c.role
}

// Authority issues and verifies capabilities for one component instance.
type Authority struct {
	name    string
	mu      sync.RWMutex
	revoked map[*Capability]struct{}
}

// NewAuthority creates an authority and the admin capability that controls
// it.
func NewAuthority(name string) (*Authority, *Capability) {
	a := &Authority{name: name, revoked: make(map[*Capability]struct{})}
	return a, &Capability{issuer: a, role: RoleAdmin}
}

// Name identifies the component the authority guards.
func (a *Authority) Name() string { return a.name }

// Grant issues a new capability for role. Only the admin may grant.
func (a *Authority) Grant(admin *Capability, role Role) (*Capability, error) {
	if err := a.Check(admin, RoleAdmin); err != nil {
		return nil, err
	}
	return &Capability{issuer: a, role: role}, nil
}

// Revoke permanently invalidates capability. Only the admin may revoke.
func (a *Authority) Revoke(admin *Capability, capability *Capability) error {
	if err := a.Check(admin, RoleAdmin); err != nil {
		return err
	}
	if capability == nil || capability.issuer != a {
		return ErrUnauthorized
	}
	a.mu.Lock()
	a.revoked[capability] = struct{}{}
	a.mu.Unlock()
	return nil
}

// Check verifies that capability was issued by a for role and is still live.
func (a *Authority) Check(capability *Capability, role Role) error {
	if a == nil || capability == nil || capability.issuer != a || capability.role != role {
		return ErrUnauthorized
	}
	a.mu.RLock()
	_, revoked := a.revoked[capability]
	a.mu.RUnlock()
	if revoked {
		return ErrUnauthorized
	}
	return nil
}
