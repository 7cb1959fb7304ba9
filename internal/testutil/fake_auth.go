package testutil

import (
	"context"
	"net/http"

	campus "github.com/campushq/campus/internal"
)

// TestUserID is the user asserted by FakeAuth when no identity is set.
const TestUserID = "0190a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b"

// FakeAuth always authenticates successfully. A nil Identity yields an admin
// identity for TestUserID.
type FakeAuth struct {
	Identity *campus.Identity
}

// Authenticate returns the configured identity or a test admin identity.
func (f FakeAuth) Authenticate(_ context.Context, _ *http.Request) (*campus.Identity, error) {
	if f.Identity != nil {
		id := *f.Identity
		return &id, nil
	}
	return &campus.Identity{
		UserID:   TestUserID,
		TenantID: "tenant-test",
		Role:     "admin",
		Perms:    campus.RolePermissions["admin"],
	}, nil
}

// RejectAuth always rejects authentication.
type RejectAuth struct{}

// Authenticate always returns ErrUnauthorized.
func (RejectAuth) Authenticate(context.Context, *http.Request) (*campus.Identity, error) {
	return nil, campus.ErrUnauthorized
}
