// Package identity defines the boundary between the IRC daemon and the
// system that owns user accounts.
//
// The daemon never touches account storage directly. It hands the login name
// and secret collected from PASS/NICK to a Provider and receives an Identity
// describing how the user is presented on the network.
package identity

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrUnknownLogin is returned when no account exists for a login name
	ErrUnknownLogin = errors.New("identity: unknown login")

	// ErrBadSecret is returned when the account exists but the secret does not match
	ErrBadSecret = errors.New("identity: bad secret")
)

// Identity is the resolved account behind a login
type Identity struct {
	ID          int64
	DisplayName string
	HostLabel   string
	Groups      []string
}

// Provider resolves credentials into identities.
//
// Authenticate must return an error wrapping ErrUnknownLogin or ErrBadSecret
// on failure so callers can tell the cases apart with errors.Is. Any other
// error is an infrastructure failure. LookupOffline returns ErrUnknownLogin
// when the login was never registered.
type Provider interface {
	Authenticate(ctx context.Context, login, secret string) (*Identity, error)
	LookupOffline(ctx context.Context, login string) (*Identity, error)
}

// UserName derives the IRC user field from the display name
func (i *Identity) UserName() string {
	return strings.ReplaceAll(i.DisplayName, " ", "_")
}

// Host derives the IRC host field from the host label
func (i *Identity) Host() string {
	return strings.ReplaceAll(i.HostLabel, " ", ".")
}

// InGroup reports whether the identity belongs to the named group
func (i *Identity) InGroup(name string) bool {
	for _, g := range i.Groups {
		if g == name {
			return true
		}
	}
	return false
}

// FailureReason classifies an Authenticate error for logs and metrics
func FailureReason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnknownLogin):
		return "unknown_login"
	case errors.Is(err, ErrBadSecret):
		return "bad_secret"
	default:
		return "error"
	}
}
