package provider

import (
	"context"

	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/session"
)

// EventKind tags the auth state changes a provider reports. The set is
// closed; every consumer switches over it exhaustively.
type EventKind int

const (
	EventInitialSession EventKind = iota
	EventSignedIn
	EventSignedOut
	EventTokenRefreshed
)

func (k EventKind) String() string {
	switch k {
	case EventInitialSession:
		return "INITIAL_SESSION"
	case EventSignedIn:
		return "SIGNED_IN"
	case EventSignedOut:
		return "SIGNED_OUT"
	case EventTokenRefreshed:
		return "TOKEN_REFRESHED"
	}
	return "UNKNOWN"
}

// Event is one provider-reported state change. Session may be nil for
// kinds that carry no payload.
type Event struct {
	Kind    EventKind
	Session *session.Session
}

// Provider is the identity-provider contract the gateway consumes.
// ExchangeCode is one-shot: a consumed authorization code fails on a
// second attempt. CurrentSession is idempotent and side-effect free.
type Provider interface {
	// Name returns the provider identifier (e.g. "twitch").
	Name() string

	// AuthCodeURL returns the provider's authorization URL carrying
	// the given correlation value.
	AuthCodeURL(state string) string

	// ExchangeCode redeems the authorization code for a session.
	ExchangeCode(ctx context.Context, code string) (*session.Session, error)

	// CurrentSession returns the session the provider currently
	// recognizes, or nil when unauthenticated.
	CurrentSession(ctx context.Context) (*session.Session, error)

	// OnAuthStateChange registers fn for future auth events and
	// returns its unsubscribe function.
	OnAuthStateChange(fn func(Event)) (unsubscribe func())

	// SignOut invalidates the provider-side session.
	SignOut(ctx context.Context) error
}
