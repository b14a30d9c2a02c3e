package sessionctx

import (
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/session"
)

// State is the session context's position in its lifecycle:
//
//	Initializing -> Unauthenticated | Authenticated
//	Authenticated -> Refreshing -> Authenticated
//	any -> Unauthenticated on sign-out
type State int

const (
	StateInitializing State = iota
	StateUnauthenticated
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	}
	return "unknown"
}

// Snapshot is an immutable view of the session context, handed to
// observers. Role may still be empty while a lookup is in flight.
type Snapshot struct {
	State   State
	Session *session.Session
	Role    auth.Role
}

func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated || s.State == StateRefreshing
}
