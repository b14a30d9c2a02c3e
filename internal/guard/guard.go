package guard

import (
	"context"
	"strings"
	"time"

	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth/sessionctx"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/session"

	"go.uber.org/zap"
)

// Decision is the guard's verdict for a route.
type Decision int

const (
	// DecisionRender lets the route render.
	DecisionRender Decision = iota
	// DecisionBlock renders nothing; either state is still
	// initializing or the caller went away mid-check.
	DecisionBlock
	// DecisionDefer means apparently unauthenticated on a protected
	// route: wait out the grace window before concluding anything.
	DecisionDefer
	// DecisionRedirect sends the caller to Target.
	DecisionRedirect
)

type Result struct {
	Decision Decision
	Target   string
}

// SessionRefresher resolves the authentic session state when the
// local view may be lagging.
type SessionRefresher interface {
	RefreshSession(ctx context.Context) *session.Session
}

// Guard decides whether a route may render, must block, or must
// redirect. An apparently unauthenticated state on a protected route
// is not trusted immediately: session propagation after login is
// asynchronous, so the guard waits a grace window and re-checks
// before redirecting.
type Guard struct {
	prefixes []string
	grace    time.Duration
	landing  string
	sessions SessionRefresher
	marker   *session.FreshLogin
	log      *zap.Logger
}

func New(
	prefixes []string,
	grace time.Duration,
	landing string,
	sessions SessionRefresher,
	marker *session.FreshLogin,
	log *zap.Logger,
) *Guard {
	return &Guard{
		prefixes: prefixes,
		grace:    grace,
		landing:  landing,
		sessions: sessions,
		marker:   marker,
		log:      log,
	}
}

// Protected reports whether the route falls under a protected prefix.
func (g *Guard) Protected(route string) bool {
	for _, p := range g.prefixes {
		if strings.HasPrefix(route, p) {
			return true
		}
	}
	return false
}

// Evaluate applies the decision ladder to the current state. It never
// waits; a DecisionDefer result is resolved with Resolve.
func (g *Guard) Evaluate(snap sessionctx.Snapshot, route string) Result {
	protected := g.Protected(route)

	if snap.State == sessionctx.StateInitializing && protected {
		return Result{Decision: DecisionBlock}
	}
	if !protected {
		return Result{Decision: DecisionRender}
	}
	if g.marker.Active() {
		// a login just completed; state may not have caught up yet
		return Result{Decision: DecisionRender}
	}
	if snap.Authenticated() {
		return Result{Decision: DecisionRender}
	}
	return Result{Decision: DecisionDefer}
}

// Resolve settles a deferred decision. It waits until the grace
// window elapses, then force-refreshes the session; authentication
// arriving through updates before the window fires cancels the
// pending redirect, and a cancelled ctx abandons the check entirely.
func (g *Guard) Resolve(ctx context.Context, updates <-chan sessionctx.Snapshot) Result {
	timer := time.NewTimer(g.grace)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result{Decision: DecisionBlock}
		case snap := <-updates:
			if snap.Authenticated() {
				return Result{Decision: DecisionRender}
			}
		case <-timer.C:
			if sess := g.sessions.RefreshSession(ctx); sess != nil {
				return Result{Decision: DecisionRender}
			}
			g.log.Info("unauthenticated after grace window, redirecting",
				zap.String("target", g.landing))
			return Result{Decision: DecisionRedirect, Target: g.landing}
		}
	}
}

// ConsumeFreshLogin retires the fresh-login marker after the first
// authenticated render of a protected route. It reports whether the
// marker was consumed so the caller can also strip the marker query
// parameter.
func (g *Guard) ConsumeFreshLogin(snap sessionctx.Snapshot, route string) bool {
	if !g.Protected(route) || !snap.Authenticated() {
		return false
	}
	if !g.marker.Active() {
		return false
	}
	return g.marker.Consume()
}
