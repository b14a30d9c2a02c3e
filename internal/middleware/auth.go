package middleware

import (
	"context"
	"net/http"
	"net/url"

	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth/sessionctx"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/guard"
)

// unexported, collision-proof context key
type snapshotContextKeyType struct{}

var snapshotKey = snapshotContextKeyType{}

// SnapshotFromContext extracts the session snapshot attached by the
// route guard middleware.
func SnapshotFromContext(ctx context.Context) (sessionctx.Snapshot, bool) {
	snap, ok := ctx.Value(snapshotKey).(sessionctx.Snapshot)
	return snap, ok
}

const freshLoginParam = "freshLogin"

type GuardMiddleware struct {
	Guard    *guard.Guard
	Sessions *sessionctx.Manager
}

func NewGuardMiddleware(g *guard.Guard, sessions *sessionctx.Manager) *GuardMiddleware {
	return &GuardMiddleware{Guard: g, Sessions: sessions}
}

// Protect gates the wrapped handler with the route guard's decision
// ladder. Deferred decisions hold the request through the grace
// window instead of redirecting immediately, so a login still
// propagating is not mistaken for an expired session.
func (m *GuardMiddleware) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path

		res := m.Guard.Evaluate(m.Sessions.Snapshot(), route)

		switch res.Decision {
		case guard.DecisionBlock:
			http.Error(w, "session state not ready", http.StatusServiceUnavailable)
			return

		case guard.DecisionDefer:
			updates, unsubscribe := m.Sessions.Subscribe()
			res = m.Guard.Resolve(r.Context(), updates)
			unsubscribe()

			switch res.Decision {
			case guard.DecisionRedirect:
				http.Redirect(w, r, withNextParam(res.Target, route), http.StatusFound)
				return
			case guard.DecisionBlock:
				// caller went away while we waited
				return
			}
		}

		snap := m.Sessions.Snapshot()
		if m.Guard.ConsumeFreshLogin(snap, route) {
			stripFreshLogin(r)
		}

		ctx := context.WithValue(r.Context(), snapshotKey, snap)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withNextParam appends the denied route so the caller can be
// returned there after authenticating.
func withNextParam(target, route string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("next", route)
	u.RawQuery = q.Encode()
	return u.String()
}

// stripFreshLogin rewrites the request URL without the marker
// parameter, mirroring a history replace rather than a navigation.
func stripFreshLogin(r *http.Request) {
	q := r.URL.Query()
	if _, ok := q[freshLoginParam]; !ok {
		return
	}
	q.Del(freshLoginParam)
	r.URL.RawQuery = q.Encode()
}
