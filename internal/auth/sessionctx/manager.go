package sessionctx

import (
	"context"
	"sync"

	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth/provider"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth/roles"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/session"

	"go.uber.org/zap"
)

// Manager owns the canonical session state. Provider events are
// applied one at a time under the lock, so each event is a single
// atomic transition and observers never see a half-applied one.
type Manager struct {
	mu      sync.Mutex
	state   State
	sess    *session.Session
	role    auth.Role
	roleGen uint64

	subs    map[int]chan Snapshot
	nextSub int

	provider provider.Provider
	resolver roles.Resolver
	mirror   *session.Store
	log      *zap.Logger

	ctx   context.Context
	unsub func()
}

func NewManager(
	p provider.Provider,
	resolver roles.Resolver,
	mirror *session.Store,
	log *zap.Logger,
) *Manager {
	return &Manager{
		state:    StateInitializing,
		subs:     make(map[int]chan Snapshot),
		provider: p,
		resolver: resolver,
		mirror:   mirror,
		log:      log,
		ctx:      context.Background(),
	}
}

// Start subscribes to provider events and establishes the initial
// state from the provider's current session. ctx bounds the manager's
// background work (role lookups); Close disposes the subscription.
func (m *Manager) Start(ctx context.Context) {
	m.ctx = ctx
	m.unsub = m.provider.OnAuthStateChange(m.Apply)

	sess, err := m.provider.CurrentSession(ctx)
	if err != nil {
		m.log.Warn("initial session fetch failed", zap.Error(err))
	}

	if sess != nil {
		m.Apply(provider.Event{Kind: provider.EventInitialSession, Session: sess})
		return
	}

	m.mu.Lock()
	if m.state == StateInitializing {
		m.state = StateUnauthenticated
		m.notifyLocked()
	}
	m.mu.Unlock()
}

// Close disposes the provider subscription.
func (m *Manager) Close() {
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
}

// Apply consumes one provider event as a single atomic transition.
func (m *Manager) Apply(ev provider.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Kind {
	case provider.EventInitialSession, provider.EventSignedIn, provider.EventTokenRefreshed:
		if ev.Session == nil {
			// adopt events without a payload carry no transition
			return
		}
		m.adoptLocked(ev.Session)
	case provider.EventSignedOut:
		m.clearLocked()
	}
}

// SignInWithProvider returns the provider's authorization URL for the
// given correlation value. The browser completes the rest.
func (m *Manager) SignInWithProvider(state string) string {
	return m.provider.AuthCodeURL(state)
}

// SignOut clears local state first so dependents react immediately,
// then asks the provider to invalidate its session and wipes every
// mirror copy. Neither remote step can resurrect the local session.
func (m *Manager) SignOut(ctx context.Context) {
	m.mu.Lock()
	m.clearLocked()
	m.mu.Unlock()

	if err := m.provider.SignOut(ctx); err != nil {
		m.log.Warn("provider sign-out failed", zap.Error(err))
	}
	if err := m.mirror.Clear(ctx); err != nil {
		m.log.Warn("mirror clear failed", zap.Error(err))
	}
}

// RefreshSession force-fetches the current session from the provider,
// bypassing local assumptions, and applies the result. A fetch
// failure maps to nil: callers treat it as still unauthenticated
// rather than retrying indefinitely.
func (m *Manager) RefreshSession(ctx context.Context) *session.Session {
	m.mu.Lock()
	if m.state == StateAuthenticated {
		m.state = StateRefreshing
		m.notifyLocked()
	}
	m.mu.Unlock()

	sess, err := m.provider.CurrentSession(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.log.Warn("session refresh failed", zap.Error(err))
		if m.state == StateRefreshing {
			m.state = StateAuthenticated
			m.notifyLocked()
		}
		return nil
	}

	if sess == nil {
		m.clearLocked()
		return nil
	}

	m.adoptLocked(sess)
	return sess
}

// Recheck reconciles state against the mirror store. It runs when
// another gateway instance reports a storage change, so a sign-in or
// sign-out elsewhere is reflected here without a restart.
func (m *Manager) Recheck(ctx context.Context) {
	sess, err := m.mirror.Read(ctx)
	if err != nil {
		m.log.Warn("mirror recheck failed", zap.Error(err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if sess != nil {
		if m.sess == nil || m.sess.UserID != sess.UserID || m.sess.AccessToken != sess.AccessToken {
			m.adoptLocked(sess)
		}
		return
	}

	if m.state == StateAuthenticated || m.state == StateRefreshing {
		m.clearLocked()
	}
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe registers for state change notifications. The returned
// function disposes the subscription; slow consumers lose updates
// rather than blocking transitions.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Snapshot, 16)
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) adoptLocked(sess *session.Session) {
	sameUser := m.sess != nil && m.sess.UserID == sess.UserID
	m.sess = sess
	m.state = StateAuthenticated
	if !sameUser {
		m.role = ""
	}

	m.roleGen++
	gen := m.roleGen
	go m.resolveRole(gen, sess.UserID)

	m.notifyLocked()
}

func (m *Manager) clearLocked() {
	m.sess = nil
	m.role = ""
	m.state = StateUnauthenticated
	m.roleGen++ // in-flight role lookups are now stale
	m.notifyLocked()
}

// resolveRole runs outside the event path. Any failure degrades to
// RoleUser; a result arriving after sign-out or a newer adopt is
// discarded so no role ever leaks onto a different state.
func (m *Manager) resolveRole(gen uint64, userID string) {
	role, err := m.resolver.Resolve(m.ctx, userID)
	if err != nil {
		m.log.Warn("role lookup failed, defaulting",
			zap.String("user_id", userID),
			zap.Error(err))
		role = auth.RoleUser
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.roleGen != gen || m.sess == nil || m.sess.UserID != userID {
		return
	}
	m.role = role
	m.notifyLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{State: m.state, Session: m.sess, Role: m.role}
}

func (m *Manager) notifyLocked() {
	snap := m.snapshotLocked()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
