package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth/handler"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth/provider"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth/sessionctx"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/config"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeProvider reads its current session from the mirror store like
// the real one. Codes are one-shot: a replayed code fails the
// exchange.
type fakeProvider struct {
	provider.Hub

	mu       sync.Mutex
	store    *session.Store
	sess     *session.Session
	consumed map[string]bool
	attempts int
	hidden   bool // when set, CurrentSession always reports nil
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://id.example/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeProvider) ExchangeCode(_ context.Context, code string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts++
	if f.consumed == nil {
		f.consumed = make(map[string]bool)
	}
	if f.consumed[code] {
		return nil, errors.New("authorization code already consumed")
	}
	f.consumed[code] = true

	sess := f.sess
	f.Emit(provider.Event{Kind: provider.EventSignedIn, Session: sess})
	return sess, nil
}

func (f *fakeProvider) CurrentSession(ctx context.Context) (*session.Session, error) {
	f.mu.Lock()
	hidden := f.hidden
	f.mu.Unlock()
	if hidden {
		return nil, nil
	}
	return f.store.Read(ctx)
}

func (f *fakeProvider) SignOut(_ context.Context) error {
	f.Emit(provider.Event{Kind: provider.EventSignedOut})
	return nil
}

func (f *fakeProvider) exchangeAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

type staticRoles struct{}

func (staticRoles) Resolve(context.Context, string) (auth.Role, error) {
	return auth.RoleUser, nil
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		GraceWindow:   50 * time.Millisecond,
		PollRetries:   3,
		PollDelay:     time.Millisecond,
		PollFallback:  5 * time.Millisecond,
		FreshLoginTTL: time.Minute,

		ProtectedPrefixes: []string{"/menu", "/profile", "/admin"},
		LandingURL:        "/",
		PostLoginURL:      "/menu",
		ErrorURL:          "/",
	}
}

type fixture struct {
	router   *gin.Engine
	provider *fakeProvider
	mirror   *session.Store
	marker   *session.FreshLogin
	sessions *sessionctx.Manager
	cleanup  func()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})

	backend := session.NewRedisBackend(client, "su:")
	legacy := make([]session.Tier, 0, len(session.LegacyKeys))
	for _, key := range session.LegacyKeys {
		legacy = append(legacy, session.Tier{Backend: backend, Key: key})
	}
	mirror := session.NewStore(
		session.Tier{Backend: backend, Key: session.DurableKey},
		legacy, nil, zap.NewNop(),
	)

	p := &fakeProvider{
		store: mirror,
		sess: &session.Session{
			UserID:      "42",
			Login:       "streamer",
			DisplayName: "Streamer",
			AvatarURL:   "https://cdn.example/avatar.png",
			AccessToken: "tok-42",
			ExpiresAt:   time.Now().Add(time.Hour),
		},
	}

	marker := session.NewFreshLogin(time.Minute)
	sessions := sessionctx.NewManager(p, staticRoles{}, mirror, zap.NewNop())
	sessions.Start(context.Background())

	h := handler.NewHandler(
		provider.NewRegistry(p),
		sessions, mirror, marker,
		testAuthConfig(), zap.NewNop(),
	)

	router := gin.New()
	h.RegisterRoutes(router)

	return &fixture{
		router:   router,
		provider: p,
		mirror:   mirror,
		marker:   marker,
		sessions: sessions,
		cleanup: func() {
			sessions.Close()
			_ = client.Close()
			mini.Close()
		},
	}
}

func callbackRequest(query string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/oauth/callback/fake?"+query, nil)
	req.AddCookie(&http.Cookie{Name: "__oauth_state", Value: "xyz"})
	return req
}

func location(t *testing.T, w *httptest.ResponseRecorder) *url.URL {
	t.Helper()
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse redirect location: %v", err)
	}
	return loc
}

func TestLoginRedirectsToProvider(t *testing.T) {
	f := newFixture(t)
	defer f.cleanup()

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/oauth/login/fake?next=/profile", nil))

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	loc := location(t, w)
	if loc.Host != "id.example" || loc.Query().Get("state") == "" {
		t.Fatalf("unexpected authorize redirect: %s", loc)
	}

	var hasState, hasNext bool
	for _, c := range w.Result().Cookies() {
		switch c.Name {
		case "__oauth_state":
			hasState = c.Value != ""
		case "__oauth_next":
			hasNext = c.Value == "/profile"
		}
	}
	if !hasState || !hasNext {
		t.Fatalf("state/next cookies not issued (state=%v next=%v)", hasState, hasNext)
	}
}

func TestLoginUnknownProvider(t *testing.T) {
	f := newFixture(t)
	defer f.cleanup()

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/oauth/login/nope", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCallbackSuccess(t *testing.T) {
	f := newFixture(t)
	defer f.cleanup()

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, callbackRequest("code=abc123&state=xyz"))

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}

	loc := location(t, w)
	if loc.Path != "/menu" || loc.Query().Get("freshLogin") != "true" {
		t.Fatalf("redirect = %s, want /menu?freshLogin=true", loc)
	}
	if got := loc.Query().Get("code"); got != "" {
		t.Fatalf("authorization code leaked onto destination URL")
	}

	if !f.marker.Active() {
		t.Fatalf("fresh-login marker not set")
	}

	sess, err := f.mirror.Read(context.Background())
	if err != nil || sess == nil || sess.UserID != "42" {
		t.Fatalf("mirror not populated: sess=%v err=%v", sess, err)
	}
}

func TestCallbackProviderError(t *testing.T) {
	f := newFixture(t)
	defer f.cleanup()

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, callbackRequest("error=access_denied&error_description=The+user+denied"))

	loc := location(t, w)
	if loc.Path != "/" || loc.Query().Get("reason") != "access_denied" {
		t.Fatalf("redirect = %s, want / with reason=access_denied", loc)
	}

	// a failed callback must not touch the mirror
	sess, err := f.mirror.Read(context.Background())
	if err != nil || sess != nil {
		t.Fatalf("mirror written on provider error: sess=%v err=%v", sess, err)
	}
	if f.marker.Active() {
		t.Fatalf("marker set on provider error")
	}
	if f.provider.exchangeAttempts() != 0 {
		t.Fatalf("exchange attempted despite provider error")
	}
}

func TestCallbackStateMismatch(t *testing.T) {
	f := newFixture(t)
	defer f.cleanup()

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback/fake?code=abc&state=wrong", nil)
	req.AddCookie(&http.Cookie{Name: "__oauth_state", Value: "xyz"})

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	loc := location(t, w)
	if loc.Query().Get("reason") != "state_mismatch" {
		t.Fatalf("redirect = %s, want reason=state_mismatch", loc)
	}
	if f.provider.exchangeAttempts() != 0 {
		t.Fatalf("exchange attempted despite state mismatch")
	}
}

func TestCallbackReplayedCodeIsNoOp(t *testing.T) {
	f := newFixture(t)
	defer f.cleanup()

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, callbackRequest("code=abc123&state=xyz"))
	if w.Code != http.StatusFound {
		t.Fatalf("first callback failed: %d", w.Code)
	}

	// duplicate navigation replays the same consumed code
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, callbackRequest("code=abc123&state=xyz"))

	loc := location(t, w)
	if loc.Path != "/menu" {
		t.Fatalf("replay with live session should no-op to /menu, got %s", loc)
	}
	if f.provider.exchangeAttempts() != 2 {
		t.Fatalf("exchange attempts = %d, want 2", f.provider.exchangeAttempts())
	}
}

func TestCallbackReplayWithoutSessionFails(t *testing.T) {
	f := newFixture(t)
	defer f.cleanup()

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, callbackRequest("code=abc123&state=xyz"))

	// the session from the first exchange is gone
	if err := f.mirror.Clear(context.Background()); err != nil {
		t.Fatalf("clear mirror: %v", err)
	}

	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, callbackRequest("code=abc123&state=xyz"))

	loc := location(t, w)
	if loc.Query().Get("reason") != "auth_error" {
		t.Fatalf("redirect = %s, want reason=auth_error", loc)
	}
}

func TestCallbackPropagationTimeout(t *testing.T) {
	f := newFixture(t)
	defer f.cleanup()

	// the provider never reflects the exchanged session
	f.provider.mu.Lock()
	f.provider.hidden = true
	f.provider.mu.Unlock()

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, callbackRequest("code=abc123&state=xyz"))

	loc := location(t, w)
	if loc.Query().Get("reason") != "timeout" {
		t.Fatalf("redirect = %s, want reason=timeout", loc)
	}
}

func TestLogoutResetsAndRedirects(t *testing.T) {
	f := newFixture(t)
	defer f.cleanup()

	// establish a session first
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, callbackRequest("code=abc123&state=xyz"))

	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", w.Code)
	}
	if got := w.Header().Get("Location"); got != "/" {
		t.Fatalf("redirect = %s, want /", got)
	}

	sess, err := f.mirror.Read(context.Background())
	if err != nil || sess != nil {
		t.Fatalf("mirror not cleared by logout: sess=%v err=%v", sess, err)
	}
	if got := f.sessions.Snapshot().State; got != sessionctx.StateUnauthenticated {
		t.Fatalf("state = %s after logout, want unauthenticated", got)
	}
}

func TestSessionEndpoint(t *testing.T) {
	f := newFixture(t)
	defer f.cleanup()

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, callbackRequest("code=abc123&state=xyz"))

	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/session", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`"authenticated":true`, `"userId":"42"`, `"login":"streamer"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("session body missing %s: %s", want, body)
		}
	}
}
