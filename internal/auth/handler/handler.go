package handler

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth/provider"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth/sessionctx"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/config"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Machine-readable reason codes carried to the error destination.
const (
	reasonAuthError     = "auth_error"
	reasonStateMismatch = "state_mismatch"
	reasonTimeout       = "timeout"
)

type Handler struct {
	providers *provider.Registry
	sessions  *sessionctx.Manager
	mirror    *session.Store
	marker    *session.FreshLogin
	cfg       config.AuthConfig
	log       *zap.Logger
}

func NewHandler(
	registry *provider.Registry,
	sessions *sessionctx.Manager,
	mirror *session.Store,
	marker *session.FreshLogin,
	cfg config.AuthConfig,
	log *zap.Logger,
) *Handler {
	return &Handler{
		providers: registry,
		sessions:  sessions,
		mirror:    mirror,
		marker:    marker,
		cfg:       cfg,
		log:       log,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/oauth/login/:provider", h.login)
	r.GET("/oauth/callback/:provider", h.callback)
	r.POST("/auth/logout", h.logout)
	r.POST("/auth/refresh", h.refresh)
	r.GET("/auth/session", h.session)
}

func (h *Handler) login(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown identity provider",
		})
		return
	}

	rememberNext(c, c.Query("next"))
	state := generateState(c)

	c.Redirect(http.StatusFound, p.AuthCodeURL(state))
}

// callback completes the authorization-code exchange. Failures never
// leave a partially written session: nothing touches the mirror store
// until the exchange has succeeded.
func (h *Handler) callback(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown identity provider",
		})
		return
	}

	// CASE 1: provider-reported error (user denied, expired request)
	if errParam := c.Query("error"); errParam != "" {
		h.log.Warn("oauth callback returned error",
			zap.String("provider", providerName),
			zap.String("error", errParam),
			zap.String("desc", c.Query("error_description")))
		h.redirectFailure(c, errParam)
		return
	}

	if !validateState(c) {
		h.log.Warn("oauth state mismatch", zap.String("provider", providerName))
		h.redirectFailure(c, reasonStateMismatch)
		return
	}

	code := c.Query("code")
	if code == "" {
		h.log.Error("oauth callback missing code and error")
		h.redirectFailure(c, reasonAuthError)
		return
	}

	// CASE 2: normal exchange
	sess, err := p.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		// A duplicate navigation replays the callback with a code the
		// provider has already consumed. If a session exists the replay
		// is a no-op; otherwise it degrades to the generic failure.
		if existing, serr := p.CurrentSession(c.Request.Context()); serr == nil && existing != nil {
			h.log.Info("exchange replay with session already present",
				zap.String("provider", providerName))
			h.finishLogin(c, p)
			return
		}

		h.log.Error("code exchange failed",
			zap.String("provider", providerName),
			zap.Error(err))
		h.redirectFailure(c, reasonAuthError)
		return
	}

	if err := h.mirror.Write(c.Request.Context(), sess); err != nil {
		// without the durable copy the session cannot be trusted
		h.log.Error("session write failed", zap.Error(err))
		h.redirectFailure(c, reasonAuthError)
		return
	}

	h.marker.Set()

	h.log.Info("login success",
		zap.String("user_id", sess.UserID),
		zap.String("login", sess.Login),
		zap.String("ip", c.ClientIP()))

	h.finishLogin(c, p)
}

// finishLogin waits until the exchanged session is actually readable,
// then redirects to the destination. The authorization code and state
// never appear on the destination URL.
func (h *Handler) finishLogin(c *gin.Context, p provider.Provider) {
	if !h.waitForSession(c.Request.Context(), p) {
		h.log.Error("session never became visible after exchange")
		h.redirectFailure(c, reasonTimeout)
		return
	}

	next := consumeNext(c)
	if next == "" {
		next = h.cfg.PostLoginURL
	}

	c.Redirect(http.StatusFound, withFreshLogin(next))
}

// waitForSession polls for the session's local visibility: the
// durable backend's reflection of the exchange is not guaranteed to
// be synchronous. After the retry budget it grants one longer wait,
// then gives up rather than hanging.
func (h *Handler) waitForSession(ctx context.Context, p provider.Provider) bool {
	for i := 0; i < h.cfg.PollRetries; i++ {
		if s, err := p.CurrentSession(ctx); err == nil && s != nil {
			return true
		}
		if !sleepCtx(ctx, h.cfg.PollDelay) {
			return false
		}
	}

	if !sleepCtx(ctx, h.cfg.PollFallback) {
		return false
	}
	s, err := p.CurrentSession(ctx)
	return err == nil && s != nil
}

func (h *Handler) logout(c *gin.Context) {
	h.sessions.SignOut(c.Request.Context())

	h.log.Info("logout", zap.String("ip", c.ClientIP()))

	// full navigation reset: no stale in-memory state survives
	c.Redirect(http.StatusSeeOther, h.cfg.LandingURL)
}

func (h *Handler) refresh(c *gin.Context) {
	sess := h.sessions.RefreshSession(c.Request.Context())
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	h.writeSnapshot(c)
}

func (h *Handler) session(c *gin.Context) {
	h.writeSnapshot(c)
}

func (h *Handler) writeSnapshot(c *gin.Context) {
	snap := h.sessions.Snapshot()

	body := gin.H{
		"state":         snap.State.String(),
		"authenticated": snap.Authenticated(),
	}
	if snap.Session != nil {
		body["userId"] = snap.Session.UserID
		body["login"] = snap.Session.Login
		body["displayName"] = snap.Session.DisplayName
		body["avatarUrl"] = snap.Session.AvatarURL
		body["accessToken"] = snap.Session.AccessToken
		body["role"] = string(snap.Role)
	}

	c.JSON(http.StatusOK, body)
}

func (h *Handler) redirectFailure(c *gin.Context, reason string) {
	u, err := url.Parse(h.cfg.ErrorURL)
	if err != nil {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	q.Set("error", reasonAuthError)
	q.Set("reason", reason)
	u.RawQuery = q.Encode()

	c.Redirect(http.StatusFound, u.String())
}

func withFreshLogin(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("freshLogin", "true")
	u.RawQuery = q.Encode()
	return u.String()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
