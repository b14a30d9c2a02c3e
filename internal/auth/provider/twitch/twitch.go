package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth/provider"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/session"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	providerName = "twitch"
	issuerURL    = "https://id.twitch.tv/oauth2"
	revokeURL    = "https://id.twitch.tv/oauth2/revoke"
)

// Twitch only includes profile claims in the id_token when they are
// requested explicitly on the authorize URL.
const idTokenClaims = `{"id_token":{"preferred_username":null,"picture":null}}`

// Provider implements OAuth + OIDC authentication against Twitch.
// It redeems authorization codes and reports auth state changes; the
// durable reflection of the session lives in the mirror store, which
// CurrentSession reads.
type Provider struct {
	provider.Hub

	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	store       *session.Store
	httpClient  *http.Client
	log         *zap.Logger
}

// New initializes the Twitch OIDC provider using discovery.
func New(
	ctx context.Context,
	clientID string,
	clientSecret string,
	redirectURL string,
	store *session.Store,
	log *zap.Logger,
) (*Provider, error) {

	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil, errors.New("twitch oauth config missing required fields")
	}

	oidcProvider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to init twitch oidc provider: %w", err)
	}

	verifier := oidcProvider.Verifier(&oidc.Config{
		ClientID: clientID,
	})

	oauthCfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     oidcProvider.Endpoint(),
		Scopes: []string{
			oidc.ScopeOpenID,
			"user:read:email",
		},
	}

	return &Provider{
		oauthConfig: oauthCfg,
		verifier:    verifier,
		store:       store,
		httpClient:  http.DefaultClient,
		log:         log,
	}, nil
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return providerName
}

// AuthCodeURL builds the Twitch authorization URL for the given
// correlation value.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("claims", idTokenClaims),
	)
}

// ExchangeCode redeems the authorization code, verifies the id_token
// and emits a SIGNED_IN event carrying the new session. A code Twitch
// has already consumed fails the exchange; callers decide whether an
// existing session makes that a no-op.
func (p *Provider) ExchangeCode(ctx context.Context, code string) (*session.Session, error) {

	token, err := p.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("twitch token exchange failed: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("twitch did not return id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("twitch id_token verification failed: %w", err)
	}

	var claims struct {
		Subject           string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
		Picture           string `json:"picture"`
	}

	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("twitch id_token claims parse failed: %w", err)
	}

	if claims.Subject == "" {
		return nil, errors.New("twitch id_token missing subject claim")
	}

	p.log.Info("twitch oidc verified",
		zap.String("issuer", idToken.Issuer),
		zap.Bool("username_present", claims.PreferredUsername != ""),
		zap.Int64("expiry_unix", token.Expiry.Unix()))

	sess := &session.Session{
		UserID:      claims.Subject,
		Login:       strings.ToLower(claims.PreferredUsername),
		DisplayName: claims.PreferredUsername,
		AvatarURL:   claims.Picture,
		AccessToken: token.AccessToken,
		ExpiresAt:   token.Expiry,
	}

	p.Emit(provider.Event{Kind: provider.EventSignedIn, Session: sess})

	return sess, nil
}

// CurrentSession returns the session currently reflected in the
// mirror store, or nil when unauthenticated.
func (p *Provider) CurrentSession(ctx context.Context) (*session.Session, error) {
	return p.store.Read(ctx)
}

// SignOut revokes the current access token with Twitch (best effort)
// and emits a SIGNED_OUT event. Local copies are the caller's to
// clear.
func (p *Provider) SignOut(ctx context.Context) error {
	sess, err := p.store.Read(ctx)
	if err == nil && sess != nil {
		p.revoke(ctx, sess.AccessToken)
	}

	p.Emit(provider.Event{Kind: provider.EventSignedOut})
	return nil
}

func (p *Provider) revoke(ctx context.Context, accessToken string) {
	form := url.Values{
		"client_id": {p.oauthConfig.ClientID},
		"token":     {accessToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		p.log.Warn("build revoke request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.log.Warn("twitch token revoke failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		p.log.Warn("twitch token revoke rejected", zap.Int("status", resp.StatusCode))
	}
}
