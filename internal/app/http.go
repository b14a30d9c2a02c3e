package app

import (
	"context"
	"net/http"

	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth/handler"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth/provider"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth/provider/twitch"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth/roles"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth/sessionctx"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/config"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/guard"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/middleware"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func setupHTTP(ctx context.Context, cfg config.Config, log *zap.Logger) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	// ----------------------------
	// Session mirror
	// ----------------------------

	feed := session.NewChangeFeed(infra.Redis.Client, log)

	redisBackend := session.NewRedisBackend(infra.Redis.Client, "su:")
	memBackend := session.NewMemoryBackend()

	primary := session.Tier{Backend: redisBackend, Key: session.DurableKey}

	legacy := make([]session.Tier, 0, len(session.LegacyKeys)+1)
	legacy = append(legacy, session.Tier{Backend: memBackend, Key: session.DurableKey})
	for _, key := range session.LegacyKeys {
		legacy = append(legacy, session.Tier{Backend: redisBackend, Key: key})
	}

	mirror := session.NewStore(primary, legacy, feed, log)
	marker := session.NewFreshLogin(cfg.Auth.FreshLoginTTL)

	// ----------------------------
	// Identity
	// ----------------------------

	twitchProvider, err := twitch.New(
		ctx,
		cfg.TwitchClientID,
		cfg.TwitchClientSecret,
		cfg.TwitchRedirectURL,
		mirror,
		log,
	)
	if err != nil {
		return nil, nil, err
	}

	registry := provider.NewRegistry(twitchProvider)

	resolver := roles.NewDBResolver(infra.DB)

	sessions := sessionctx.NewManager(twitchProvider, resolver, mirror, log)
	sessions.Start(ctx)

	stopWatch := feed.Watch(ctx, func(kind string) {
		log.Info("external session change", zap.String("kind", kind))
		sessions.Recheck(ctx)
	})

	routeGuard := guard.New(
		cfg.Auth.ProtectedPrefixes,
		cfg.Auth.GraceWindow,
		cfg.Auth.LandingURL,
		sessions,
		marker,
		log,
	)

	authHandler := handler.NewHandler(registry, sessions, mirror, marker, cfg.Auth, log)
	guardMiddleware := middleware.NewGuardMiddleware(routeGuard, sessions)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())

	authHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ----------------------------
	// Guarded pages
	// ----------------------------

	pages := router.Group("/")
	pages.Use(middleware.GinProtect(guardMiddleware))

	pages.GET("/", page("landing"))
	pages.GET("/menu", page("menu"))
	pages.GET("/profile", page("profile"))
	pages.GET("/admin", adminPage())

	return router, func() error {
		stopWatch()
		sessions.Close()
		return infra.DB.Close()
	}, nil
}

func page(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"page": name})
	}
}

func adminPage() gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, ok := middleware.SnapshotFromContext(c.Request.Context())
		if !ok || snap.Role != auth.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"page": "admin"})
	}
}
