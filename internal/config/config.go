package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppPort  string
	LogLevel string

	TwitchClientID     string
	TwitchClientSecret string
	TwitchRedirectURL  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatabaseDSN string

	Auth AuthConfig
}

// AuthConfig holds the tunables of the session core. The grace window
// and poll budget mask the delay between the provider confirming a
// session and the local reflection of it becoming readable; they are
// deployment knobs, not load-bearing constants.
type AuthConfig struct {
	GraceWindow   time.Duration
	PollRetries   int
	PollDelay     time.Duration
	PollFallback  time.Duration
	FreshLoginTTL time.Duration

	ProtectedPrefixes []string
	LandingURL        string
	PostLoginURL      string
	ErrorURL          string
}

const defaultProtected = "/menu,/profile,/edit-profile,/settings,/followers,/followings,/my-reviews,/achievements,/admin"

func Load() Config {

	cfg := Config{

		AppPort:  getenv("APP_PORT", "8080"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		TwitchClientID:     os.Getenv("TWITCH_CLIENT_ID"),
		TwitchClientSecret: os.Getenv("TWITCH_CLIENT_SECRET"),
		TwitchRedirectURL:  os.Getenv("TWITCH_REDIRECT_URL"),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getenvInt("REDIS_DB", 0),

		DatabaseDSN: os.Getenv("DATABASE_DSN"),

		Auth: AuthConfig{
			GraceWindow:   getenvDuration("ROUTE_GRACE_WINDOW", 800*time.Millisecond),
			PollRetries:   getenvInt("SESSION_POLL_RETRIES", 20),
			PollDelay:     getenvDuration("SESSION_POLL_DELAY", 100*time.Millisecond),
			PollFallback:  getenvDuration("SESSION_POLL_FALLBACK", 1500*time.Millisecond),
			FreshLoginTTL: getenvDuration("FRESH_LOGIN_TTL", 30*time.Second),

			ProtectedPrefixes: splitList(getenv("PROTECTED_PREFIXES", defaultProtected)),
			LandingURL:        getenv("LANDING_URL", "/"),
			PostLoginURL:      getenv("POST_LOGIN_URL", "/menu"),
			ErrorURL:          getenv("AUTH_ERROR_URL", "/"),
		},
	}

	return cfg

}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
