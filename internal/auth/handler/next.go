package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	nextCookieName = "__oauth_next"
	nextTTL        = 5 * time.Minute
)

// rememberNext keeps the deep-link destination across the provider
// round trip. Only same-site paths are accepted; anything else is an
// open-redirect attempt and is dropped.
func rememberNext(c *gin.Context, next string) {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     nextCookieName,
		Value:    next,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(nextTTL.Seconds()),
	})
}

// consumeNext returns the remembered destination, clearing the
// cookie, or "" when none was stored.
func consumeNext(c *gin.Context) string {
	cookie, err := c.Request.Cookie(nextCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     nextCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	if !strings.HasPrefix(cookie.Value, "/") || strings.HasPrefix(cookie.Value, "//") {
		return ""
	}
	return cookie.Value
}
