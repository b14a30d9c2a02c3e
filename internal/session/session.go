package session

import "time"

// Session is the authenticated identity currently recognized by the
// gateway. At most one canonical Session is active per process.
type Session struct {
	UserID      string
	Login       string
	DisplayName string
	AvatarURL   string
	AccessToken string
	ExpiresAt   time.Time
}

// Expired reports whether the session's credential is past its expiry.
// A zero expiry means the record carries no expiry information and is
// treated as still valid (legacy records never stored one).
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
