package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// record is the serialized identity record. The field names are frozen:
// pre-existing clients read the legacy copies by these exact keys.
// Legacy copies omit expiresAt; only the durable record carries it.
type record struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt,omitempty"`
}

var errCorruptRecord = errors.New("session: corrupt record")

func encodeRecord(s *Session, withExpiry bool) ([]byte, error) {
	rec := record{
		ID:          s.UserID,
		Login:       s.Login,
		DisplayName: s.DisplayName,
		AvatarURL:   s.AvatarURL,
		AccessToken: s.AccessToken,
	}
	if withExpiry && !s.ExpiresAt.IsZero() {
		rec.ExpiresAt = s.ExpiresAt.Unix()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("session: marshal record: %w", err)
	}
	return data, nil
}

// decodeRecord parses a stored identity record. Any unparseable or
// structurally incomplete payload yields errCorruptRecord so callers
// can evict it instead of propagating a failure.
func decodeRecord(data []byte) (*Session, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errCorruptRecord
	}
	if rec.ID == "" || rec.AccessToken == "" {
		return nil, errCorruptRecord
	}

	s := &Session{
		UserID:      rec.ID,
		Login:       rec.Login,
		DisplayName: rec.DisplayName,
		AvatarURL:   rec.AvatarURL,
		AccessToken: rec.AccessToken,
	}
	if rec.ExpiresAt > 0 {
		s.ExpiresAt = time.Unix(rec.ExpiresAt, 0)
	}
	return s, nil
}
