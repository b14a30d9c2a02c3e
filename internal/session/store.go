package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Backend is one physical storage layer of the mirror store. Get
// returns (nil, nil) when the key is absent.
type Backend interface {
	Name() string
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, key string) error
}

// Tier binds a backend to the key it holds the record under.
type Tier struct {
	Backend Backend
	Key     string
}

// DurableKey is the key of the durable record in the primary backend.
const DurableKey = "auth:session"

// LegacyKeys are the redundant copies kept for pre-existing clients.
// The order is the read precedence after the durable record.
var LegacyKeys = []string{
	"twitch_user",
	"cookie_twitch_user",
	"cookie_twitch_access_token",
	"twitch_token",
}

// Store is the tiered mirror of the current session. Reads walk the
// durable tier first and then each legacy tier in declared order,
// returning the first valid record; on disagreement the durable copy
// wins by construction. Writes fan out to every tier.
type Store struct {
	primary Tier
	legacy  []Tier
	feed    *ChangeFeed
	now     func() time.Time
	log     *zap.Logger
}

func NewStore(primary Tier, legacy []Tier, feed *ChangeFeed, log *zap.Logger) *Store {
	return &Store{
		primary: primary,
		legacy:  legacy,
		feed:    feed,
		now:     time.Now,
		log:     log,
	}
}

// Write persists the session to every tier. A failed write to the
// primary tier surfaces: without the durable copy the session cannot
// be trusted. Legacy tier failures are logged and swallowed so a
// flaky compatibility cache can never fail a login.
func (s *Store) Write(ctx context.Context, sess *Session) error {
	if sess == nil || sess.UserID == "" || sess.AccessToken == "" {
		return fmt.Errorf("session: incomplete session")
	}

	ttl := time.Duration(0)
	if !sess.ExpiresAt.IsZero() {
		ttl = sess.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			return fmt.Errorf("session: expires_at must be in the future")
		}
	}

	durable, err := encodeRecord(sess, true)
	if err != nil {
		return err
	}
	if err := s.primary.Backend.Put(ctx, s.primary.Key, durable, ttl); err != nil {
		return fmt.Errorf("session: write durable record: %w", err)
	}

	compat, err := encodeRecord(sess, false)
	if err != nil {
		return err
	}
	for _, t := range s.legacy {
		if err := t.Backend.Put(ctx, t.Key, compat, ttl); err != nil {
			s.log.Warn("legacy session write failed",
				zap.String("backend", t.Backend.Name()),
				zap.String("key", t.Key),
				zap.Error(err))
		}
	}

	if s.feed != nil {
		s.feed.Publish(ctx, ChangeSignedIn)
	}
	return nil
}

// Read returns the first valid session found in tier order, or nil
// when no tier holds one. Corrupt or expired records are evicted on
// detection and never returned again; they are reported as absent,
// never as an error.
func (s *Store) Read(ctx context.Context) (*Session, error) {
	tiers := append([]Tier{s.primary}, s.legacy...)

	for _, t := range tiers {
		data, err := t.Backend.Get(ctx, t.Key)
		if err != nil {
			s.log.Warn("session read failed",
				zap.String("backend", t.Backend.Name()),
				zap.String("key", t.Key),
				zap.Error(err))
			continue
		}
		if data == nil {
			continue
		}

		sess, err := decodeRecord(data)
		if err != nil {
			s.evict(ctx, t)
			continue
		}
		if sess.Expired(s.now()) {
			s.evict(ctx, t)
			continue
		}
		return sess, nil
	}

	return nil, nil
}

// Clear removes every copy, durable and legacy. It invalidates only
// the local reflection of the session; revoking the server-side
// session is the identity provider's job.
func (s *Store) Clear(ctx context.Context) error {
	var firstErr error
	tiers := append([]Tier{s.primary}, s.legacy...)

	for _, t := range tiers {
		if err := t.Backend.Del(ctx, t.Key); err != nil {
			s.log.Warn("session clear failed",
				zap.String("backend", t.Backend.Name()),
				zap.String("key", t.Key),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if s.feed != nil {
		s.feed.Publish(ctx, ChangeSignedOut)
	}
	return firstErr
}

func (s *Store) evict(ctx context.Context, t Tier) {
	if err := t.Backend.Del(ctx, t.Key); err != nil {
		s.log.Warn("session evict failed",
			zap.String("backend", t.Backend.Name()),
			zap.String("key", t.Key),
			zap.Error(err))
		return
	}
	s.log.Warn("evicted invalid session record",
		zap.String("backend", t.Backend.Name()),
		zap.String("key", t.Key))
}
