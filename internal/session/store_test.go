package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/session"
)

func newStoreForTest(t *testing.T) (*session.Store, *miniredis.Miniredis, func()) {
	t.Helper()

	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	backend := session.NewRedisBackend(client, "su:")

	primary := session.Tier{Backend: backend, Key: session.DurableKey}

	legacy := make([]session.Tier, 0, len(session.LegacyKeys))
	for _, key := range session.LegacyKeys {
		legacy = append(legacy, session.Tier{Backend: backend, Key: key})
	}

	store := session.NewStore(primary, legacy, nil, zap.NewNop())

	cleanup := func() {
		_ = client.Close()
		mini.Close()
	}
	return store, mini, cleanup
}

func testSession(userID string) *session.Session {
	return &session.Session{
		UserID:      userID,
		Login:       "streamer",
		DisplayName: "Streamer",
		AvatarURL:   "https://cdn.example/avatar.png",
		AccessToken: "tok-" + userID,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func TestWriteMirrorsToAllLegacyKeys(t *testing.T) {
	store, mini, cleanup := newStoreForTest(t)
	defer cleanup()

	ctx := context.Background()
	if err := store.Write(ctx, testSession("42")); err != nil {
		t.Fatalf("write: %v", err)
	}

	durable, err := mini.Get("su:" + session.DurableKey)
	if err != nil {
		t.Fatalf("durable record missing: %v", err)
	}

	for _, key := range session.LegacyKeys {
		raw, err := mini.Get("su:" + key)
		if err != nil {
			t.Fatalf("legacy key %s missing: %v", key, err)
		}

		var got, want map[string]any
		if err := json.Unmarshal([]byte(raw), &got); err != nil {
			t.Fatalf("legacy key %s not json: %v", key, err)
		}
		if err := json.Unmarshal([]byte(durable), &want); err != nil {
			t.Fatalf("durable record not json: %v", err)
		}
		if got["id"] != want["id"] || got["accessToken"] != want["accessToken"] {
			t.Fatalf("legacy key %s disagrees with durable record: %v vs %v", key, got, want)
		}
	}
}

func TestClearRemovesEveryCopy(t *testing.T) {
	store, mini, cleanup := newStoreForTest(t)
	defer cleanup()

	ctx := context.Background()
	if err := store.Write(ctx, testSession("42")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	keys := append([]string{session.DurableKey}, session.LegacyKeys...)
	for _, key := range keys {
		if mini.Exists("su:" + key) {
			t.Fatalf("key %s still present after clear", key)
		}
	}

	sess, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("read after clear: %v", err)
	}
	if sess != nil {
		t.Fatalf("read after clear returned session for user %s", sess.UserID)
	}
}

func TestReadPrefersDurableCopy(t *testing.T) {
	store, mini, cleanup := newStoreForTest(t)
	defer cleanup()

	ctx := context.Background()
	if err := store.Write(ctx, testSession("primary-user")); err != nil {
		t.Fatalf("write: %v", err)
	}

	// a stale legacy copy pointing at someone else must lose
	stale := `{"id":"stale-user","login":"old","displayName":"Old","avatarUrl":"","accessToken":"tok-old"}`
	if err := mini.Set("su:"+session.LegacyKeys[0], stale); err != nil {
		t.Fatalf("seed stale legacy: %v", err)
	}

	sess, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if sess == nil || sess.UserID != "primary-user" {
		t.Fatalf("expected durable copy to win, got %+v", sess)
	}
}

func TestCorruptRecordEvictedAndNeverReturned(t *testing.T) {
	store, mini, cleanup := newStoreForTest(t)
	defer cleanup()

	ctx := context.Background()
	if err := mini.Set("su:"+session.DurableKey, "{definitely not json"); err != nil {
		t.Fatalf("seed corrupt record: %v", err)
	}

	sess, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("read of corrupt record must not fail: %v", err)
	}
	if sess != nil {
		t.Fatalf("corrupt record produced a session: %+v", sess)
	}

	if mini.Exists("su:" + session.DurableKey) {
		t.Fatalf("corrupt record was not evicted")
	}
}

func TestExpiredRecordTreatedAsAbsent(t *testing.T) {
	store, mini, cleanup := newStoreForTest(t)
	defer cleanup()

	ctx := context.Background()
	expired := `{"id":"42","login":"s","displayName":"S","avatarUrl":"","accessToken":"tok","expiresAt":1000000}`
	if err := mini.Set("su:"+session.DurableKey, expired); err != nil {
		t.Fatalf("seed expired record: %v", err)
	}

	sess, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if sess != nil {
		t.Fatalf("expired record produced a session: %+v", sess)
	}
	if mini.Exists("su:" + session.DurableKey) {
		t.Fatalf("expired record was not evicted")
	}
}

type failingBackend struct{}

func (failingBackend) Name() string { return "failing" }

func (failingBackend) Put(context.Context, string, []byte, time.Duration) error {
	return errors.New("backend down")
}

func (failingBackend) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("backend down")
}

func (failingBackend) Del(context.Context, string) error {
	return errors.New("backend down")
}

func TestLegacyWriteFailureIsSwallowed(t *testing.T) {
	mem := session.NewMemoryBackend()
	store := session.NewStore(
		session.Tier{Backend: mem, Key: session.DurableKey},
		[]session.Tier{{Backend: failingBackend{}, Key: session.LegacyKeys[0]}},
		nil,
		zap.NewNop(),
	)

	ctx := context.Background()
	if err := store.Write(ctx, testSession("42")); err != nil {
		t.Fatalf("legacy backend failure must not fail the write: %v", err)
	}

	sess, err := store.Read(ctx)
	if err != nil || sess == nil {
		t.Fatalf("durable copy should be readable, got sess=%v err=%v", sess, err)
	}
}

func TestPrimaryWriteFailureSurfaces(t *testing.T) {
	store := session.NewStore(
		session.Tier{Backend: failingBackend{}, Key: session.DurableKey},
		[]session.Tier{{Backend: session.NewMemoryBackend(), Key: session.LegacyKeys[0]}},
		nil,
		zap.NewNop(),
	)

	if err := store.Write(context.Background(), testSession("42")); err == nil {
		t.Fatalf("primary backend failure must surface")
	}
}
