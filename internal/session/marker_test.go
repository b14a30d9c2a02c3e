package session_test

import (
	"testing"
	"time"

	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/session"
)

func TestFreshLoginConsumedAtMostOnce(t *testing.T) {
	marker := session.NewFreshLogin(time.Minute)

	if marker.Active() {
		t.Fatalf("marker active before Set")
	}

	marker.Set()
	if !marker.Active() {
		t.Fatalf("marker inactive after Set")
	}

	if !marker.Consume() {
		t.Fatalf("first consume should succeed")
	}
	if marker.Consume() {
		t.Fatalf("second consume should be a no-op")
	}
	if marker.Active() {
		t.Fatalf("marker still active after consume")
	}
}

func TestFreshLoginExpiresOnItsOwn(t *testing.T) {
	marker := session.NewFreshLogin(30 * time.Millisecond)

	marker.Set()
	time.Sleep(60 * time.Millisecond)

	if marker.Active() {
		t.Fatalf("marker should have expired")
	}
	if marker.Consume() {
		t.Fatalf("expired marker must not be consumable")
	}
}

func TestFreshLoginRearm(t *testing.T) {
	marker := session.NewFreshLogin(time.Minute)

	marker.Set()
	marker.Consume()

	marker.Set()
	if !marker.Consume() {
		t.Fatalf("re-armed marker should be consumable again")
	}
}
