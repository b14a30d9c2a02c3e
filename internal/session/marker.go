package session

import (
	"sync"
	"time"
)

// FreshLogin is the transient marker set right after a successful code
// exchange. While active it suppresses the route guard's redirect so a
// just-authenticated user is not bounced off a protected route before
// the in-memory state catches up. It is consumed at most once and
// expires on its own if never consumed, so it can never permanently
// bypass protection.
type FreshLogin struct {
	mu     sync.Mutex
	active bool
	setAt  time.Time
	ttl    time.Duration
	now    func() time.Time
}

func NewFreshLogin(ttl time.Duration) *FreshLogin {
	return &FreshLogin{ttl: ttl, now: time.Now}
}

// Set arms the marker, replacing any previous one.
func (f *FreshLogin) Set() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = true
	f.setAt = f.now()
}

// Active reports whether the marker is armed and not expired.
func (f *FreshLogin) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeLocked()
}

// Consume clears the marker and reports whether it was active. Only
// the first caller of a login cycle observes true.
func (f *FreshLogin) Consume() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	was := f.activeLocked()
	f.active = false
	return was
}

func (f *FreshLogin) activeLocked() bool {
	if !f.active {
		return false
	}
	if f.ttl > 0 && f.now().Sub(f.setAt) > f.ttl {
		f.active = false
		return false
	}
	return true
}
