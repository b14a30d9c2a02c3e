package session

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Change kinds published on the feed.
const (
	ChangeSignedIn  = "signed_in"
	ChangeSignedOut = "signed_out"
)

const feedChannel = "auth:changes"

type changeMessage struct {
	Origin string `json:"origin"`
	Kind   string `json:"kind"`
}

// ChangeFeed broadcasts mirror-store changes between gateway
// instances sharing the same Redis, the way browser tabs observe each
// other's storage writes. Each feed tags messages with its instance id
// and drops its own on receipt.
type ChangeFeed struct {
	client *goredis.Client
	origin string
	log    *zap.Logger
}

func NewChangeFeed(client *goredis.Client, log *zap.Logger) *ChangeFeed {
	return &ChangeFeed{
		client: client,
		origin: uuid.NewString(),
		log:    log,
	}
}

// Publish announces a change. Failures are logged and swallowed: the
// local write already succeeded and must not be failed retroactively.
func (f *ChangeFeed) Publish(ctx context.Context, kind string) {
	payload, err := json.Marshal(changeMessage{Origin: f.origin, Kind: kind})
	if err != nil {
		f.log.Warn("marshal change message", zap.Error(err))
		return
	}
	if err := f.client.Publish(ctx, feedChannel, payload).Err(); err != nil {
		f.log.Warn("publish session change", zap.String("kind", kind), zap.Error(err))
	}
}

// Watch invokes fn for every change published by another instance.
// It returns a stop function that tears the subscription down; Watch
// also stops when ctx is cancelled.
func (f *ChangeFeed) Watch(ctx context.Context, fn func(kind string)) (stop func()) {
	sub := f.client.Subscribe(ctx, feedChannel)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var change changeMessage
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					f.log.Warn("malformed change message", zap.Error(err))
					continue
				}
				if change.Origin == f.origin {
					continue
				}
				fn(change.Kind)
			}
		}
	}()

	return func() {
		_ = sub.Close()
		<-done
	}
}
