package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pkgredis "github.com/Soravit-Ice/Random-Call-BE/internal/pkg/redis"
	"go.uber.org/zap"
)

const (
	redisChanRelay = "random-call:relay"
	publishTimeout = 2 * time.Second
)

// Envelope ops.
const (
	OpEmit  = "emit"
	OpJoin  = "join"
	OpClose = "close"
)

// Envelope carries relay operations between instances.
type Envelope struct {
	Origin  string          `json:"origin"`
	Op      string          `json:"op"`
	Room    string          `json:"room"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Users   []string        `json:"users,omitempty"`
}

// Fanout forwards relay operations to the other instances sharing the store.
type Fanout interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe blocks, calling fn for every envelope published by another
	// instance, until ctx is done.
	Subscribe(ctx context.Context, fn func(Envelope)) error
}

// RedisFanout implements Fanout over one Redis pub/sub channel.
type RedisFanout struct {
	rc      *pkgredis.Client
	origin  string
	channel string
	logger  *zap.Logger
}

func NewRedisFanout(rc *pkgredis.Client, origin string, logger *zap.Logger) *RedisFanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisFanout{rc: rc, origin: origin, channel: redisChanRelay, logger: logger}
}

func (f *RedisFanout) Publish(ctx context.Context, env Envelope) error {
	env.Origin = f.origin
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return f.rc.Publish(ctx, f.channel, string(data))
}

func (f *RedisFanout) Subscribe(ctx context.Context, fn func(Envelope)) error {
	pubsub := f.rc.Subscribe(ctx, f.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				f.logger.Debug("relay envelope dropped", zap.Error(err))
				continue
			}
			if env.Origin == f.origin {
				continue
			}
			fn(env)
		}
	}
}
