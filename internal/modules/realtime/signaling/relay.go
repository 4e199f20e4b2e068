// Package signaling relays WebRTC signaling, chat and presence events
// between bound connections over rooms kept in the presence registry.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Soravit-Ice/Random-Call-BE/internal/modules/realtime/presence"
	"go.uber.org/zap"
)

// Relay forwards events to room members. Delivery is fire-and-forget:
// an empty room drops the event and nothing is persisted.
type Relay struct {
	registry *presence.Registry
	fanout   Fanout
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Relay)

// WithFanout mirrors deliveries and room changes to other instances.
func WithFanout(f Fanout) Option {
	return func(r *Relay) { r.fanout = f }
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger.Named("Relay")
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRelay(registry *presence.Registry, opts ...Option) *Relay {
	r := &Relay{
		registry: registry,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the presence registry the relay routes through.
func (r *Relay) Registry() *presence.Registry { return r.registry }

// Handle relays ev on behalf of connID. Events from unbound connections
// are dropped. It returns the number of local connections reached.
func (r *Relay) Handle(ctx context.Context, connID string, ev Event) int {
	from, ok := r.registry.UserOf(connID)
	if !ok {
		r.logger.Debug("dropped event from unbound connection",
			zap.String("conn", connID), zap.String("kind", string(ev.Kind())))
		return 0
	}
	event, payload := ev.Outbound(from, r.now())
	return r.Deliver(ctx, ev.Destination(), event, payload)
}

// HandleRaw decodes and relays one inbound event. Malformed events are dropped.
func (r *Relay) HandleRaw(ctx context.Context, connID string, kind Kind, raw []byte) int {
	if _, ok := r.registry.UserOf(connID); !ok {
		r.logger.Debug("dropped event from unbound connection",
			zap.String("conn", connID), zap.String("kind", string(kind)))
		return 0
	}
	ev, err := Decode(kind, raw)
	if err != nil {
		r.logger.Debug("dropped malformed event", zap.String("conn", connID), zap.Error(err))
		return 0
	}
	return r.Handle(ctx, connID, ev)
}

// Deliver sends event to every member of room on this instance and
// publishes it to the others.
func (r *Relay) Deliver(ctx context.Context, room, event string, payload any) int {
	n := r.deliverLocal(room, event, payload)
	if r.fanout != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			r.logger.Warn("relay payload not encodable", zap.String("event", event), zap.Error(err))
			return n
		}
		r.publish(ctx, Envelope{Op: OpEmit, Room: room, Event: event, Payload: data})
	}
	return n
}

// OpenRoom joins every live connection of the given users to room.
func (r *Relay) OpenRoom(ctx context.Context, room string, userIDs ...string) {
	for _, id := range userIDs {
		r.registry.JoinUser(id, room)
	}
	if r.fanout != nil {
		r.publish(ctx, Envelope{Op: OpJoin, Room: room, Users: userIDs})
	}
}

// CloseRoom drops all memberships of room.
func (r *Relay) CloseRoom(ctx context.Context, room string) {
	r.registry.CloseRoom(room)
	if r.fanout != nil {
		r.publish(ctx, Envelope{Op: OpClose, Room: room})
	}
}

// NotifyMatch pushes match:incoming to every connection of userID.
func (r *Relay) NotifyMatch(ctx context.Context, userID string, msg MatchIncomingMessage) int {
	return r.Deliver(ctx, userID, string(KindMatchIncoming), msg)
}

// Run consumes envelopes from other instances until ctx is done. Without
// a fanout it just waits.
func (r *Relay) Run(ctx context.Context) error {
	if r.fanout == nil {
		<-ctx.Done()
		return nil
	}
	return r.fanout.Subscribe(ctx, r.apply)
}

func (r *Relay) apply(env Envelope) {
	switch env.Op {
	case OpEmit:
		var payload any
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				r.logger.Debug("remote payload dropped", zap.Error(err))
				return
			}
		}
		r.deliverLocal(env.Room, env.Event, payload)
	case OpJoin:
		for _, id := range env.Users {
			r.registry.JoinUser(id, env.Room)
		}
	case OpClose:
		r.registry.CloseRoom(env.Room)
	}
}

func (r *Relay) deliverLocal(room, event string, payload any) int {
	members := r.registry.Members(room)
	n := 0
	for _, conn := range members {
		if err := conn.Send(event, payload); err != nil {
			level := zap.DebugLevel
			if errors.Is(err, ErrQueueFull) {
				level = zap.WarnLevel
			}
			r.logger.Log(level, "send failed",
				zap.String("conn", conn.ID()), zap.String("event", event), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

func (r *Relay) publish(ctx context.Context, env Envelope) {
	if err := r.fanout.Publish(ctx, env); err != nil {
		r.logger.Warn("relay publish failed", zap.String("op", env.Op), zap.String("room", env.Room), zap.Error(err))
	}
}
