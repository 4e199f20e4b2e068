package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/Soravit-Ice/Random-Call-BE/internal/modules/realtime/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	event   string
	payload any
}

type recordingConn struct {
	id  string
	mu  sync.Mutex
	got []sent
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, sent{event: event, payload: payload})
	return nil
}

func (c *recordingConn) frames() []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sent(nil), c.got...)
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestRelay(opts ...Option) *Relay {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewRelay(presence.NewRegistry(), opts...)
}

func TestOfferReachesBoundPeerWithSenderIdentity(t *testing.T) {
	r := newTestRelay()
	a := &recordingConn{id: "conn-a"}
	b := &recordingConn{id: "conn-b"}
	require.NoError(t, r.Registry().Bind(a, "user-a"))
	require.NoError(t, r.Registry().Bind(b, "user-b"))

	sdp := `{"type":"offer","sdp":"v=0\r\no=- 46117 2 IN IP4 127.0.0.1\r\n"}`
	n := r.HandleRaw(context.Background(), "conn-a", KindOffer,
		[]byte(`{"to":"user-b","from":"spoofed","sdp":`+sdp+`}`))
	assert.Equal(t, 1, n)

	frames := b.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, "webrtc:offer", frames[0].event)
	msg, ok := frames[0].payload.(SessionDescriptionMessage)
	require.True(t, ok)
	assert.Equal(t, "user-a", msg.From)
	assert.JSONEq(t, sdp, string(msg.SDP))
	assert.Empty(t, a.frames())
}

func TestUnboundConnectionIsDropped(t *testing.T) {
	r := newTestRelay()
	b := &recordingConn{id: "conn-b"}
	require.NoError(t, r.Registry().Bind(b, "user-b"))

	n := r.HandleRaw(context.Background(), "never-bound", KindPrivateSend, []byte(`{"to":"user-b","text":"hi"}`))
	assert.Equal(t, 0, n)
	assert.Empty(t, b.frames())
}

func TestUnannouncedConnectionJoinsNoRoom(t *testing.T) {
	r := newTestRelay()
	a := &recordingConn{id: "conn-a"}
	require.NoError(t, r.Registry().Bind(a, "user-a"))
	r.OpenRoom(context.Background(), "room-1", "user-a", "user-b")

	assert.Empty(t, r.Registry().RoomsOf("lurker"))
	for _, room := range []string{"user-a", "user-b", "room-1"} {
		for _, c := range r.Registry().Members(room) {
			assert.NotEqual(t, "lurker", c.ID())
		}
	}
}

func TestEmptyRoomIsSilentDrop(t *testing.T) {
	r := newTestRelay()
	a := &recordingConn{id: "conn-a"}
	require.NoError(t, r.Registry().Bind(a, "user-a"))

	assert.Equal(t, 0, r.HandleRaw(context.Background(), "conn-a", KindHangup, []byte(`{"to":"offline-user"}`)))
}

func TestChatSendGoesToCallRoom(t *testing.T) {
	r := newTestRelay()
	a := &recordingConn{id: "conn-a"}
	b := &recordingConn{id: "conn-b"}
	require.NoError(t, r.Registry().Bind(a, "user-a"))
	require.NoError(t, r.Registry().Bind(b, "user-b"))
	r.OpenRoom(context.Background(), "room-1", "user-a", "user-b")

	n := r.HandleRaw(context.Background(), "conn-a", KindChatSend, []byte(`{"toRoom":"room-1","text":"hello"}`))
	assert.Equal(t, 2, n)

	want := TextMessage{From: "user-a", Text: "hello", TS: fixedNow.UnixMilli(), Type: "call"}
	for _, c := range []*recordingConn{a, b} {
		frames := c.frames()
		require.Len(t, frames, 1)
		assert.Equal(t, EventChatMessage, frames[0].event)
		assert.Equal(t, want, frames[0].payload)
	}

	r.CloseRoom(context.Background(), "room-1")
	assert.Equal(t, 0, r.HandleRaw(context.Background(), "conn-a", KindChatSend, []byte(`{"toRoom":"room-1","text":"again"}`)))
}

func TestPrivateSendRenamesEvent(t *testing.T) {
	r := newTestRelay()
	a := &recordingConn{id: "conn-a"}
	b1 := &recordingConn{id: "conn-b1"}
	b2 := &recordingConn{id: "conn-b2"}
	require.NoError(t, r.Registry().Bind(a, "user-a"))
	require.NoError(t, r.Registry().Bind(b1, "user-b"))
	require.NoError(t, r.Registry().Bind(b2, "user-b"))

	assert.Equal(t, 2, r.HandleRaw(context.Background(), "conn-a", KindPrivateSend, []byte(`{"to":"user-b","text":"psst"}`)))
	for _, c := range []*recordingConn{b1, b2} {
		frames := c.frames()
		require.Len(t, frames, 1)
		assert.Equal(t, EventPrivateMessage, frames[0].event)
		assert.Equal(t, TextMessage{From: "user-a", Text: "psst", TS: fixedNow.UnixMilli(), Type: "private"}, frames[0].payload)
	}
}

func TestMalformedEventIsDropped(t *testing.T) {
	r := newTestRelay()
	a := &recordingConn{id: "conn-a"}
	require.NoError(t, r.Registry().Bind(a, "user-a"))

	assert.Equal(t, 0, r.HandleRaw(context.Background(), "conn-a", KindOffer, []byte(`{"sdp":{}}`)))
	assert.Equal(t, 0, r.HandleRaw(context.Background(), "conn-a", KindChatTyping, []byte(`{"to":1}`)))
	assert.Equal(t, 0, r.HandleRaw(context.Background(), "conn-a", Kind("bogus"), []byte(`{"to":"user-a"}`)))
}

func TestNotifyMatch(t *testing.T) {
	r := newTestRelay()
	b := &recordingConn{id: "conn-b"}
	require.NoError(t, r.Registry().Bind(b, "user-b"))

	n := r.NotifyMatch(context.Background(), "user-b", MatchIncomingMessage{RoomID: "room-1", CallLogID: "call-1"})
	assert.Equal(t, 1, n)
	frames := b.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, "match:incoming", frames[0].event)
}

// memoryBus connects relays in one process the way Redis pub/sub does.
type memoryBus struct {
	mu   sync.Mutex
	subs map[string]chan Envelope
}

type busFanout struct {
	bus    *memoryBus
	origin string
}

func (f *busFanout) Publish(_ context.Context, env Envelope) error {
	env.Origin = f.origin
	f.bus.mu.Lock()
	defer f.bus.mu.Unlock()
	for origin, ch := range f.bus.subs {
		if origin != f.origin {
			ch <- env
		}
	}
	return nil
}

func (f *busFanout) Subscribe(ctx context.Context, fn func(Envelope)) error {
	ch := make(chan Envelope, 16)
	f.bus.mu.Lock()
	f.bus.subs[f.origin] = ch
	f.bus.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-ch:
			fn(env)
		}
	}
}

func (b *memoryBus) ready(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs) == n
}

func TestFanoutDeliversAcrossInstances(t *testing.T) {
	bus := &memoryBus{subs: map[string]chan Envelope{}}
	one := newTestRelay(WithFanout(&busFanout{bus: bus, origin: "one"}))
	two := newTestRelay(WithFanout(&busFanout{bus: bus, origin: "two"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = one.Run(ctx) }()
	go func() { _ = two.Run(ctx) }()
	require.Eventually(t, func() bool { return bus.ready(2) }, time.Second, time.Millisecond)

	a := &recordingConn{id: "conn-a"}
	b := &recordingConn{id: "conn-b"}
	require.NoError(t, one.Registry().Bind(a, "user-a"))
	require.NoError(t, two.Registry().Bind(b, "user-b"))

	one.HandleRaw(ctx, "conn-a", KindCandidate, []byte(`{"to":"user-b","candidate":{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host"}}`))
	require.Eventually(t, func() bool { return len(b.frames()) == 1 }, time.Second, time.Millisecond)

	frame := b.frames()[0]
	assert.Equal(t, "webrtc:candidate", frame.event)
	data, err := json.Marshal(frame.payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"user-a","candidate":{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host"}}`, string(data))

	one.OpenRoom(ctx, "room-9", "user-b")
	require.Eventually(t, func() bool { return len(two.Registry().Members("room-9")) == 1 }, time.Second, time.Millisecond)
	one.CloseRoom(ctx, "room-9")
	require.Eventually(t, func() bool { return len(two.Registry().Members("room-9")) == 0 }, time.Second, time.Millisecond)
}
