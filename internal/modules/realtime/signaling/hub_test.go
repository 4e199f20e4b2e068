package signaling

import (
	"testing"

	"github.com/Soravit-Ice/Random-Call-BE/internal/modules/realtime/presence"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newBareHub() *Hub {
	registry := presence.NewRegistry()
	return &Hub{registry: registry, relay: NewRelay(registry), logger: zap.NewNop()}
}

func TestOnlineBindsAnonymousConnection(t *testing.T) {
	h := newBareHub()
	c := &recordingConn{id: "sid-1"}

	assert.True(t, h.online(c, "", "user-a"))
	user, ok := h.registry.UserOf("sid-1")
	assert.True(t, ok)
	assert.Equal(t, "user-a", user)

	assert.False(t, h.online(c, "", "  "))
}

func TestOnlineKeepsTrustedIdentity(t *testing.T) {
	h := newBareHub()
	c := &recordingConn{id: "sid-1"}

	assert.True(t, h.online(c, "", "user-a"))
	assert.False(t, h.online(c, "user-a", "user-b"))
	user, _ := h.registry.UserOf("sid-1")
	assert.Equal(t, "user-a", user)
	assert.True(t, h.online(c, "user-a", "user-a"))
}

func TestParseUserID(t *testing.T) {
	assert.Equal(t, "u1", parseUserID(" u1 "))
	assert.Equal(t, "u2", parseUserID(map[string]any{"userId": "u2"}))
	assert.Equal(t, "", parseUserID(42))
	assert.Equal(t, "", parseUserID())
}

func TestRawArg(t *testing.T) {
	raw, ok := rawArg(map[string]any{"to": "b"})
	assert.True(t, ok)
	assert.JSONEq(t, `{"to":"b"}`, string(raw))

	raw, ok = rawArg(`{"to":"b"}`)
	assert.True(t, ok)
	assert.JSONEq(t, `{"to":"b"}`, string(raw))

	_, ok = rawArg("not json")
	assert.False(t, ok)
	_, ok = rawArg(nil)
	assert.False(t, ok)
}

func TestTokenHelpers(t *testing.T) {
	headers := map[string][]string{"Authorization": {"Bearer abc"}}
	assert.Equal(t, "Bearer abc", firstValueFromMultiMap(headers, "authorization"))
	assert.Equal(t, "abc", normalizeToken("Bearer abc"))
	assert.Equal(t, "abc", normalizeToken(" abc "))
	assert.Equal(t, "", firstValueFromMultiMap(nil, "token"))
}
