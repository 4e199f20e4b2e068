package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Soravit-Ice/Random-Call-BE/internal/modules/realtime/presence"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

const namespaceRealtime = "/realtime"

// Authenticator resolves a handshake token to a user id.
type Authenticator func(token string) (userID string, ok bool)

type HubOptions struct {
	QueueSize    int
	Authenticate Authenticator
}

// Hub adapts socket.io connections on /realtime to the relay.
type Hub struct {
	sio          *socketio.Server
	relay        *Relay
	registry     *presence.Registry
	logger       *zap.Logger
	queueSize    int
	authenticate Authenticator
}

func NewHub(relay *Relay, logger *zap.Logger, opts HubOptions) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		sio:          socketio.NewServer(nil, nil),
		relay:        relay,
		registry:     relay.Registry(),
		logger:       logger.Named("Realtime"),
		queueSize:    opts.QueueSize,
		authenticate: opts.Authenticate,
	}
	h.registerNamespace()
	return h
}

// Run blocks until ctx is done, then closes the socket.io server.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()
	h.sio.Close(nil)
	return nil
}

// Handler returns the socket.io HTTP handler mounted at /socket.io.
func (h *Hub) Handler() http.Handler {
	return h.sio.ServeHandler(nil)
}

func (h *Hub) Stats() presence.Stats {
	return h.registry.Stats()
}

func (h *Hub) registerNamespace() {
	ns := h.sio.Of(namespaceRealtime, nil)
	_ = ns.On("connection", func(args ...any) {
		if len(args) == 0 {
			return
		}
		client, ok := args[0].(*socketio.Socket)
		if !ok {
			return
		}
		h.attach(client)
	})
}

func (h *Hub) attach(client *socketio.Socket) {
	sid := string(client.Id())
	conn := NewQueuedConn(sid, client, h.queueSize, h.logger)

	trusted := ""
	if token := normalizeToken(extractToken(client)); token != "" && h.authenticate != nil {
		if userID, ok := h.authenticate(token); ok && h.online(conn, "", userID) {
			trusted = userID
		}
	}
	h.logger.Debug("connected", zap.String("sid", sid), zap.Bool("authenticated", trusted != ""))

	_ = client.On(string(KindOnline), func(args ...any) {
		h.online(conn, trusted, parseUserID(args...))
	})

	for _, kind := range Kinds() {
		kind := kind
		_ = client.On(string(kind), func(args ...any) {
			raw, ok := rawArg(args...)
			if !ok {
				return
			}
			h.relay.HandleRaw(context.Background(), sid, kind, raw)
		})
	}

	_ = client.On("disconnect", func(_ ...any) {
		userID, _ := h.registry.Unbind(sid)
		conn.Close()
		h.logger.Debug("disconnected", zap.String("sid", sid), zap.String("user", userID))
	})
}

// online binds conn to userID. A connection authenticated at handshake
// keeps its identity and ignores announcements for other users.
func (h *Hub) online(conn presence.Conn, trusted, userID string) bool {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false
	}
	if trusted != "" && userID != trusted {
		h.logger.Warn("ignored user:online for a different user",
			zap.String("sid", conn.ID()), zap.String("trusted", trusted), zap.String("claimed", userID))
		return false
	}
	if err := h.registry.Bind(conn, userID); err != nil {
		return false
	}
	return true
}

func parseUserID(args ...any) string {
	if len(args) == 0 {
		return ""
	}
	switch v := args[0].(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		for _, key := range []string{"userId", "user_id", "id"} {
			if s, ok := v[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// rawArg re-encodes the first event argument so it can be decoded into a
// typed event.
func rawArg(args ...any) ([]byte, bool) {
	if len(args) == 0 || args[0] == nil {
		return nil, false
	}
	switch v := args[0].(type) {
	case string:
		if !json.Valid([]byte(v)) {
			return nil, false
		}
		return []byte(v), true
	case []byte:
		if !json.Valid(v) {
			return nil, false
		}
		return v, true
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		return data, true
	}
}

func extractToken(client *socketio.Socket) string {
	handshake := client.Handshake()
	if handshake == nil {
		return ""
	}
	if token := firstValueFromMultiMap(handshake.Query, "token"); token != "" {
		return token
	}
	return firstValueFromMultiMap(handshake.Headers, "authorization")
}

func firstValueFromMultiMap(values map[string][]string, key string) string {
	for k, list := range values {
		if !strings.EqualFold(strings.TrimSpace(k), key) || len(list) == 0 {
			continue
		}
		if v := strings.TrimSpace(list[0]); v != "" {
			return v
		}
	}
	return ""
}

func normalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
