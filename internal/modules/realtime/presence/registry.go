// Package presence tracks which live connections belong to which user and
// which rooms they have joined. State is process-local and rebuilt as
// clients reconnect; durable online/in-call flags are never touched here.
package presence

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	ErrEmptyUser = errors.New("presence: empty user id")
	ErrUnbound   = errors.New("presence: connection is not bound")
)

// Conn is a live connection handle able to push one event to its client.
type Conn interface {
	ID() string
	Send(event string, payload any) error
}

type entry struct {
	conn   Conn
	userID string
	rooms  map[string]struct{}
}

// Stats is a point-in-time snapshot of the registry.
type Stats struct {
	Connections int `json:"connections"`
	Users       int `json:"users"`
	Rooms       int `json:"rooms"`
}

// Registry maps users to connections and rooms to connections.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*entry
	users map[string]map[string]struct{}
	rooms map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*entry),
		users: make(map[string]map[string]struct{}),
		rooms: make(map[string]map[string]struct{}),
	}
}

// Bind associates conn with userID and joins it to the user's personal
// room. Binding again to the same user is a no-op; binding to a different
// user moves the connection out of the previous user's room.
func (r *Registry) Bind(conn Conn, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrEmptyUser
	}
	id := conn.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if ok && e.userID == userID {
		return nil
	}
	if ok {
		r.leaveLocked(id, e, e.userID)
		r.dropUserConnLocked(e.userID, id)
		e.conn = conn
		e.userID = userID
	} else {
		e = &entry{conn: conn, userID: userID, rooms: make(map[string]struct{})}
		r.conns[id] = e
	}

	set, ok := r.users[userID]
	if !ok {
		set = make(map[string]struct{})
		r.users[userID] = set
	}
	set[id] = struct{}{}
	r.joinLocked(id, e, userID)
	return nil
}

// Unbind forgets the connection and every room membership it held. It
// returns the user the connection was bound to.
func (r *Registry) Unbind(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return "", false
	}
	for room := range e.rooms {
		r.leaveLocked(connID, e, room)
	}
	r.dropUserConnLocked(e.userID, connID)
	delete(r.conns, connID)
	return e.userID, true
}

// Join adds a bound connection to room.
func (r *Registry) Join(connID, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return ErrUnbound
	}
	r.joinLocked(connID, e, room)
	return nil
}

// Leave removes a connection from room. Leaving the personal room is allowed.
func (r *Registry) Leave(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.conns[connID]; ok {
		r.leaveLocked(connID, e, room)
	}
}

// JoinUser joins every live connection of userID to room and returns how
// many connections joined.
func (r *Registry) JoinUser(userID, room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id := range r.users[userID] {
		r.joinLocked(id, r.conns[id], room)
		n++
	}
	return n
}

// CloseRoom removes room and all its memberships.
func (r *Registry) CloseRoom(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[room]
	for id := range members {
		if e, ok := r.conns[id]; ok {
			delete(e.rooms, room)
		}
	}
	delete(r.rooms, room)
	return len(members)
}

// Members returns the connections currently joined to room, ordered by id.
func (r *Registry) Members(room string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	if len(members) == 0 {
		return nil
	}
	out := make([]Conn, 0, len(members))
	for id := range members {
		out = append(out, r.conns[id].conn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// UserOf returns the user a connection is bound to.
func (r *Registry) UserOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[connID]
	if !ok {
		return "", false
	}
	return e.userID, true
}

// RoomsOf returns the rooms a connection has joined, sorted.
func (r *Registry) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[connID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(e.rooms))
	for room := range e.rooms {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// IsConnected reports whether userID has at least one live connection.
func (r *Registry) IsConnected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// Connections returns the live connections of userID.
func (r *Registry) Connections(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.users[userID]
	out := make([]Conn, 0, len(set))
	for id := range set {
		out = append(out, r.conns[id].conn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Connections: len(r.conns), Users: len(r.users), Rooms: len(r.rooms)}
}

func (r *Registry) joinLocked(connID string, e *entry, room string) {
	if room == "" {
		return
	}
	set, ok := r.rooms[room]
	if !ok {
		set = make(map[string]struct{})
		r.rooms[room] = set
	}
	set[connID] = struct{}{}
	e.rooms[room] = struct{}{}
}

func (r *Registry) leaveLocked(connID string, e *entry, room string) {
	delete(e.rooms, room)
	if set, ok := r.rooms[room]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.rooms, room)
		}
	}
}

func (r *Registry) dropUserConnLocked(userID, connID string) {
	if set, ok := r.users[userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.users, userID)
		}
	}
}
