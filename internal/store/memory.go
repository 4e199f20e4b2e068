package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Soravit-Ice/Random-Call-BE/internal/models"
	"github.com/google/uuid"
)

// Memory is an in-process Store. It backs `database.driver: memory` and
// the tests, and enforces the same conditional-write rules as Gorm.
type Memory struct {
	mu     sync.Mutex
	now    func() time.Time
	users  map[string]*models.UserModel
	order  []string
	blocks map[[2]string]struct{}
	calls  map[string]*models.CallLogModel
}

func NewMemory() *Memory {
	return &Memory{
		now:    time.Now,
		users:  make(map[string]*models.UserModel),
		blocks: make(map[[2]string]struct{}),
		calls:  make(map[string]*models.CallLogModel),
	}
}

var _ Store = (*Memory)(nil)

// SetClock overrides the clock used for generated timestamps.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// PutUser inserts or replaces a user and returns the stored copy.
func (m *Memory) PutUser(u models.UserModel) models.UserModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = m.now()
	}
	u.UpdatedAt = m.now()
	if _, ok := m.users[u.ID]; !ok {
		m.order = append(m.order, u.ID)
	}
	stored := u
	m.users[u.ID] = &stored
	return stored
}

// Block records that blocker blocked blocked.
func (m *Memory) Block(blocker, blocked string) {
	m.mu.Lock()
	m.blocks[[2]string{blocker, blocked}] = struct{}{}
	m.mu.Unlock()
}

func (m *Memory) FindUser(_ context.Context, id string) (*models.UserModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) FindCandidates(_ context.Context, q CandidateQuery) ([]models.UserModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.UserModel, 0)
	for _, id := range m.order {
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
		u := m.users[id]
		if u.ID == q.ExcludeID || !u.IsOnline || (u.InCall && !q.IncludeInCall) {
			continue
		}
		if m.blockedLocked(q.ExcludeID, u.ID) {
			continue
		}
		out = append(out, *u)
	}
	return out, nil
}

func (m *Memory) blockedLocked(a, b string) bool {
	if _, ok := m.blocks[[2]string{a, b}]; ok {
		return true
	}
	_, ok := m.blocks[[2]string{b, a}]
	return ok
}

func (m *Memory) UpdateUser(_ context.Context, id string, patch UserPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	if patch.empty() {
		return nil
	}
	if patch.IsOnline != nil {
		u.IsOnline = *patch.IsOnline
	}
	if patch.InCall != nil {
		u.InCall = *patch.InCall
	}
	if patch.Lat.Set {
		u.Lat = copyFloat(patch.Lat.Value)
	}
	if patch.Lng.Set {
		u.Lng = copyFloat(patch.Lng.Value)
	}
	if patch.RadiusKmDefault != nil {
		u.RadiusKmDefault = copyFloat(patch.RadiusKmDefault)
	}
	if patch.LastSeenAt != nil {
		t := *patch.LastSeenAt
		u.LastSeenAt = &t
	}
	u.UpdatedAt = m.now()
	return nil
}

func (m *Memory) ResetAllInCall(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.users {
		if u.InCall {
			u.InCall = false
			n++
		}
	}
	return n, nil
}

func (m *Memory) CreateCallLog(_ context.Context, log *models.CallLogModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if _, exists := m.calls[log.ID]; exists {
		return fmt.Errorf("store: duplicate call log %s", log.ID)
	}
	now := m.now()
	if log.StartedAt.IsZero() {
		log.StartedAt = now
	}
	log.CreatedAt, log.UpdatedAt = now, now
	cp := *log
	m.calls[log.ID] = &cp
	return nil
}

func (m *Memory) FindCallLog(_ context.Context, id string) (*models.CallLogModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) FindStaleCallLogs(_ context.Context, cutoff time.Time) ([]models.CallLogModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.CallLogModel, 0)
	for _, c := range m.calls {
		if c.EndedAt == nil && c.StartedAt.Before(cutoff) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// Apply checks every condition before writing anything, so a failed batch
// leaves no partial state behind.
func (m *Memory) Apply(_ context.Context, ops ...Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, op := range ops {
		switch o := op.(type) {
		case SetInCall:
			if o.Expect == nil {
				continue
			}
			u, ok := m.users[o.UserID]
			if !ok || u.InCall != *o.Expect {
				return ErrConflict
			}
		case CloseCall:
			if !o.RequireOpen {
				continue
			}
			c, ok := m.calls[o.CallID]
			if !ok || c.EndedAt != nil {
				return ErrConflict
			}
		default:
			return fmt.Errorf("store: unsupported op %T", op)
		}
	}

	now := m.now()
	for _, op := range ops {
		switch o := op.(type) {
		case SetInCall:
			if u, ok := m.users[o.UserID]; ok {
				u.InCall = o.InCall
				u.UpdatedAt = now
			}
		case CloseCall:
			if c, ok := m.calls[o.CallID]; ok && c.EndedAt == nil {
				t := o.EndedAt
				c.EndedAt = &t
				c.UpdatedAt = now
			}
		}
	}
	return nil
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
