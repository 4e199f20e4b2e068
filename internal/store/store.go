// Package store is the durable record store consumed by matchmaking, the
// relay lifecycle hooks and the stale-call reaper.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Soravit-Ice/Random-Call-BE/internal/models"
)

var (
	// ErrNotFound is returned when a keyed lookup matches nothing.
	ErrNotFound = errors.New("store: record not found")
	// ErrConflict is returned when a conditional write in Apply no longer
	// holds at commit time. Nothing in the batch is written.
	ErrConflict = errors.New("store: conditional write conflict")
)

// Store is the durable store contract.
type Store interface {
	FindUser(ctx context.Context, id string) (*models.UserModel, error)
	FindCandidates(ctx context.Context, q CandidateQuery) ([]models.UserModel, error)
	UpdateUser(ctx context.Context, id string, patch UserPatch) error
	ResetAllInCall(ctx context.Context) (int64, error)

	CreateCallLog(ctx context.Context, log *models.CallLogModel) error
	FindCallLog(ctx context.Context, id string) (*models.CallLogModel, error)
	FindStaleCallLogs(ctx context.Context, cutoff time.Time) ([]models.CallLogModel, error)

	// Apply commits ops atomically or not at all.
	Apply(ctx context.Context, ops ...Op) error
}

// CandidateQuery selects online users other than ExcludeID that have no
// block with ExcludeID in either direction, in stable creation order.
type CandidateQuery struct {
	ExcludeID     string
	Limit         int
	IncludeInCall bool
}

// NullFloat is a patch value for a nullable column. Set=false leaves the
// column untouched; Set=true with a nil Value clears it.
type NullFloat struct {
	Value *float64
	Set   bool
}

// UserPatch lists the user fields to change. Nil fields are left as is.
type UserPatch struct {
	IsOnline        *bool
	InCall          *bool
	Lat             NullFloat
	Lng             NullFloat
	RadiusKmDefault *float64
	LastSeenAt      *time.Time
}

func (p UserPatch) empty() bool {
	return p.IsOnline == nil && p.InCall == nil && !p.Lat.Set && !p.Lng.Set &&
		p.RadiusKmDefault == nil && p.LastSeenAt == nil
}

func (p UserPatch) columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.IsOnline != nil {
		cols["is_online"] = *p.IsOnline
	}
	if p.InCall != nil {
		cols["in_call"] = *p.InCall
	}
	if p.Lat.Set {
		cols["lat"] = p.Lat.Value
	}
	if p.Lng.Set {
		cols["lng"] = p.Lng.Value
	}
	if p.RadiusKmDefault != nil {
		cols["radius_km_default"] = *p.RadiusKmDefault
	}
	if p.LastSeenAt != nil {
		cols["last_seen_at"] = *p.LastSeenAt
	}
	return cols
}

// Op is one write inside an Apply batch.
type Op interface{ op() }

// SetInCall writes the in-call flag. With Expect set the write only
// happens if the current flag equals *Expect; otherwise the batch fails
// with ErrConflict.
type SetInCall struct {
	UserID string
	InCall bool
	Expect *bool
}

// CloseCall sets ended_at on a call that is still open. Closed calls are
// never reopened or re-stamped. With RequireOpen an already closed (or
// missing) call fails the batch with ErrConflict.
type CloseCall struct {
	CallID      string
	EndedAt     time.Time
	RequireOpen bool
}

func (SetInCall) op() {}
func (CloseCall) op() {}

// Reserve flips a free user to in-call, conditioned on the user still being free.
func Reserve(userID string) Op {
	return SetInCall{UserID: userID, InCall: true, Expect: Bool(false)}
}

// Release clears the in-call flag unconditionally.
func Release(userID string) Op {
	return SetInCall{UserID: userID, InCall: false}
}

// Bool returns a pointer to v, for building patches.
func Bool(v bool) *bool { return &v }
