package models

import "time"

// CallLogModel is one matched call. A nil EndedAt means the call is still open.
type CallLogModel struct {
	Base
	CallerID   string     `json:"caller_id"   gorm:"type:char(36);index;not null"`
	CalleeID   string     `json:"callee_id"   gorm:"type:char(36);index;not null"`
	RoomID     string     `json:"room_id"     gorm:"type:char(36);index"`
	StartedAt  time.Time  `json:"started_at"  gorm:"index:idx_call_logs_open;not null"`
	EndedAt    *time.Time `json:"ended_at"    gorm:"index:idx_call_logs_open"`
	DistanceKm *float64   `json:"distance_km"`
}

func (CallLogModel) TableName() string { return "call_logs" }

// Open reports whether the call has not been closed yet.
func (c *CallLogModel) Open() bool { return c != nil && c.EndedAt == nil }
