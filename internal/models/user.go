package models

import (
	"time"

	"github.com/Soravit-Ice/Random-Call-BE/internal/pkg/geo"
)

// UserModel is the durable presence record consulted by matchmaking.
// IsOnline and InCall are authoritative here, not in the live registry.
type UserModel struct {
	Base
	Email           string     `json:"email"             gorm:"uniqueIndex;size:191;not null"`
	DisplayName     string     `json:"display_name"`
	Lat             *float64   `json:"lat"`
	Lng             *float64   `json:"lng"`
	RadiusKmDefault *float64   `json:"radius_km_default"`
	IsOnline        bool       `json:"is_online"         gorm:"index:idx_users_availability;not null;default:false"`
	InCall          bool       `json:"in_call"           gorm:"index:idx_users_availability;not null;default:false"`
	LastSeenAt      *time.Time `json:"last_seen_at"`
}

func (UserModel) TableName() string { return "users" }

// Location returns the stored coordinates, or nil when either is missing.
func (u *UserModel) Location() *geo.Point {
	if u == nil || u.Lat == nil || u.Lng == nil {
		return nil
	}
	return &geo.Point{Lat: *u.Lat, Lng: *u.Lng}
}

// BlockModel records that Blocker does not want to be paired with Blocked.
// Matchmaking treats a block in either direction as mutual.
type BlockModel struct {
	Base
	BlockerID string `json:"blocker_id" gorm:"type:char(36);uniqueIndex:idx_block_pair;not null"`
	BlockedID string `json:"blocked_id" gorm:"type:char(36);uniqueIndex:idx_block_pair;index;not null"`
}

func (BlockModel) TableName() string { return "user_blocks" }
