package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Soravit-Ice/Random-Call-BE/internal/config"
	"github.com/Soravit-Ice/Random-Call-BE/internal/models"
	"github.com/Soravit-Ice/Random-Call-BE/internal/modules/realtime/signaling"
	"github.com/Soravit-Ice/Random-Call-BE/internal/modules/tasks/reaper"
	"github.com/Soravit-Ice/Random-Call-BE/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const onlineUsersLimit = 50

// ErrInvalidInput wraps validation failures of user-supplied values.
var ErrInvalidInput = errors.New("invalid input")

// Notifier is the realtime side of a match: room membership and the
// match:incoming push. *signaling.Relay implements it.
type Notifier interface {
	OpenRoom(ctx context.Context, room string, userIDs ...string)
	CloseRoom(ctx context.Context, room string)
	NotifyMatch(ctx context.Context, userID string, msg signaling.MatchIncomingMessage) int
}

// Peer is the public view of a matched user.
type Peer struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Email       string   `json:"email"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
}

func toPeer(u *models.UserModel) Peer {
	return Peer{ID: u.ID, DisplayName: u.DisplayName, Email: u.Email, Lat: u.Lat, Lng: u.Lng}
}

// Payload is returned to the requester of a successful match.
type Payload struct {
	Partner    Peer               `json:"partner"`
	Self       Peer               `json:"self"`
	DistanceKm *float64           `json:"distanceKm"`
	RoomID     string             `json:"roomId"`
	CallLogID  string             `json:"callLogId"`
	IceServers []config.ICEServer `json:"iceServers"`
}

// Profile is the caller's own presence record.
type Profile struct {
	ID              string   `json:"id"`
	Email           string   `json:"email"`
	DisplayName     string   `json:"displayName"`
	Lat             *float64 `json:"lat"`
	Lng             *float64 `json:"lng"`
	RadiusKmDefault *float64 `json:"radiusKmDefault"`
	IsOnline        bool     `json:"isOnline"`
	InCall          bool     `json:"inCall"`
}

// OnlineUser is one entry of the online list.
type OnlineUser struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	IsOnline    bool     `json:"isOnline"`
	InCall      bool     `json:"inCall"`
	Connected   bool     `json:"connected"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
}

// LocationUpdate carries a partial location change. Unset fields are kept.
type LocationUpdate struct {
	Lat             store.NullFloat
	Lng             store.NullFloat
	RadiusKmDefault *float64
}

type ServiceOptions struct {
	ICEServers       []config.ICEServer
	ManualStaleAfter time.Duration
	Now              func() time.Time
	Logger           *zap.Logger
	// Connected reports live presence for the online list. Optional.
	Connected func(userID string) bool
}

// Service is the request surface around the engine: it records calls,
// wires the relay room and exposes the status endpoints.
type Service struct {
	store            store.Store
	engine           *Engine
	notifier         Notifier
	reaper           *reaper.Reaper
	iceServers       []config.ICEServer
	manualStaleAfter time.Duration
	now              func() time.Time
	connected        func(string) bool
	logger           *zap.Logger
}

func NewService(st store.Store, engine *Engine, notifier Notifier, rp *reaper.Reaper, opts ServiceOptions) *Service {
	s := &Service{
		store:            st,
		engine:           engine,
		notifier:         notifier,
		reaper:           rp,
		iceServers:       opts.ICEServers,
		manualStaleAfter: opts.ManualStaleAfter,
		now:              opts.Now,
		connected:        opts.Connected,
		logger:           opts.Logger,
	}
	if s.iceServers == nil {
		s.iceServers = []config.ICEServer{}
	}
	if s.manualStaleAfter <= 0 {
		s.manualStaleAfter = time.Hour
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("Matchmaking")
	return s
}

// Request runs matchmaking for userID. On success the call is recorded,
// both users' connections join the call room and the partner is notified.
func (s *Service) Request(ctx context.Context, userID string, mode Mode, radiusKm *float64) (*Payload, error) {
	res, err := s.engine.RequestMatch(ctx, userID, mode, radiusKm)
	if err != nil || res == nil {
		return nil, err
	}

	call := &models.CallLogModel{
		CallerID:   res.Requester.ID,
		CalleeID:   res.Partner.ID,
		RoomID:     uuid.NewString(),
		StartedAt:  s.now(),
		DistanceKm: res.DistanceKm,
	}
	if err := s.store.CreateCallLog(ctx, call); err != nil {
		if relErr := s.store.Apply(ctx, store.Release(res.Requester.ID), store.Release(res.Partner.ID)); relErr != nil {
			s.logger.Error("release after failed call record", zap.String("requester", res.Requester.ID), zap.Error(relErr))
		}
		return nil, fmt.Errorf("create call record: %w", err)
	}

	self := toPeer(&res.Requester)
	partner := toPeer(&res.Partner)

	if s.notifier != nil {
		s.notifier.OpenRoom(ctx, call.RoomID, self.ID, partner.ID)
		s.notifier.NotifyMatch(ctx, partner.ID, signaling.MatchIncomingMessage{
			From:       self.ID,
			Partner:    self,
			RoomID:     call.RoomID,
			CallLogID:  call.ID,
			IceServers: s.iceServers,
			DistanceKm: res.DistanceKm,
		})
	}

	s.logger.Info("matched",
		zap.String("caller", self.ID), zap.String("callee", partner.ID), zap.String("call", call.ID))

	return &Payload{
		Partner:    partner,
		Self:       self,
		DistanceKm: res.DistanceKm,
		RoomID:     call.RoomID,
		CallLogID:  call.ID,
		IceServers: s.iceServers,
	}, nil
}

// End releases userID and closes the call record in one transaction. The
// partner is released only when callLogID names a call userID took part
// in, and it is always the other participant of that call; a partnerID
// naming anyone else is ignored.
func (s *Service) End(ctx context.Context, userID, partnerID, callLogID string) error {
	ops := []store.Op{store.Release(userID)}
	room := ""

	if callLogID != "" {
		call, err := s.store.FindCallLog(ctx, callLogID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return fmt.Errorf("find call record: %w", err)
		case call.CallerID == userID || call.CalleeID == userID:
			other := call.CallerID
			if other == userID {
				other = call.CalleeID
			}
			if partnerID != "" && partnerID != other {
				s.logger.Debug("end: partner id does not match call",
					zap.String("user", userID), zap.String("partner", partnerID), zap.String("call", call.ID))
			}
			ops = append(ops, store.CloseCall{CallID: call.ID, EndedAt: s.now()})
			if other != userID {
				ops = append(ops, store.Release(other))
			}
			room = call.RoomID
		}
	}

	if err := s.store.Apply(ctx, ops...); err != nil {
		return fmt.Errorf("end call: %w", err)
	}
	if room != "" && s.notifier != nil {
		s.notifier.CloseRoom(ctx, room)
	}
	return nil
}

// CleanupStale runs the reaper now. A non-positive olderThan uses the
// manual threshold.
func (s *Service) CleanupStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = s.manualStaleAfter
	}
	return s.reaper.Sweep(ctx, olderThan)
}

// ResetStatus marks userID online and not in a call.
func (s *Service) ResetStatus(ctx context.Context, userID string) error {
	now := s.now()
	return s.store.UpdateUser(ctx, userID, store.UserPatch{
		IsOnline:   store.Bool(true),
		InCall:     store.Bool(false),
		LastSeenAt: &now,
	})
}

// ResetAll clears every in-call flag and returns how many were set.
func (s *Service) ResetAll(ctx context.Context) (int64, error) {
	n, err := s.store.ResetAllInCall(ctx)
	if err == nil {
		s.logger.Warn("reset all in-call flags", zap.Int64("count", n))
	}
	return n, err
}

func (s *Service) Me(ctx context.Context, userID string) (*Profile, error) {
	u, err := s.store.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{
		ID: u.ID, Email: u.Email, DisplayName: u.DisplayName,
		Lat: u.Lat, Lng: u.Lng, RadiusKmDefault: u.RadiusKmDefault,
		IsOnline: u.IsOnline, InCall: u.InCall,
	}, nil
}

// UpdateLocation validates and stores a partial location change.
func (s *Service) UpdateLocation(ctx context.Context, userID string, in LocationUpdate) error {
	if v := in.Lat.Value; in.Lat.Set && v != nil && (*v < -90 || *v > 90) {
		return fmt.Errorf("%w: lat must be between -90 and 90", ErrInvalidInput)
	}
	if v := in.Lng.Value; in.Lng.Set && v != nil && (*v < -180 || *v > 180) {
		return fmt.Errorf("%w: lng must be between -180 and 180", ErrInvalidInput)
	}
	if v := in.RadiusKmDefault; v != nil && (*v < 1 || *v > 1000) {
		return fmt.Errorf("%w: radiusKmDefault must be between 1 and 1000", ErrInvalidInput)
	}
	return s.store.UpdateUser(ctx, userID, store.UserPatch{
		Lat:             in.Lat,
		Lng:             in.Lng,
		RadiusKmDefault: in.RadiusKmDefault,
	})
}

// UpdateStatus sets the durable flags. Coming online without an explicit
// inCall also clears inCall.
func (s *Service) UpdateStatus(ctx context.Context, userID string, isOnline, inCall *bool) error {
	now := s.now()
	patch := store.UserPatch{IsOnline: isOnline, InCall: inCall, LastSeenAt: &now}
	if isOnline != nil && *isOnline && inCall == nil {
		patch.InCall = store.Bool(false)
	}
	return s.store.UpdateUser(ctx, userID, patch)
}

// OnlineUsers lists online users other than userID with no block either
// way, including those already in a call.
func (s *Service) OnlineUsers(ctx context.Context, userID string) ([]OnlineUser, error) {
	users, err := s.store.FindCandidates(ctx, store.CandidateQuery{
		ExcludeID:     userID,
		Limit:         onlineUsersLimit,
		IncludeInCall: true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]OnlineUser, 0, len(users))
	for _, u := range users {
		item := OnlineUser{
			ID: u.ID, DisplayName: u.DisplayName,
			IsOnline: u.IsOnline, InCall: u.InCall,
			Lat: u.Lat, Lng: u.Lng,
		}
		if s.connected != nil {
			item.Connected = s.connected(u.ID)
		}
		out = append(out, item)
	}
	return out, nil
}
