// Package match pairs an available user with the nearest eligible
// candidate and reserves both for a call.
package match

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Soravit-Ice/Random-Call-BE/internal/models"
	"github.com/Soravit-Ice/Random-Call-BE/internal/pkg/geo"
	"github.com/Soravit-Ice/Random-Call-BE/internal/store"
	"go.uber.org/zap"
)

// Mode selects how the partner is chosen.
type Mode string

const (
	// ModeNear restricts the choice to the search radius, falling back to
	// the first eligible candidate when nobody is inside it.
	ModeNear Mode = "near"
	// ModeAny takes the nearest eligible candidate at any distance.
	ModeAny Mode = "any"
)

// ParseMode maps request input to a Mode. Empty input means ModeNear.
func ParseMode(raw string) Mode {
	if raw == "" {
		return ModeNear
	}
	return Mode(raw)
}

type Options struct {
	DefaultRadiusKm float64
	CandidateLimit  int
	MaxAttempts     int
}

func (o Options) withDefaults() Options {
	if o.DefaultRadiusKm <= 0 {
		o.DefaultRadiusKm = 10
	}
	if o.CandidateLimit <= 0 {
		o.CandidateLimit = 100
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	return o
}

// Result is a committed reservation. Both users are already in-call.
type Result struct {
	Partner   models.UserModel
	Requester models.UserModel
	// DistanceKm is nil when either side has no coordinates.
	DistanceKm *float64
}

type Engine struct {
	store  store.Store
	opts   Options
	logger *zap.Logger
}

func NewEngine(st store.Store, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: st, opts: opts.withDefaults(), logger: logger.Named("Matchmaking")}
}

// RequestMatch finds and reserves a partner for requesterID. A nil result
// with a nil error means no match is available right now.
func (e *Engine) RequestMatch(ctx context.Context, requesterID string, mode Mode, radiusKm *float64) (*Result, error) {
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		me, err := e.store.FindUser(ctx, requesterID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("find requester: %w", err)
		}
		if me.InCall {
			return nil, nil
		}

		candidates, err := e.store.FindCandidates(ctx, store.CandidateQuery{
			ExcludeID: requesterID,
			Limit:     e.opts.CandidateLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("find candidates: %w", err)
		}

		partner, distance := selectPartner(me, candidates, mode, e.radius(me, radiusKm))
		if partner == nil {
			return nil, nil
		}

		err = e.store.Apply(ctx, store.Reserve(me.ID), store.Reserve(partner.ID))
		if errors.Is(err, store.ErrConflict) {
			e.logger.Debug("reservation lost, retrying",
				zap.String("requester", me.ID), zap.String("partner", partner.ID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reserve pair: %w", err)
		}

		me.InCall = true
		partner.InCall = true
		return &Result{Partner: *partner, Requester: *me, DistanceKm: geo.Finite(distance)}, nil
	}

	e.logger.Info("no match after retries", zap.String("requester", requesterID), zap.Int("attempts", e.opts.MaxAttempts))
	return nil, nil
}

// radius resolves the search radius: explicit override, then the
// requester's default, then the configured fallback.
func (e *Engine) radius(me *models.UserModel, override *float64) float64 {
	if override != nil && *override > 0 {
		return *override
	}
	if me.RadiusKmDefault != nil && *me.RadiusKmDefault > 0 {
		return *me.RadiusKmDefault
	}
	return e.opts.DefaultRadiusKm
}

// selectPartner returns the nearest candidate (first seen wins ties). In
// ModeNear only candidates within radiusKm count. When nothing qualifies
// the first candidate is taken, so a non-empty pool always yields a
// partner.
func selectPartner(me *models.UserModel, candidates []models.UserModel, mode Mode, radiusKm float64) (*models.UserModel, float64) {
	if len(candidates) == 0 {
		return nil, math.Inf(1)
	}
	origin := me.Location()

	best := -1
	bestDistance := math.Inf(1)
	for i := range candidates {
		d := geo.Between(origin, candidates[i].Location())
		if mode == ModeNear && d > radiusKm {
			continue
		}
		if d < bestDistance {
			best = i
			bestDistance = d
		}
	}

	if best < 0 {
		best = 0
		bestDistance = geo.Between(origin, candidates[0].Location())
	}
	pick := candidates[best]
	return &pick, bestDistance
}
