package statements

import (
	"context"
	"fmt"
	"time"

	"equity-portal/grant-ledger-backend/internal/grants"
)

// Row is one cap-table line: a single grant with its derived position.
type Row struct {
	GrantID     uint64
	Holder      string
	Total       uint64
	Vested      uint64
	Exercised   uint64
	Exercisable uint64
	StrikePrice uint64
	Status      grants.GrantStatus
	Terminated  bool
	IssuedAt    time.Time
}

// Service builds cap-table and per-grant statement exports on top of the
// grant ledger's read model.
type Service struct {
	grants *grants.Service
	clock  func() time.Time
}

func NewService(grantService *grants.Service) *Service {
	return &Service{grants: grantService, clock: time.Now}
}

// SetClock overrides the time source. Intended for tests.
func (s *Service) SetClock(clock func() time.Time) {
	s.clock = clock
}

// CapTable returns one row per grant visible to the requester, priced at the
// current instant.
func (s *Service) CapTable(ctx context.Context, requester grants.Actor) ([]Row, error) {
	list, err := s.grants.ListGrants(ctx, requester)
	if err != nil {
		return nil, fmt.Errorf("failed to load grants: %w", err)
	}

	now := s.clock()
	rows := make([]Row, 0, len(list))
	for i := range list {
		g := &list[i]
		vested := grants.VestedNow(g, now)
		rows = append(rows, Row{
			GrantID:     g.ID,
			Holder:      g.HolderID.String(),
			Total:       g.TotalOptions,
			Vested:      vested,
			Exercised:   g.ExercisedOptions,
			Exercisable: grants.Exercisable(vested, g.ExercisedOptions),
			StrikePrice: g.StrikePrice,
			Status:      grants.StatusOf(g, now),
			Terminated:  g.Terminated,
			IssuedAt:    g.CreatedAt,
		})
	}
	return rows, nil
}

// Statement collects everything printed on a single-grant statement.
type Statement struct {
	Position *grants.GrantPosition
	Events   []grants.GrantEvent
	AsOf     time.Time
}

// Statement builds the statement for one grant.
func (s *Service) Statement(ctx context.Context, grantID uint64, requester grants.Actor) (*Statement, error) {
	pos, err := s.grants.Position(ctx, grantID, requester)
	if err != nil {
		return nil, err
	}
	events, err := s.grants.Events(ctx, grantID, requester)
	if err != nil {
		return nil, err
	}
	return &Statement{Position: pos, Events: events, AsOf: s.clock()}, nil
}
