package grants

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"equity-portal/grant-ledger-backend/pkg/workflows"
)

// Actor identifies the caller of a service operation. Custody is always
// checked against the grant record; Admin reflects the role authority.
type Actor struct {
	ID    uuid.UUID
	Admin bool
}

// Service owns the grant lifecycle: issuance, exercise settlement,
// termination, transfer recovery and burn. All mutating operations serialize
// on one mutex and commit through one GORM transaction, so every operation
// either applies all of its effects or none of them.
type Service struct {
	db      *gorm.DB
	repo    Repository
	sm      *workflows.StateMachine
	equity  EquityMinter
	payment PaymentMover
	logger  *zap.Logger
	clock   func() time.Time

	mu           sync.Mutex  // serializes mutating operations
	inSettlement atomic.Bool // reentrancy guard, set around collaborator transfers
	paused       atomic.Bool
	treasury     uuid.UUID // guarded by mu

	publish func(*GrantEvent)
}

// NewService wires the grant service. treasury is the initial strike-payment
// destination; it can be changed later via UpdateTreasury.
func NewService(db *gorm.DB, repo Repository, equity EquityMinter, payment PaymentMover, treasury uuid.UUID, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		db:      db,
		repo:    repo,
		sm:      workflows.NewGrantStateMachine(),
		equity:  equity,
		payment: payment,
		logger:  logger,
		clock:   time.Now,
	}

	stored, err := repo.GetSetting(context.Background(), SettingTreasury)
	if err != nil {
		return nil, err
	}
	if stored != "" {
		id, err := uuid.Parse(stored)
		if err != nil {
			return nil, fmt.Errorf("invalid stored treasury identity: %w", err)
		}
		s.treasury = id
	} else {
		if treasury == uuid.Nil {
			return nil, ErrNilIdentity
		}
		if err := repo.PutSetting(context.Background(), SettingTreasury, treasury.String()); err != nil {
			return nil, err
		}
		s.treasury = treasury
	}
	return s, nil
}

// SetClock overrides the time source. Intended for tests.
func (s *Service) SetClock(clock func() time.Time) {
	s.clock = clock
}

// SetPublisher installs a sink that receives every committed audit event.
func (s *Service) SetPublisher(publish func(*GrantEvent)) {
	s.publish = publish
}

// beginMutation enforces the execution model: one mutating operation at a
// time, and no mutating re-entry from within an in-flight settlement's
// collaborator transfers.
func (s *Service) beginMutation() (func(), error) {
	if s.inSettlement.Load() {
		return nil, ErrReentrantCall
	}
	s.mu.Lock()
	return s.mu.Unlock, nil
}

// IssueGrantRequest carries the immutable terms of a new grant.
type IssueGrantRequest struct {
	Holder         uuid.UUID `json:"holder"`
	TotalOptions   uint64    `json:"total_options"`
	StrikePrice    uint64    `json:"strike_price"`
	VestingStart   time.Time `json:"vesting_start"`
	CliffSeconds   int64     `json:"cliff_seconds"`
	VestingSeconds int64     `json:"vesting_seconds"`
	WindowSeconds  int64     `json:"window_seconds"`
}

func (r *IssueGrantRequest) validate() error {
	if r.Holder == uuid.Nil {
		return ErrNilIdentity
	}
	if r.TotalOptions == 0 {
		return fmt.Errorf("%w: total options must be positive", ErrInvalidTerms)
	}
	if r.StrikePrice == 0 {
		return fmt.Errorf("%w: strike price must be positive", ErrInvalidTerms)
	}
	if r.VestingSeconds <= 0 {
		return fmt.Errorf("%w: vesting duration must be positive", ErrInvalidTerms)
	}
	if r.CliffSeconds < 0 {
		return fmt.Errorf("%w: cliff must not be negative", ErrInvalidTerms)
	}
	if r.VestingSeconds < r.CliffSeconds {
		return fmt.Errorf("%w: vesting duration must not be shorter than cliff", ErrInvalidTerms)
	}
	if r.WindowSeconds <= 0 {
		return fmt.Errorf("%w: post-termination window must be positive", ErrInvalidTerms)
	}
	return nil
}

// IssueGrant creates a grant for the holder. Issuer-only; the role check
// happens at the transport layer.
func (s *Service) IssueGrant(ctx context.Context, req *IssueGrantRequest, issuer Actor) (*OptionGrant, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	release, err := s.beginMutation()
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		g  *OptionGrant
		ev *GrantEvent
	)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		g = &OptionGrant{
			HolderID:       req.Holder,
			TotalOptions:   req.TotalOptions,
			StrikePrice:    req.StrikePrice,
			VestingStart:   req.VestingStart,
			CliffSeconds:   req.CliffSeconds,
			VestingSeconds: req.VestingSeconds,
			WindowSeconds:  req.WindowSeconds,
			IssuedBy:       issuer.ID,
		}
		if err := repo.CreateGrant(ctx, g); err != nil {
			return err
		}
		ev, err = s.appendEvent(ctx, repo, g.ID, EventGrantCreated, issuer.ID, map[string]interface{}{
			"holder":          req.Holder,
			"total_options":   req.TotalOptions,
			"strike_price":    req.StrikePrice,
			"vesting_start":   req.VestingStart,
			"cliff_seconds":   req.CliffSeconds,
			"vesting_seconds": req.VestingSeconds,
			"window_seconds":  req.WindowSeconds,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.emit(ev)

	s.logger.Info("grant issued",
		zap.Uint64("grant_id", g.ID),
		zap.String("holder", g.HolderID.String()),
		zap.Uint64("total_options", g.TotalOptions))
	return g, nil
}

// Terminate freezes vesting at the current instant and starts the
// post-termination exercise window. Admin-only; one-way.
func (s *Service) Terminate(ctx context.Context, grantID uint64, admin Actor) error {
	release, err := s.beginMutation()
	if err != nil {
		return err
	}
	defer release()

	now := s.clock()
	var ev *GrantEvent
	err = s.db.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		g, err := repo.GetGrant(ctx, grantID)
		if err != nil {
			return err
		}
		if g.Terminated {
			return ErrAlreadyTerminated
		}
		if err := s.sm.Validate(string(StatusOf(g, now)), string(StatusTerminated)); err != nil {
			return err
		}

		g.Terminated = true
		g.TerminatedAt = &now
		if err := repo.SaveGrant(ctx, g); err != nil {
			return err
		}
		ev, err = s.appendEvent(ctx, repo, g.ID, EventGrantTerminated, admin.ID, map[string]interface{}{
			"terminated_at":    now,
			"vested_at_freeze": VestedNow(g, now),
			"window_seconds":   g.WindowSeconds,
		})
		return err
	})
	if err != nil {
		return err
	}
	s.emit(ev)

	s.logger.Info("grant terminated", zap.Uint64("grant_id", grantID))
	return nil
}

// Burn destroys a burnable grant record along with any pending transfer
// approval. Callable by the custodian or an admin.
func (s *Service) Burn(ctx context.Context, grantID uint64, requester Actor) error {
	release, err := s.beginMutation()
	if err != nil {
		return err
	}
	defer release()

	now := s.clock()
	var ev *GrantEvent
	err = s.db.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		g, err := s.getForActor(ctx, repo, grantID, requester)
		if err != nil {
			return err
		}
		if !IsBurnable(g, now) {
			return ErrNotBurnable
		}
		if err := repo.DeleteApproval(ctx, grantID); err != nil {
			return err
		}
		if err := repo.DeleteGrant(ctx, grantID); err != nil {
			return err
		}
		ev, err = s.appendEvent(ctx, repo, grantID, EventGrantBurned, requester.ID, map[string]interface{}{
			"holder":            g.HolderID,
			"total_options":     g.TotalOptions,
			"exercised_options": g.ExercisedOptions,
			"status":            StatusOf(g, now),
		})
		return err
	})
	if err != nil {
		return err
	}
	s.emit(ev)

	s.logger.Info("grant burned", zap.Uint64("grant_id", grantID))
	return nil
}

// SweepExpired records an expiry event for every terminated grant whose
// exercise window has closed and that has not been marked yet. Expiry itself
// is derived from time; the sweep only makes it visible in the audit trail
// and to subscribers. Returns the IDs marked in this pass.
func (s *Service) SweepExpired(ctx context.Context) ([]uint64, error) {
	release, err := s.beginMutation()
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.clock()
	var (
		marked []uint64
		events []*GrantEvent
	)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		terminated, err := repo.ListTerminated(ctx)
		if err != nil {
			return err
		}
		for i := range terminated {
			g := &terminated[i]
			if !IsExpired(g, now) {
				continue
			}
			seen, err := repo.HasEvent(ctx, g.ID, EventGrantExpired)
			if err != nil {
				return err
			}
			if seen {
				continue
			}
			ev, err := s.appendEvent(ctx, repo, g.ID, EventGrantExpired, uuid.Nil, map[string]interface{}{
				"holder":         g.HolderID,
				"terminated_at":  g.TerminatedAt,
				"window_seconds": g.WindowSeconds,
			})
			if err != nil {
				return err
			}
			events = append(events, ev)
			marked = append(marked, g.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		s.emit(ev)
	}

	if len(marked) > 0 {
		s.logger.Info("expired grants marked", zap.Int("count", len(marked)))
	}
	return marked, nil
}

// UpdateTreasury changes the strike-payment destination. Admin-only.
func (s *Service) UpdateTreasury(ctx context.Context, treasury uuid.UUID, admin Actor) error {
	if treasury == uuid.Nil {
		return ErrNilIdentity
	}

	release, err := s.beginMutation()
	if err != nil {
		return err
	}
	defer release()

	var ev *GrantEvent
	err = s.db.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.PutSetting(ctx, SettingTreasury, treasury.String()); err != nil {
			return err
		}
		ev, err = s.appendEvent(ctx, repo, 0, EventTreasuryUpdated, admin.ID, map[string]interface{}{
			"previous": s.treasury,
			"treasury": treasury,
		})
		return err
	})
	if err != nil {
		return err
	}
	s.emit(ev)

	s.treasury = treasury
	s.logger.Info("treasury updated", zap.String("treasury", treasury.String()))
	return nil
}

// PauseExercise stops settlement without affecting reads or other
// transitions. Admin-only.
func (s *Service) PauseExercise(ctx context.Context, admin Actor) error {
	release, err := s.beginMutation()
	if err != nil {
		return err
	}
	defer release()

	s.paused.Store(true)
	ev, err := s.appendEvent(ctx, s.repo, 0, EventExercisePaused, admin.ID, nil)
	if err != nil {
		return err
	}
	s.emit(ev)
	return nil
}

// ResumeExercise lifts a pause. Admin-only.
func (s *Service) ResumeExercise(ctx context.Context, admin Actor) error {
	release, err := s.beginMutation()
	if err != nil {
		return err
	}
	defer release()

	s.paused.Store(false)
	ev, err := s.appendEvent(ctx, s.repo, 0, EventExerciseResumed, admin.ID, nil)
	if err != nil {
		return err
	}
	s.emit(ev)
	return nil
}

// Paused reports whether exercise settlement is currently paused.
func (s *Service) Paused() bool {
	return s.paused.Load()
}

// GetGrant returns the grant visible to the requester: admins see any grant,
// everyone else only their own.
func (s *Service) GetGrant(ctx context.Context, grantID uint64, requester Actor) (*OptionGrant, error) {
	return s.getForActor(ctx, s.repo, grantID, requester)
}

// ListGrants returns the requester's grants, or all grants for admins.
func (s *Service) ListGrants(ctx context.Context, requester Actor) ([]OptionGrant, error) {
	if requester.Admin {
		return s.repo.ListGrants(ctx)
	}
	return s.repo.ListGrantsByHolder(ctx, requester.ID)
}

// GrantPosition is the read-model for a single grant at one instant.
type GrantPosition struct {
	Grant            *OptionGrant `json:"grant"`
	Status           GrantStatus  `json:"status"`
	Vested           uint64       `json:"vested"`
	Exercisable      uint64       `json:"exercisable"`
	Expired          bool         `json:"expired"`
	FullyExercised   bool         `json:"fully_exercised"`
	Burnable         bool         `json:"burnable"`
	EffectiveTime    time.Time    `json:"effective_time"`
	RemainingOptions uint64       `json:"remaining_options"`
}

// Position computes the derived view of a grant at the current time.
func (s *Service) Position(ctx context.Context, grantID uint64, requester Actor) (*GrantPosition, error) {
	g, err := s.getForActor(ctx, s.repo, grantID, requester)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	vested := VestedNow(g, now)
	return &GrantPosition{
		Grant:            g,
		Status:           StatusOf(g, now),
		Vested:           vested,
		Exercisable:      Exercisable(vested, g.ExercisedOptions),
		Expired:          IsExpired(g, now),
		FullyExercised:   g.ExercisedOptions == g.TotalOptions,
		Burnable:         IsBurnable(g, now),
		EffectiveTime:    EffectiveTime(g, now),
		RemainingOptions: g.TotalOptions - g.ExercisedOptions,
	}, nil
}

// QuoteExerciseCost prices an exercise of the given amount without mutating
// anything.
func (s *Service) QuoteExerciseCost(ctx context.Context, grantID uint64, amount uint64, requester Actor) (*big.Int, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	g, err := s.getForActor(ctx, s.repo, grantID, requester)
	if err != nil {
		return nil, err
	}
	return ExerciseCost(amount, g.StrikePrice), nil
}

// Events returns the audit trail of a grant.
func (s *Service) Events(ctx context.Context, grantID uint64, requester Actor) ([]GrantEvent, error) {
	if !requester.Admin {
		if _, err := s.repo.GetGrantForHolder(ctx, grantID, requester.ID); err != nil {
			return nil, err
		}
	}
	return s.repo.ListEvents(ctx, grantID)
}

// Treasury returns the current strike-payment destination.
func (s *Service) Treasury() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.treasury
}

// getForActor resolves a grant for the requester. Non-admins that do not
// hold the grant get ErrGrantNotFound, indistinguishable from nonexistence.
func (s *Service) getForActor(ctx context.Context, repo Repository, grantID uint64, requester Actor) (*OptionGrant, error) {
	if requester.Admin {
		return repo.GetGrant(ctx, grantID)
	}
	return repo.GetGrantForHolder(ctx, grantID, requester.ID)
}

// appendEvent persists an audit event inside the current transaction. The
// caller emits it to subscribers only after the transaction commits.
func (s *Service) appendEvent(ctx context.Context, repo Repository, grantID uint64, eventType EventType, actor uuid.UUID, payload map[string]interface{}) (*GrantEvent, error) {
	var body datatypes.JSON
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event payload: %w", err)
		}
		body = datatypes.JSON(data)
	}
	e := &GrantEvent{
		GrantID:   grantID,
		EventType: eventType,
		ActorID:   actor,
		Payload:   body,
	}
	if err := repo.AppendEvent(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) emit(e *GrantEvent) {
	if s.publish != nil && e != nil {
		s.publish(e)
	}
}
