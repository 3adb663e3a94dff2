package grants

import (
	"context"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EquityMinter is the equity asset collaborator. Mint runs inside the
// settlement transaction and returns the smallest-unit amount credited.
type EquityMinter interface {
	Mint(ctx context.Context, tx *gorm.DB, recipient uuid.UUID, wholeOptions uint64) (*big.Int, error)
}

// PaymentMover is the payment asset collaborator. Pull moves the strike cost
// from the payer to the treasury inside the settlement transaction.
type PaymentMover interface {
	Pull(ctx context.Context, tx *gorm.DB, from, to uuid.UUID, amount *big.Int) error
}

// ExerciseReceipt summarizes a committed settlement.
type ExerciseReceipt struct {
	GrantID          uint64      `json:"grant_id"`
	Holder           uuid.UUID   `json:"holder"`
	Amount           uint64      `json:"amount"`
	Cost             *big.Int    `json:"cost"`
	MintedUnits      *big.Int    `json:"minted_units"`
	ExercisedOptions uint64      `json:"exercised_options"`
	Status           GrantStatus `json:"status"`
	SettledAt        time.Time   `json:"settled_at"`
}

// Exercise settles an exercise of amount options against the grant. The grant
// record is updated before either asset moves, then the strike cost is pulled
// to the treasury and the equity is minted, all inside one transaction. Any
// failure rolls the whole settlement back.
func (s *Service) Exercise(ctx context.Context, grantID uint64, amount uint64, requester Actor) (*ExerciseReceipt, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	release, err := s.beginMutation()
	if err != nil {
		return nil, err
	}
	defer release()

	if s.paused.Load() {
		return nil, ErrExercisePaused
	}

	now := s.clock()
	treasury := s.treasury

	// Mutating calls issued from within the collaborator transfers below
	// observe this flag and are rejected.
	s.inSettlement.Store(true)
	defer s.inSettlement.Store(false)

	var (
		receipt *ExerciseReceipt
		ev      *GrantEvent
	)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		g, err := repo.GetGrantForHolder(ctx, grantID, requester.ID)
		if err != nil {
			return err
		}
		if IsExpired(g, now) {
			return ErrGrantExpired
		}

		vested := VestedNow(g, now)
		available := Exercisable(vested, g.ExercisedOptions)
		if available == 0 {
			return ErrNothingExercisable
		}
		if amount > available {
			return &InsufficientExercisableError{
				GrantID:   grantID,
				Requested: amount,
				Available: available,
			}
		}

		if err := s.sm.Validate(string(StatusOf(g, now)), string(statusAfterExercise(g, amount))); err != nil {
			return err
		}

		// Record the exercise before any asset moves.
		g.ExercisedOptions += amount
		if err := repo.SaveGrant(ctx, g); err != nil {
			return err
		}

		cost := ExerciseCost(amount, g.StrikePrice)
		if err := s.payment.Pull(ctx, tx, requester.ID, treasury, cost); err != nil {
			return err
		}

		minted, err := s.equity.Mint(ctx, tx, requester.ID, amount)
		if err != nil {
			return err
		}

		ev, err = s.appendEvent(ctx, repo, g.ID, EventOptionsExercised, requester.ID, map[string]interface{}{
			"amount":            amount,
			"cost":              cost.String(),
			"minted_units":      minted.String(),
			"exercised_options": g.ExercisedOptions,
		})
		if err != nil {
			return err
		}

		receipt = &ExerciseReceipt{
			GrantID:          g.ID,
			Holder:           g.HolderID,
			Amount:           amount,
			Cost:             cost,
			MintedUnits:      minted,
			ExercisedOptions: g.ExercisedOptions,
			Status:           StatusOf(g, now),
			SettledAt:        now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ev)

	s.logger.Info("exercise settled",
		zap.Uint64("grant_id", receipt.GrantID),
		zap.Uint64("amount", receipt.Amount),
		zap.String("cost", receipt.Cost.String()),
		zap.Uint64("exercised_options", receipt.ExercisedOptions))
	return receipt, nil
}

// statusAfterExercise is the state the grant lands in once amount more
// options are exercised. Termination status is sticky.
func statusAfterExercise(g *OptionGrant, amount uint64) GrantStatus {
	if g.Terminated {
		return StatusTerminated
	}
	if g.ExercisedOptions+amount == g.TotalOptions {
		return StatusFullyExercised
	}
	return StatusPartiallyExercised
}
