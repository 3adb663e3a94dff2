package grants

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Grants are soulbound: custody never moves except through an admin-approved,
// single-use recovery transfer. ApproveTransfer, RevokeTransferApproval and
// ExecuteApprovedTransfer are the only operations in the service that touch
// custody, and ExecuteApprovedTransfer is the only caller of
// Repository.UpdateHolder.

// ApproveTransfer records an admin approval moving the grant to destination.
// A second approval for the same grant overwrites the first.
func (s *Service) ApproveTransfer(ctx context.Context, grantID uint64, destination uuid.UUID, admin Actor) error {
	if destination == uuid.Nil {
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
		g, err := repo.GetGrant(ctx, grantID)
		if err != nil {
			return err
		}
		if g.HolderID == destination {
			return &TransferBlockedError{GrantID: grantID, Holder: g.HolderID, Destination: destination}
		}
		if err := repo.UpsertApproval(ctx, &TransferApproval{
			GrantID:     grantID,
			Destination: destination,
			ApprovedBy:  admin.ID,
		}); err != nil {
			return err
		}
		ev, err = s.appendEvent(ctx, repo, grantID, EventTransferApproved, admin.ID, map[string]interface{}{
			"destination": destination,
		})
		return err
	})
	if err != nil {
		return err
	}
	s.emit(ev)

	s.logger.Info("transfer approved",
		zap.Uint64("grant_id", grantID),
		zap.String("destination", destination.String()))
	return nil
}

// RevokeTransferApproval clears any pending approval for the grant. It
// succeeds whether or not one exists.
func (s *Service) RevokeTransferApproval(ctx context.Context, grantID uint64, admin Actor) error {
	release, err := s.beginMutation()
	if err != nil {
		return err
	}
	defer release()

	var ev *GrantEvent
	err = s.db.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.GetGrant(ctx, grantID); err != nil {
			return err
		}
		if err := repo.DeleteApproval(ctx, grantID); err != nil {
			return err
		}
		ev, err = s.appendEvent(ctx, repo, grantID, EventTransferRevoked, admin.ID, nil)
		return err
	})
	if err != nil {
		return err
	}
	s.emit(ev)
	return nil
}

// PendingApproval returns the pending transfer approval, or
// ErrNoPendingApproval.
func (s *Service) PendingApproval(ctx context.Context, grantID uint64, requester Actor) (*TransferApproval, error) {
	if _, err := s.getForActor(ctx, s.repo, grantID, requester); err != nil {
		return nil, err
	}
	return s.repo.GetApproval(ctx, grantID)
}

// ExecuteApprovedTransfer moves custody to the destination named in the
// pending approval, then consumes the approval. The destination must match
// exactly; a transfer to anywhere else is blocked. Callable by the current
// custodian or an admin.
func (s *Service) ExecuteApprovedTransfer(ctx context.Context, grantID uint64, destination uuid.UUID, requester Actor) error {
	if destination == uuid.Nil {
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
		g, err := s.getForActor(ctx, repo, grantID, requester)
		if err != nil {
			return err
		}

		approval, err := repo.GetApproval(ctx, grantID)
		if err != nil {
			if errors.Is(err, ErrNoPendingApproval) {
				return &TransferBlockedError{GrantID: grantID, Holder: g.HolderID, Destination: destination}
			}
			return err
		}
		if approval.Destination != destination {
			return &DestinationMismatchError{
				GrantID:   grantID,
				Approved:  approval.Destination,
				Attempted: destination,
			}
		}

		if err := repo.UpdateHolder(ctx, grantID, destination); err != nil {
			return err
		}
		// Single-use: the approval is consumed with the move.
		if err := repo.DeleteApproval(ctx, grantID); err != nil {
			return err
		}
		ev, err = s.appendEvent(ctx, repo, grantID, EventTransferExecuted, requester.ID, map[string]interface{}{
			"from": g.HolderID,
			"to":   destination,
		})
		return err
	})
	if err != nil {
		return err
	}
	s.emit(ev)

	s.logger.Info("transfer executed",
		zap.Uint64("grant_id", grantID),
		zap.String("destination", destination.String()))
	return nil
}
