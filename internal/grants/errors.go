package grants

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors detected before any mutation. A grant the requester does
// not hold is reported as not found, deliberately indistinguishable from a
// grant that does not exist.
var (
	ErrGrantNotFound      = errors.New("grant not found")
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrNilIdentity        = errors.New("identity must not be nil")
	ErrInvalidTerms       = errors.New("invalid grant terms")
	ErrAlreadyTerminated  = errors.New("grant already terminated")
	ErrGrantExpired       = errors.New("post-termination exercise window has closed")
	ErrNothingExercisable = errors.New("nothing currently exercisable")
	ErrNotBurnable        = errors.New("grant is not burnable")
	ErrNoPendingApproval  = errors.New("no transfer approval pending")
	ErrExercisePaused     = errors.New("exercise is paused")
	ErrReentrantCall      = errors.New("reentrant mutating call rejected")
	ErrNotAuthorized      = errors.New("caller is not authorized for this operation")
)

// InsufficientExercisableError reports an exercise request exceeding the
// currently exercisable balance, carrying both quantities for diagnostics.
type InsufficientExercisableError struct {
	GrantID   uint64
	Requested uint64
	Available uint64
}

func (e *InsufficientExercisableError) Error() string {
	return fmt.Sprintf("grant %d: requested %d options but only %d exercisable",
		e.GrantID, e.Requested, e.Available)
}

// TransferBlockedError reports a custody change attempted outside the
// approved-transfer path.
type TransferBlockedError struct {
	GrantID     uint64
	Holder      uuid.UUID
	Destination uuid.UUID
}

func (e *TransferBlockedError) Error() string {
	return fmt.Sprintf("grant %d is soulbound: transfer from %s to %s requires an admin-approved recovery",
		e.GrantID, e.Holder, e.Destination)
}

// DestinationMismatchError reports an approved-transfer execution whose
// destination does not match the pending approval.
type DestinationMismatchError struct {
	GrantID   uint64
	Approved  uuid.UUID
	Attempted uuid.UUID
}

func (e *DestinationMismatchError) Error() string {
	return fmt.Sprintf("grant %d: destination %s does not match approved destination %s",
		e.GrantID, e.Attempted, e.Approved)
}
