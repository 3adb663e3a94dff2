package grants

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OptionGrant represents a single option award with its vesting schedule and
// exercise history. Terms are immutable after creation; only
// ExercisedOptions, Terminated and TerminatedAt change, plus HolderID through
// the approved-transfer path.
type OptionGrant struct {
	ID       uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	HolderID uuid.UUID `json:"holder_id" gorm:"type:uuid;not null;index"`

	// Terms, fixed at issuance
	TotalOptions   uint64    `json:"total_options" gorm:"not null"`
	StrikePrice    uint64    `json:"strike_price" gorm:"not null"` // per option, payment asset smallest unit
	VestingStart   time.Time `json:"vesting_start" gorm:"not null"`
	CliffSeconds   int64     `json:"cliff_seconds" gorm:"not null"`
	VestingSeconds int64     `json:"vesting_seconds" gorm:"not null"`
	WindowSeconds  int64     `json:"window_seconds" gorm:"not null"` // post-termination exercise window

	// Mutable state
	ExercisedOptions uint64     `json:"exercised_options" gorm:"not null;default:0"`
	Terminated       bool       `json:"terminated" gorm:"not null;default:false"`
	TerminatedAt     *time.Time `json:"terminated_at"`

	// Audit
	IssuedBy  uuid.UUID `json:"issued_by" gorm:"type:uuid;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TransferApproval is the single pending recovery destination for a grant.
// At most one row per grant; cleared on execution or revocation.
type TransferApproval struct {
	GrantID     uint64    `json:"grant_id" gorm:"primaryKey"`
	Destination uuid.UUID `json:"destination" gorm:"type:uuid;not null"`
	ApprovedBy  uuid.UUID `json:"approved_by" gorm:"type:uuid;not null"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// GrantEvent is the append-only audit record written by every successful
// mutating operation. Events outlive the grants they describe.
type GrantEvent struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	GrantID   uint64         `json:"grant_id" gorm:"not null;index"`
	EventType EventType      `json:"event_type" gorm:"not null;index"`
	ActorID   uuid.UUID      `json:"actor_id" gorm:"type:uuid;not null"`
	Payload   datatypes.JSON `json:"payload" gorm:"default:'{}'"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

// EventType enumerates auditable grant ledger events
type EventType string

const (
	EventGrantCreated     EventType = "grant_created"
	EventOptionsExercised EventType = "options_exercised"
	EventGrantTerminated  EventType = "grant_terminated"
	EventGrantBurned      EventType = "grant_burned"
	EventGrantExpired     EventType = "grant_expired"
	EventTransferApproved EventType = "transfer_approved"
	EventTransferRevoked  EventType = "transfer_revoked"
	EventTransferExecuted EventType = "transfer_executed"
	EventTreasuryUpdated  EventType = "treasury_updated"
	EventExercisePaused   EventType = "exercise_paused"
	EventExerciseResumed  EventType = "exercise_resumed"
)

// LedgerSetting holds admin-adjustable ledger configuration (currently the
// treasury destination for strike payments).
type LedgerSetting struct {
	Key       string    `json:"key" gorm:"primaryKey"`
	Value     string    `json:"value" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// SettingTreasury is the settings key for the treasury holder identity.
const SettingTreasury = "treasury_holder"

// BeforeCreate hook for UUID generation
func (e *GrantEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
