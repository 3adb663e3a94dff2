package notifications

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebSocket message types
const (
	WSMessageTypeNotification = "notification"
	WSMessageTypeStatus       = "status"
	WSMessageTypeSubscribe    = "subscribe"
)

// WebSocketMessage is the wire format pushed to connected clients.
type WebSocketMessage struct {
	Type      string                 `json:"type"`
	GrantID   uint64                 `json:"grant_id,omitempty"`
	EventType string                 `json:"event_type,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Target    string                 `json:"target,omitempty"`
	Source    string                 `json:"source,omitempty"`
}

// Notification is the persisted in-app copy of a grant event, addressed to a
// single user.
type Notification struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	UserID    uuid.UUID      `json:"user_id" gorm:"type:uuid;not null;index"`
	GrantID   uint64         `json:"grant_id" gorm:"not null;index"`
	EventType string         `json:"event_type" gorm:"not null"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	ReadAt    *time.Time     `json:"read_at"`
}

// BeforeCreate hook for UUID generation
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
