package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Pusher routes live messages to connected clients. The websocket manager
// implements it.
type Pusher interface {
	SendToUser(userID uuid.UUID, message WebSocketMessage) error
	SendToGrant(grantID uint64, message WebSocketMessage) int
}

// Service persists in-app notifications and pushes live copies over
// websockets.
type Service struct {
	db     *gorm.DB
	pusher Pusher
	logger *zap.Logger
}

func NewService(db *gorm.DB, pusher Pusher, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&Notification{}); err != nil {
		return nil, fmt.Errorf("failed to migrate notifications: %w", err)
	}
	return &Service{db: db, pusher: pusher, logger: logger}, nil
}

// NotifyGrantEvent stores an in-app notification for the recipient and pushes
// it to the recipient's connections plus any grant subscribers. Delivery is
// best effort; the grant ledger never fails on a notification.
func (s *Service) NotifyGrantEvent(recipient uuid.UUID, grantID uint64, eventType string, payload []byte) {
	n := &Notification{
		UserID:    recipient,
		GrantID:   grantID,
		EventType: eventType,
		Payload:   payload,
	}
	if err := s.db.Create(n).Error; err != nil {
		s.logger.Warn("failed to store notification",
			zap.Uint64("grant_id", grantID),
			zap.Error(err))
	}

	var data map[string]interface{}
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &data)
	}
	msg := WebSocketMessage{
		Type:      WSMessageTypeNotification,
		GrantID:   grantID,
		EventType: eventType,
		Data:      data,
		Timestamp: time.Now(),
	}

	if s.pusher != nil {
		_ = s.pusher.SendToUser(recipient, msg)
		s.pusher.SendToGrant(grantID, msg)
	}
}

// ListForUser returns the user's notifications, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return out, nil
}

// MarkRead stamps a notification as read. Only the owner can mark it.
func (s *Service) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read_at", time.Now())
	if result.Error != nil {
		return fmt.Errorf("failed to mark notification read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("notification not found")
	}
	return nil
}
