package grants

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines data access for grants, approvals and audit events.
type Repository interface {
	CreateGrant(ctx context.Context, g *OptionGrant) error
	GetGrant(ctx context.Context, id uint64) (*OptionGrant, error)
	GetGrantForHolder(ctx context.Context, id uint64, holder uuid.UUID) (*OptionGrant, error)
	ListGrantsByHolder(ctx context.Context, holder uuid.UUID) ([]OptionGrant, error)
	ListGrants(ctx context.Context) ([]OptionGrant, error)
	ListTerminated(ctx context.Context) ([]OptionGrant, error)
	SaveGrant(ctx context.Context, g *OptionGrant) error
	UpdateHolder(ctx context.Context, id uint64, holder uuid.UUID) error
	DeleteGrant(ctx context.Context, id uint64) error

	UpsertApproval(ctx context.Context, a *TransferApproval) error
	GetApproval(ctx context.Context, grantID uint64) (*TransferApproval, error)
	DeleteApproval(ctx context.Context, grantID uint64) error

	AppendEvent(ctx context.Context, e *GrantEvent) error
	ListEvents(ctx context.Context, grantID uint64) ([]GrantEvent, error)
	HasEvent(ctx context.Context, grantID uint64, eventType EventType) (bool, error)

	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error

	// WithTx returns a repository bound to the given transaction.
	WithTx(tx *gorm.DB) Repository
}

// GormRepository implements Repository using GORM
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new grant repository
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Migrate creates the grant ledger tables.
func (r *GormRepository) Migrate() error {
	return r.db.AutoMigrate(
		&OptionGrant{},
		&TransferApproval{},
		&GrantEvent{},
		&LedgerSetting{},
	)
}

func (r *GormRepository) WithTx(tx *gorm.DB) Repository {
	return &GormRepository{db: tx}
}

func (r *GormRepository) CreateGrant(ctx context.Context, g *OptionGrant) error {
	if err := r.db.WithContext(ctx).Create(g).Error; err != nil {
		return fmt.Errorf("failed to create grant: %w", err)
	}
	return nil
}

func (r *GormRepository) GetGrant(ctx context.Context, id uint64) (*OptionGrant, error) {
	var g OptionGrant
	if err := r.db.WithContext(ctx).First(&g, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGrantNotFound
		}
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return &g, nil
}

func (r *GormRepository) GetGrantForHolder(ctx context.Context, id uint64, holder uuid.UUID) (*OptionGrant, error) {
	var g OptionGrant
	err := r.db.WithContext(ctx).First(&g, "id = ? AND holder_id = ?", id, holder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGrantNotFound
		}
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return &g, nil
}

func (r *GormRepository) ListGrantsByHolder(ctx context.Context, holder uuid.UUID) ([]OptionGrant, error) {
	var out []OptionGrant
	if err := r.db.WithContext(ctx).Where("holder_id = ?", holder).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return out, nil
}

func (r *GormRepository) ListGrants(ctx context.Context) ([]OptionGrant, error) {
	var out []OptionGrant
	if err := r.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return out, nil
}

func (r *GormRepository) ListTerminated(ctx context.Context) ([]OptionGrant, error) {
	var out []OptionGrant
	if err := r.db.WithContext(ctx).Where("terminated = ?", true).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list terminated grants: %w", err)
	}
	return out, nil
}

func (r *GormRepository) SaveGrant(ctx context.Context, g *OptionGrant) error {
	if err := r.db.WithContext(ctx).Save(g).Error; err != nil {
		return fmt.Errorf("failed to save grant: %w", err)
	}
	return nil
}

// UpdateHolder is the single custody-mutation choke point. Callers must have
// passed the transfer gate before reaching it.
func (r *GormRepository) UpdateHolder(ctx context.Context, id uint64, holder uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&OptionGrant{}).Where("id = ?", id).Update("holder_id", holder)
	if result.Error != nil {
		return fmt.Errorf("failed to update holder: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrGrantNotFound
	}
	return nil
}

func (r *GormRepository) DeleteGrant(ctx context.Context, id uint64) error {
	result := r.db.WithContext(ctx).Delete(&OptionGrant{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete grant: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrGrantNotFound
	}
	return nil
}

func (r *GormRepository) UpsertApproval(ctx context.Context, a *TransferApproval) error {
	// Overwrites any prior pending approval for the grant.
	if err := r.db.WithContext(ctx).Save(a).Error; err != nil {
		return fmt.Errorf("failed to store transfer approval: %w", err)
	}
	return nil
}

func (r *GormRepository) GetApproval(ctx context.Context, grantID uint64) (*TransferApproval, error) {
	var a TransferApproval
	err := r.db.WithContext(ctx).First(&a, "grant_id = ?", grantID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoPendingApproval
		}
		return nil, fmt.Errorf("failed to get transfer approval: %w", err)
	}
	return &a, nil
}

func (r *GormRepository) DeleteApproval(ctx context.Context, grantID uint64) error {
	// No-op when nothing is pending.
	if err := r.db.WithContext(ctx).Delete(&TransferApproval{}, "grant_id = ?", grantID).Error; err != nil {
		return fmt.Errorf("failed to delete transfer approval: %w", err)
	}
	return nil
}

func (r *GormRepository) AppendEvent(ctx context.Context, e *GrantEvent) error {
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *GormRepository) ListEvents(ctx context.Context, grantID uint64) ([]GrantEvent, error) {
	var out []GrantEvent
	err := r.db.WithContext(ctx).Where("grant_id = ?", grantID).Order("created_at").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return out, nil
}

func (r *GormRepository) HasEvent(ctx context.Context, grantID uint64, eventType EventType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&GrantEvent{}).
		Where("grant_id = ? AND event_type = ?", grantID, eventType).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check event: %w", err)
	}
	return count > 0, nil
}

func (r *GormRepository) GetSetting(ctx context.Context, key string) (string, error) {
	var s LedgerSetting
	if err := r.db.WithContext(ctx).First(&s, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return s.Value, nil
}

func (r *GormRepository) PutSetting(ctx context.Context, key, value string) error {
	if err := r.db.WithContext(ctx).Save(&LedgerSetting{Key: key, Value: value}).Error; err != nil {
		return fmt.Errorf("failed to put setting: %w", err)
	}
	return nil
}
