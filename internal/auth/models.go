package auth

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Role names recognized by the route guards.
const (
	RoleAdmin  = "admin"
	RoleIssuer = "issuer"
	RoleHolder = "holder"
)

// User is an authenticated identity. The ID doubles as the holder identity on
// the grant ledger.
type User struct {
	ID           uuid.UUID                   `json:"id" gorm:"type:uuid;primary_key"`
	Email        string                      `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string                      `json:"-" gorm:"not null"`
	Roles        datatypes.JSONSlice[string] `json:"roles"`
	CreatedAt    time.Time                   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time                   `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate hook for UUID generation
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// HasRole reports whether the user carries the role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
