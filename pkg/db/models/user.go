package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rohanvm/shopveda-backend/pkg/enums"
)

// User is the minimal identity row backing auth claims and order ownership.
type User struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Phone     string         `gorm:"column:phone;not null;uniqueIndex"`
	Name      string         `gorm:"column:name"`
	Role      enums.UserRole `gorm:"column:role;type:user_role;not null;default:'customer'"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
