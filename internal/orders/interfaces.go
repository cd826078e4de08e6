package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rohanvm/shopveda-backend/pkg/db/models"
	"github.com/rohanvm/shopveda-backend/pkg/enums"
	"github.com/rohanvm/shopveda-backend/pkg/pagination"
)

// Repository exposes order persistence. WithTx rebinds the repository to an
// open transaction so services can compose multi-row writes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateLineItems(ctx context.Context, items []models.OrderLineItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error
}
