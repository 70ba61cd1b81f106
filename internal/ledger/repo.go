package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
)

// Repository manages persistence for ledger events. Events are append-only.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.LedgerEvent) error
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error)
	SumByType(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, event *models.LedgerEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

func (r *repository) SumByType(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (decimal.Decimal, error) {
	row := r.db.WithContext(ctx).
		Model(&models.LedgerEvent{}).
		Select("SUM(amount)").
		Where("order_id = ? AND type = ?", orderID, eventType).
		Row()

	var total decimal.NullDecimal
	if err := row.Scan(&total); err != nil || !total.Valid {
		return decimal.Zero, err
	}
	return total.Decimal.Round(2), nil
}
