package returns

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
)

// Repository persists return authorizations, return items and customer
// returns, plus the order and unit fields the return flow mutates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpdateOrderState(ctx context.Context, orderID uuid.UUID, state enums.OrderState) error
	CountUnitsNotInState(ctx context.Context, orderID uuid.UUID, state enums.InventoryUnitState) (int64, error)
	UpdateUnitState(ctx context.Context, unitID uuid.UUID, state enums.InventoryUnitState) error

	CreateAuthorization(ctx context.Context, ra *models.ReturnAuthorization) error
	FindAuthorization(ctx context.Context, id uuid.UUID) (*models.ReturnAuthorization, error)
	FindAuthorizationByNumber(ctx context.Context, number string) (*models.ReturnAuthorization, error)
	UpdateAuthorizationState(ctx context.Context, id uuid.UUID, state enums.ReturnAuthorizationState) error

	CreateReturnItem(ctx context.Context, item *models.ReturnItem) error
	FindReturnItems(ctx context.Context, ids []uuid.UUID) ([]models.ReturnItem, error)
	ExchangeItemsForUnits(ctx context.Context, unitIDs []uuid.UUID) ([]models.ReturnItem, error)
	SaveReception(ctx context.Context, item *models.ReturnItem) error
	SaveAcceptance(ctx context.Context, item *models.ReturnItem) error
	DeleteReturnItem(ctx context.Context, id uuid.UUID) error

	CreateCustomerReturn(ctx context.Context, cr *models.CustomerReturn) error
	FindCustomerReturn(ctx context.Context, id uuid.UUID) (*models.CustomerReturn, error)
	FindCustomerReturnByNumber(ctx context.Context, number string) (*models.CustomerReturn, error)
	AttachToCustomerReturn(ctx context.Context, customerReturnID uuid.UUID, itemIDs []uuid.UUID) error
	MarkRefunded(ctx context.Context, customerReturnID uuid.UUID, at time.Time) error
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

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("LineItems").
		Preload("InventoryUnits").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) UpdateOrderState(ctx context.Context, orderID uuid.UUID, state enums.OrderState) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Update("state", state).Error
}

func (r *repository) CountUnitsNotInState(ctx context.Context, orderID uuid.UUID, state enums.InventoryUnitState) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryUnit{}).
		Where("order_id = ? AND state <> ? AND original_return_item_id IS NULL", orderID, state).
		Count(&n).Error
	return n, err
}

func (r *repository) UpdateUnitState(ctx context.Context, unitID uuid.UUID, state enums.InventoryUnitState) error {
	return r.db.WithContext(ctx).Model(&models.InventoryUnit{}).Where("id = ?", unitID).Update("state", state).Error
}

func (r *repository) CreateAuthorization(ctx context.Context, ra *models.ReturnAuthorization) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(ra).Error
}

func (r *repository) withItems(ctx context.Context, assoc string) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload(assoc).
		Preload(assoc + ".InventoryUnit").
		Preload(assoc + ".InventoryUnit.Variant").
		Preload(assoc + ".InventoryUnit.LineItem")
}

func (r *repository) FindAuthorization(ctx context.Context, id uuid.UUID) (*models.ReturnAuthorization, error) {
	var ra models.ReturnAuthorization
	if err := r.withItems(ctx, "ReturnItems").Where("id = ?", id).First(&ra).Error; err != nil {
		return nil, err
	}
	return &ra, nil
}

func (r *repository) FindAuthorizationByNumber(ctx context.Context, number string) (*models.ReturnAuthorization, error) {
	var ra models.ReturnAuthorization
	if err := r.withItems(ctx, "ReturnItems").Where("number = ?", number).First(&ra).Error; err != nil {
		return nil, err
	}
	return &ra, nil
}

func (r *repository) UpdateAuthorizationState(ctx context.Context, id uuid.UUID, state enums.ReturnAuthorizationState) error {
	return r.db.WithContext(ctx).Model(&models.ReturnAuthorization{}).Where("id = ?", id).Update("state", state).Error
}

func (r *repository) CreateReturnItem(ctx context.Context, item *models.ReturnItem) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(item).Error
}

func (r *repository) FindReturnItems(ctx context.Context, ids []uuid.UUID) ([]models.ReturnItem, error) {
	var items []models.ReturnItem
	err := r.db.WithContext(ctx).
		Preload("InventoryUnit").
		Preload("InventoryUnit.Variant").
		Preload("InventoryUnit.LineItem").
		Where("id IN ?", ids).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

// ExchangeItemsForUnits returns the live return items that requested an
// exchange for any of the units.
func (r *repository) ExchangeItemsForUnits(ctx context.Context, unitIDs []uuid.UUID) ([]models.ReturnItem, error) {
	var items []models.ReturnItem
	if len(unitIDs) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).
		Where("inventory_unit_id IN ? AND exchange_variant_id IS NOT NULL AND reception_status <> ?", unitIDs, enums.ReceptionCancelled).
		Find(&items).Error
	return items, err
}

func (r *repository) SaveReception(ctx context.Context, item *models.ReturnItem) error {
	return r.db.WithContext(ctx).Model(&models.ReturnItem{}).Where("id = ?", item.ID).Update("reception_status", item.ReceptionStatus).Error
}

func (r *repository) SaveAcceptance(ctx context.Context, item *models.ReturnItem) error {
	return r.db.WithContext(ctx).
		Model(item).
		Select("acceptance_status", "acceptance_status_errors").
		Updates(models.ReturnItem{
			AcceptanceStatus:       item.AcceptanceStatus,
			AcceptanceStatusErrors: item.AcceptanceStatusErrors,
		}).Error
}

func (r *repository) DeleteReturnItem(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ReturnItem{}).Error
}

func (r *repository) CreateCustomerReturn(ctx context.Context, cr *models.CustomerReturn) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(cr).Error
}

func (r *repository) FindCustomerReturn(ctx context.Context, id uuid.UUID) (*models.CustomerReturn, error) {
	var cr models.CustomerReturn
	if err := r.withItems(ctx, "ReturnItems").Where("id = ?", id).First(&cr).Error; err != nil {
		return nil, err
	}
	return &cr, nil
}

func (r *repository) FindCustomerReturnByNumber(ctx context.Context, number string) (*models.CustomerReturn, error) {
	var cr models.CustomerReturn
	if err := r.withItems(ctx, "ReturnItems").Where("number = ?", number).First(&cr).Error; err != nil {
		return nil, err
	}
	return &cr, nil
}

func (r *repository) AttachToCustomerReturn(ctx context.Context, customerReturnID uuid.UUID, itemIDs []uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.ReturnItem{}).
		Where("id IN ?", itemIDs).
		Update("customer_return_id", customerReturnID).Error
}

func (r *repository) MarkRefunded(ctx context.Context, customerReturnID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.CustomerReturn{}).Where("id = ?", customerReturnID).Update("refunded_at", at).Error
}
