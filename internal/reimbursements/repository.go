package reimbursements

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
)

// Repository persists reimbursements and the return item fields settlement
// writes back.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, r *models.Reimbursement) error
	Find(ctx context.Context, id uuid.UUID) (*models.Reimbursement, error)
	FindByNumber(ctx context.Context, number string) (*models.Reimbursement, error)
	UpdateTotal(ctx context.Context, id uuid.UUID, total decimal.Decimal) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ReimbursementStatus) error
	ListByStatus(ctx context.Context, status enums.ReimbursementStatus, limit int) ([]models.Reimbursement, error)

	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error)
	CreateUnit(ctx context.Context, unit *models.InventoryUnit) error

	FindReturnItems(ctx context.Context, ids []uuid.UUID) ([]models.ReturnItem, error)
	UnreimbursedItemsForCustomerReturn(ctx context.Context, customerReturnID uuid.UUID) ([]models.ReturnItem, error)
	AttachItem(ctx context.Context, itemID, reimbursementID uuid.UUID) error
	SaveItemTaxes(ctx context.Context, item *models.ReturnItem) error
	SetExchangeUnit(ctx context.Context, itemID, unitID uuid.UUID) error
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

func (r *repository) Create(ctx context.Context, reimbursement *models.Reimbursement) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(reimbursement).Error
}

func (r *repository) withItems(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("ReturnItems", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("ReturnItems.InventoryUnit").
		Preload("ReturnItems.InventoryUnit.Variant").
		Preload("ReturnItems.InventoryUnit.LineItem").
		Preload("Refunds")
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.Reimbursement, error) {
	var reimbursement models.Reimbursement
	if err := r.withItems(ctx).Where("id = ?", id).First(&reimbursement).Error; err != nil {
		return nil, err
	}
	return &reimbursement, nil
}

func (r *repository) FindByNumber(ctx context.Context, number string) (*models.Reimbursement, error) {
	var reimbursement models.Reimbursement
	if err := r.withItems(ctx).Where("number = ?", number).First(&reimbursement).Error; err != nil {
		return nil, err
	}
	return &reimbursement, nil
}

func (r *repository) UpdateTotal(ctx context.Context, id uuid.UUID, total decimal.Decimal) error {
	return r.db.WithContext(ctx).Model(&models.Reimbursement{}).Where("id = ?", id).Update("total", total).Error
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ReimbursementStatus) error {
	return r.db.WithContext(ctx).Model(&models.Reimbursement{}).Where("id = ?", id).Update("reimbursement_status", status).Error
}

// ListByStatus returns up to limit reimbursements in status, oldest first.
func (r *repository) ListByStatus(ctx context.Context, status enums.ReimbursementStatus, limit int) ([]models.Reimbursement, error) {
	var out []models.Reimbursement
	query := r.db.WithContext(ctx).Where("reimbursement_status = ?", status).Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
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

func (r *repository) FindVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error) {
	var variant models.Variant
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *repository) CreateUnit(ctx context.Context, unit *models.InventoryUnit) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(unit).Error
}

func (r *repository) FindReturnItems(ctx context.Context, ids []uuid.UUID) ([]models.ReturnItem, error) {
	var items []models.ReturnItem
	err := r.db.WithContext(ctx).
		Preload("InventoryUnit").
		Preload("InventoryUnit.LineItem").
		Where("id IN ?", ids).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

func (r *repository) UnreimbursedItemsForCustomerReturn(ctx context.Context, customerReturnID uuid.UUID) ([]models.ReturnItem, error) {
	var items []models.ReturnItem
	err := r.db.WithContext(ctx).
		Preload("InventoryUnit").
		Where("customer_return_id = ? AND reimbursement_id IS NULL AND acceptance_status = ?", customerReturnID, enums.AcceptanceAccepted).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

func (r *repository) AttachItem(ctx context.Context, itemID, reimbursementID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.ReturnItem{}).Where("id = ?", itemID).Update("reimbursement_id", reimbursementID).Error
}

func (r *repository) SaveItemTaxes(ctx context.Context, item *models.ReturnItem) error {
	return r.db.WithContext(ctx).
		Model(&models.ReturnItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{
			"additional_tax_total": item.AdditionalTaxTotal,
			"included_tax_total":   item.IncludedTaxTotal,
		}).Error
}

func (r *repository) SetExchangeUnit(ctx context.Context, itemID, unitID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.ReturnItem{}).Where("id = ?", itemID).Update("exchange_inventory_unit_id", unitID).Error
}
