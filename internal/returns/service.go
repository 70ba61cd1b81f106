package returns

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/internal/numbering"
	"github.com/angelmondragon/orderflow/internal/orderlock"
	"github.com/angelmondragon/orderflow/internal/refunds"
	"github.com/angelmondragon/orderflow/internal/stock"
	"github.com/angelmondragon/orderflow/pkg/db"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
	"github.com/angelmondragon/orderflow/pkg/metrics"
	"github.com/angelmondragon/orderflow/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ExchangeReimburser pays for accepted exchange items inside the caller's
// transaction. The caller already holds the order lock.
type ExchangeReimburser interface {
	ReimburseExchanges(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, items []*models.ReturnItem) error
}

// ExchangeHook runs against accepted exchange items before they are
// reimbursed ahead of reception.
type ExchangeHook func(ctx context.Context, tx *gorm.DB, items []*models.ReturnItem) error

// ServiceParams groups dependencies shared by the return services.
type ServiceParams struct {
	Repo               Repository
	StockRepo          stock.Repository
	Refunds            refunds.Service
	Validator          EligibilityValidator
	Reimburser         ExchangeReimburser
	ExchangeHooks      []ExchangeHook
	Numbers            *numbering.Generator
	Locker             orderlock.Locker
	Tx                 txRunner
	Outbox             outboxPublisher
	ExpeditedExchanges bool
	AutoRefund         bool
	TrackInventory     bool
	Logger             *logger.Logger
	Metrics            *metrics.EngineMetrics
}

type core struct {
	repo           Repository
	stockRepo      stock.Repository
	refunds        refunds.Service
	validator      EligibilityValidator
	reimburser     ExchangeReimburser
	exchangeHooks  []ExchangeHook
	numbers        *numbering.Generator
	locker         orderlock.Locker
	tx             txRunner
	outbox         outboxPublisher
	expedited      bool
	autoRefund     bool
	trackInventory bool
	logg           *logger.Logger
	metrics        *metrics.EngineMetrics
}

func newCore(params ServiceParams) (*core, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("returns repository required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("order locker required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	validator := params.Validator
	if validator == nil {
		validator = NewDefaultValidator(DefaultReturnWindow)
	}
	numbers := params.Numbers
	if numbers == nil {
		numbers = numbering.NewGenerator()
	}
	return &core{
		repo:           params.Repo,
		stockRepo:      params.StockRepo,
		refunds:        params.Refunds,
		validator:      validator,
		reimburser:     params.Reimburser,
		exchangeHooks:  params.ExchangeHooks,
		numbers:        numbers,
		locker:         params.Locker,
		tx:             params.Tx,
		outbox:         params.Outbox,
		expedited:      params.ExpeditedExchanges,
		autoRefund:     params.AutoRefund,
		trackInventory: params.TrackInventory,
		logg:           params.Logger,
		metrics:        params.Metrics,
	}, nil
}

// receive moves item to received, marks its unit returned and restocks it at
// locationID.
func (c *core) receive(ctx context.Context, tx *gorm.DB, item *models.ReturnItem, locationID uuid.UUID) error {
	if err := FireReception(item, EventReceive); err != nil {
		return err
	}
	repo := c.repo.WithTx(tx)
	if err := repo.SaveReception(ctx, item); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save reception status")
	}
	if err := repo.UpdateUnitState(ctx, item.InventoryUnitID, enums.InventoryUnitReturned); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark unit returned")
	}
	if item.InventoryUnit != nil {
		item.InventoryUnit.State = enums.InventoryUnitReturned
	}
	return c.restock(ctx, tx, item, locationID)
}

// restock adds one unit back to the location's stock item. Untracked variants
// and variants without a stock item at the location are skipped.
func (c *core) restock(ctx context.Context, tx *gorm.DB, item *models.ReturnItem, locationID uuid.UUID) error {
	if !c.trackInventory || c.stockRepo == nil || item.InventoryUnit == nil {
		return nil
	}
	unit := item.InventoryUnit
	if unit.Variant != nil && !unit.Variant.TrackInventory {
		return nil
	}
	stockRepo := c.stockRepo.WithTx(tx)
	stockItem, err := stockRepo.StockItem(ctx, locationID, unit.VariantID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load stock item")
	}
	if err := stockRepo.AdjustCountOnHand(ctx, stockItem.ID, 1); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restock returned unit")
	}
	return nil
}

// accept fires an acceptance event and persists the status with the errors
// collected along the way.
func (c *core) accept(ctx context.Context, tx *gorm.DB, item *models.ReturnItem, order *models.Order, event AcceptanceEvent) error {
	decision := Decision{Errors: item.AcceptanceStatusErrors}
	if event == EventAttemptAccept {
		decision = c.validator.Evaluate(ctx, item, order)
	}
	if err := FireAcceptance(item, event, decision); err != nil {
		return err
	}
	if err := c.repo.WithTx(tx).SaveAcceptance(ctx, item); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save acceptance status")
	}
	logCtx := c.logg.WithFields(c.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"return_item": item.ID.String(),
		"event":       string(event),
		"status":      string(item.AcceptanceStatus),
	})
	c.logg.Info(logCtx, "return item acceptance changed")
	return nil
}

func (c *core) loadOrder(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (c *core) loadItems(ctx context.Context, repo Repository, ids []uuid.UUID) ([]*models.ReturnItem, error) {
	rows, err := repo.FindReturnItems(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load return items")
	}
	if len(rows) != len(ids) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return item not found")
	}
	items := make([]*models.ReturnItem, len(rows))
	for i := range rows {
		items[i] = &rows[i]
	}
	return items, nil
}

// ItemService applies manual transitions to a single return item.
type ItemService interface {
	AttemptAccept(ctx context.Context, id uuid.UUID) (*models.ReturnItem, error)
	Accept(ctx context.Context, id uuid.UUID) (*models.ReturnItem, error)
	Reject(ctx context.Context, id uuid.UUID) (*models.ReturnItem, error)
	RequireManualIntervention(ctx context.Context, id uuid.UUID) (*models.ReturnItem, error)
	Give(ctx context.Context, id uuid.UUID) (*models.ReturnItem, error)
	Destroy(ctx context.Context, id uuid.UUID) error
}

const KeyAttachedToReimbursement = "cannot_destroy_once_reimbursed"

type itemService struct {
	*core
}

func NewItemService(params ServiceParams) (ItemService, error) {
	c, err := newCore(params)
	if err != nil {
		return nil, err
	}
	return &itemService{core: c}, nil
}

func (s *itemService) AttemptAccept(ctx context.Context, id uuid.UUID) (*models.ReturnItem, error) {
	return s.acceptance(ctx, id, EventAttemptAccept)
}

func (s *itemService) Accept(ctx context.Context, id uuid.UUID) (*models.ReturnItem, error) {
	return s.acceptance(ctx, id, EventAccept)
}

func (s *itemService) Reject(ctx context.Context, id uuid.UUID) (*models.ReturnItem, error) {
	return s.acceptance(ctx, id, EventReject)
}

func (s *itemService) RequireManualIntervention(ctx context.Context, id uuid.UUID) (*models.ReturnItem, error) {
	return s.acceptance(ctx, id, EventRequireManualIntervention)
}

// Give hands the unit back to the customer without receiving it.
func (s *itemService) Give(ctx context.Context, id uuid.UUID) (*models.ReturnItem, error) {
	return s.mutate(ctx, id, func(ctx context.Context, tx *gorm.DB, item *models.ReturnItem, _ *models.Order) error {
		if err := FireReception(item, EventGive); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).SaveReception(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save reception status")
		}
		return nil
	})
}

// Destroy deletes an item that is not yet attached to a reimbursement.
func (s *itemService) Destroy(ctx context.Context, id uuid.UUID) error {
	_, err := s.mutate(ctx, id, func(ctx context.Context, tx *gorm.DB, item *models.ReturnItem, _ *models.Order) error {
		if item.ReimbursementID != nil {
			return pkgerrors.Validation(pkgerrors.FieldError{
				Field:   "reimbursement",
				Key:     KeyAttachedToReimbursement,
				Message: "return item is already attached to a reimbursement",
			})
		}
		if err := s.repo.WithTx(tx).DeleteReturnItem(ctx, item.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete return item")
		}
		return nil
	})
	return err
}

func (s *itemService) acceptance(ctx context.Context, id uuid.UUID, event AcceptanceEvent) (*models.ReturnItem, error) {
	return s.mutate(ctx, id, func(ctx context.Context, tx *gorm.DB, item *models.ReturnItem, order *models.Order) error {
		return s.accept(ctx, tx, item, order, event)
	})
}

// mutate runs fn on a freshly loaded item under its order's lock and inside a
// transaction.
func (s *itemService) mutate(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx *gorm.DB, item *models.ReturnItem, order *models.Order) error) (*models.ReturnItem, error) {
	items, err := s.loadItems(ctx, s.repo, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if items[0].InventoryUnit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory unit not found")
	}
	orderID := items[0].InventoryUnit.OrderID

	var item *models.ReturnItem
	err = s.locker.WithLock(ctx, orderID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			items, err := s.loadItems(ctx, repo, []uuid.UUID{id})
			if err != nil {
				return err
			}
			item = items[0]
			order, err := s.loadOrder(ctx, repo, orderID)
			if err != nil {
				return err
			}
			return fn(ctx, tx, item, order)
		})
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}
