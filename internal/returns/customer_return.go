package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/internal/numbering"
	"github.com/angelmondragon/orderflow/internal/refunds"
	"github.com/angelmondragon/orderflow/internal/validation"
	"github.com/angelmondragon/orderflow/pkg/db"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/outbox/payloads"
)

const (
	KeyMultipleOrders    = "return_items_cannot_be_associated_with_multiple_orders"
	KeyAmountDueNegative = "amount_due_less_than_zero"
	KeyAmountDuePositive = "amount_due_greater_than_zero"
)

// CustomerReturnService records units physically received back and refunds
// what is owed for them.
type CustomerReturnService interface {
	Create(ctx context.Context, input CreateCustomerReturnInput) (*models.CustomerReturn, error)
	Refund(ctx context.Context, id uuid.UUID) (bool, error)
	RefundByNumber(ctx context.Context, number string) (bool, error)
	FindByNumber(ctx context.Context, number string) (*models.CustomerReturn, error)
}

type CreateCustomerReturnInput struct {
	StockLocationID uuid.UUID   `json:"stock_location_id" validate:"required"`
	ReturnItemIDs   []uuid.UUID `json:"return_item_ids" validate:"min=1,unique"`
}

type customerReturnService struct {
	*core
}

func NewCustomerReturnService(params ServiceParams) (CustomerReturnService, error) {
	c, err := newCore(params)
	if err != nil {
		return nil, err
	}
	if c.refunds == nil {
		return nil, fmt.Errorf("refunds service required")
	}
	return &customerReturnService{core: c}, nil
}

// Create receives every item at the stock location, attempts to accept the
// pending ones and, once no unit of the order is left outstanding, marks the
// order returned.
func (s *customerReturnService) Create(ctx context.Context, input CreateCustomerReturnInput) (*models.CustomerReturn, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { s.metrics.ObserveDuration("receive_return", time.Since(start)) }()

	items, err := s.loadItems(ctx, s.repo, input.ReturnItemIDs)
	if err != nil {
		return nil, err
	}
	orderID, err := singleOrder(items)
	if err != nil {
		return nil, err
	}

	var cr *models.CustomerReturn
	err = s.locker.WithLock(ctx, orderID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			items, err := s.loadItems(ctx, repo, input.ReturnItemIDs)
			if err != nil {
				return err
			}
			if _, err := singleOrder(items); err != nil {
				return err
			}
			order, err := s.loadOrder(ctx, repo, orderID)
			if err != nil {
				return err
			}

			number, err := s.numbers.Generate(ctx, tx, numbering.CustomerReturn, &models.CustomerReturn{})
			if err != nil {
				return err
			}
			cr = &models.CustomerReturn{Number: number, StockLocationID: input.StockLocationID}
			if err := repo.CreateCustomerReturn(ctx, cr); err != nil {
				if db.IsUniqueViolation(err, "") {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "customer return number taken")
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create customer return")
			}
			if err := repo.AttachToCustomerReturn(ctx, cr.ID, input.ReturnItemIDs); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "attach return items")
			}

			for _, item := range items {
				item.CustomerReturnID = &cr.ID
				if err := s.receive(ctx, tx, item, cr.StockLocationID); err != nil {
					return err
				}
			}
			for _, item := range items {
				if item.AcceptanceStatus != enums.AcceptancePending {
					continue
				}
				if err := s.accept(ctx, tx, item, order, EventAttemptAccept); err != nil {
					return err
				}
			}
			for _, item := range items {
				cr.ReturnItems = append(cr.ReturnItems, *item)
			}

			if err := s.markReturned(ctx, repo, order); err != nil {
				return err
			}

			logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), map[string]any{
				"customer_return": cr.Number,
				"items":           len(items),
			})
			s.logg.Info(logCtx, "customer return received")
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventCustomerReturnReceived,
				AggregateType: enums.AggregateCustomerReturn,
				AggregateID:   cr.ID,
				Data: payloads.CustomerReturnReceivedEvent{
					OrderID:       orderID,
					Number:        cr.Number,
					ReturnItemIDs: input.ReturnItemIDs,
					PreTaxTotal:   cr.PreTaxTotal(),
				},
			})
		})
	})
	if err != nil {
		return nil, err
	}

	if s.autoRefund {
		if _, err := s.Refund(ctx, cr.ID); err != nil {
			return cr, err
		}
	}
	return cr, nil
}

func singleOrder(items []*models.ReturnItem) (uuid.UUID, error) {
	var orderID uuid.UUID
	for i, item := range items {
		if item.InventoryUnit == nil {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory unit not found")
		}
		if i == 0 {
			orderID = item.InventoryUnit.OrderID
			continue
		}
		if item.InventoryUnit.OrderID != orderID {
			return uuid.Nil, pkgerrors.Validation(pkgerrors.FieldError{
				Field:   "return_items",
				Key:     KeyMultipleOrders,
				Message: "cannot be associated with multiple orders",
			})
		}
	}
	return orderID, nil
}

func (s *customerReturnService) markReturned(ctx context.Context, repo Repository, order *models.Order) error {
	outstanding, err := repo.CountUnitsNotInState(ctx, order.ID, enums.InventoryUnitReturned)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count outstanding units")
	}
	if outstanding > 0 || order.State == enums.OrderStateReturned {
		return nil
	}
	if err := repo.UpdateOrderState(ctx, order.ID, enums.OrderStateReturned); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order returned")
	}
	order.State = enums.OrderStateReturned
	return nil
}

// Refund pays the customer return's pre-tax total minus what the order has
// already been refunded. It reports whether new refunds were issued. Refunds
// issued before capacity ran out are kept even though an error is returned.
func (s *customerReturnService) Refund(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.refund(ctx, func(repo Repository) (*models.CustomerReturn, error) {
		return repo.FindCustomerReturn(ctx, id)
	})
}

func (s *customerReturnService) RefundByNumber(ctx context.Context, number string) (bool, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "customer return number required")
	}
	return s.refund(ctx, func(repo Repository) (*models.CustomerReturn, error) {
		return repo.FindCustomerReturnByNumber(ctx, number)
	})
}

func (s *customerReturnService) FindByNumber(ctx context.Context, number string) (*models.CustomerReturn, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer return number required")
	}
	return s.loadCustomerReturn(s.repo, func(repo Repository) (*models.CustomerReturn, error) {
		return repo.FindCustomerReturnByNumber(ctx, number)
	})
}

func (s *customerReturnService) refund(ctx context.Context, find func(Repository) (*models.CustomerReturn, error)) (bool, error) {
	cr, err := s.loadCustomerReturn(s.repo, find)
	if err != nil {
		return false, err
	}
	if len(cr.ReturnItems) == 0 || cr.ReturnItems[0].InventoryUnit == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "customer return has no items")
	}
	orderID := cr.ReturnItems[0].InventoryUnit.OrderID

	var (
		issued   bool
		shortage error
	)
	err = s.locker.WithLock(ctx, orderID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			cr, err := s.loadCustomerReturn(repo, find)
			if err != nil {
				return err
			}
			owed := cr.PreTaxTotal().RoundDown(2)
			already, err := s.refunds.TotalForOrder(ctx, tx, orderID)
			if err != nil {
				return err
			}

			switch already.Cmp(owed) {
			case 1:
				return pkgerrors.Validation(pkgerrors.FieldError{
					Field:   "amount_due",
					Key:     KeyAmountDueNegative,
					Message: fmt.Sprintf("amount due is less than zero (owed %s, refunded %s)", owed.StringFixed(2), already.StringFixed(2)),
				})
			case 0:
				return s.markRefunded(ctx, repo, cr)
			}

			due := owed.Sub(already)
			created, left, err := s.refunds.Distribute(ctx, tx, refunds.DistributeInput{
				OrderID:          orderID,
				Amount:           due,
				CustomerReturnID: &cr.ID,
			})
			if err != nil {
				return err
			}
			issued = len(created) > 0

			logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), map[string]any{
				"customer_return": cr.Number,
				"refunds":         len(created),
				"unpaid":          left.StringFixed(2),
			})
			if left.GreaterThan(decimal.Zero) {
				s.logg.Warn(logCtx, "customer return partially refunded")
				shortage = pkgerrors.Validation(pkgerrors.FieldError{
					Field:   "amount_due",
					Key:     KeyAmountDuePositive,
					Message: fmt.Sprintf("amount due is greater than zero (%s unpaid)", left.StringFixed(2)),
				})
				return nil
			}
			s.logg.Info(logCtx, "customer return refunded")
			return s.markRefunded(ctx, repo, cr)
		})
	})
	if err != nil {
		return false, err
	}
	if shortage != nil {
		return false, shortage
	}
	return issued, nil
}

func (s *customerReturnService) markRefunded(ctx context.Context, repo Repository, cr *models.CustomerReturn) error {
	now := time.Now().UTC()
	if err := repo.MarkRefunded(ctx, cr.ID, now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark customer return refunded")
	}
	cr.RefundedAt = &now
	return nil
}

func (s *customerReturnService) loadCustomerReturn(repo Repository, find func(Repository) (*models.CustomerReturn, error)) (*models.CustomerReturn, error) {
	cr, err := find(repo)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer return not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load customer return")
	}
	return cr, nil
}
