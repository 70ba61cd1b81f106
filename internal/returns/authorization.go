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
	"github.com/angelmondragon/orderflow/internal/validation"
	"github.com/angelmondragon/orderflow/pkg/db"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/outbox/payloads"
)

const (
	KeyNoShippedUnits       = "has_no_shipped_units"
	KeyAwaitingExchange     = "return_items_cannot_be_created_for_inventory_units_that_are_already_awaiting_exchange"
	KeyUnitNotInOrder       = "inventory_unit_does_not_belong_to_order"
	KeyDuplicateUnit        = "inventory_unit_already_in_authorization"
	KeyExpeditedReimbursing = "expedited_exchange_failed"
)

// AuthorizationService authorizes and cancels returns of shipped units.
type AuthorizationService interface {
	Create(ctx context.Context, input CreateAuthorizationInput) (*models.ReturnAuthorization, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.ReturnAuthorization, error)
	CancelByNumber(ctx context.Context, number string) (*models.ReturnAuthorization, error)
}

type CreateAuthorizationInput struct {
	OrderID         uuid.UUID                `json:"order_id" validate:"required"`
	StockLocationID uuid.UUID                `json:"stock_location_id" validate:"required"`
	ReasonID        *uuid.UUID               `json:"reason_id"`
	Memo            string                   `json:"memo" validate:"max=1024"`
	Items           []AuthorizationItemInput `json:"items" validate:"min=1,dive"`
}

// AuthorizationItemInput names one unit to return. PreTaxAmount defaults to
// the unit's share of its line item.
type AuthorizationItemInput struct {
	InventoryUnitID   uuid.UUID        `json:"inventory_unit_id" validate:"required"`
	ExchangeVariantID *uuid.UUID       `json:"exchange_variant_id"`
	PreTaxAmount      *decimal.Decimal `json:"pre_tax_amount"`
}

type authorizationService struct {
	*core
}

func NewAuthorizationService(params ServiceParams) (AuthorizationService, error) {
	c, err := newCore(params)
	if err != nil {
		return nil, err
	}
	if c.expedited && c.reimburser == nil {
		return nil, fmt.Errorf("exchange reimburser required for expedited exchanges")
	}
	return &authorizationService{core: c}, nil
}

func (s *authorizationService) Create(ctx context.Context, input CreateAuthorizationInput) (*models.ReturnAuthorization, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { s.metrics.ObserveDuration("authorize_return", time.Since(start)) }()

	var ra *models.ReturnAuthorization
	err := s.locker.WithLock(ctx, input.OrderID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			order, err := s.loadOrder(ctx, repo, input.OrderID)
			if err != nil {
				return err
			}
			items, err := s.buildItems(ctx, repo, order, input.Items)
			if err != nil {
				return err
			}

			number, err := s.numbers.Generate(ctx, tx, numbering.ReturnAuthorization, &models.ReturnAuthorization{})
			if err != nil {
				return err
			}
			ra = &models.ReturnAuthorization{
				Number:          number,
				OrderID:         order.ID,
				StockLocationID: input.StockLocationID,
				ReasonID:        input.ReasonID,
				Memo:            strings.TrimSpace(input.Memo),
				State:           enums.ReturnAuthorizationAuthorized,
			}
			if err := repo.CreateAuthorization(ctx, ra); err != nil {
				if db.IsUniqueViolation(err, "") {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "return authorization number taken")
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create return authorization")
			}
			for _, item := range items {
				item.ReturnAuthorizationID = &ra.ID
				if err := repo.CreateReturnItem(ctx, item); err != nil {
					if db.IsUniqueViolation(err, "") {
						return pkgerrors.Validation(pkgerrors.FieldError{Field: "return_items", Key: KeyDuplicateUnit, Message: "unit is already in this authorization"})
					}
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create return item")
				}
				ra.ReturnItems = append(ra.ReturnItems, *item)
			}

			if s.expedited {
				if err := s.expedite(ctx, tx, order, items); err != nil {
					return err
				}
				for i, item := range items {
					ra.ReturnItems[i] = *item
				}
			}

			logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
				"return_authorization": ra.Number,
				"items":                len(items),
			})
			s.logg.Info(logCtx, "return authorized")
			return s.emit(ctx, tx, ra, enums.EventReturnAuthorized)
		})
	})
	if err != nil {
		return nil, err
	}
	return ra, nil
}

// buildItems checks the requested units against the order and prices each
// return item.
func (s *authorizationService) buildItems(ctx context.Context, repo Repository, order *models.Order, inputs []AuthorizationItemInput) ([]*models.ReturnItem, error) {
	units := make(map[uuid.UUID]*models.InventoryUnit, len(order.InventoryUnits))
	shipped := false
	for i := range order.InventoryUnits {
		unit := &order.InventoryUnits[i]
		units[unit.ID] = unit
		if unit.State.IsShippedOrLater() {
			shipped = true
		}
	}
	lineItems := make(map[uuid.UUID]*models.LineItem, len(order.LineItems))
	for i := range order.LineItems {
		lineItems[order.LineItems[i].ID] = &order.LineItems[i]
	}

	var errs []error
	if !shipped {
		errs = append(errs, pkgerrors.Validation(pkgerrors.FieldError{Field: "order", Key: KeyNoShippedUnits, Message: "has no shipped units"}))
	}

	seen := make(map[uuid.UUID]bool, len(inputs))
	unitIDs := make([]uuid.UUID, 0, len(inputs))
	items := make([]*models.ReturnItem, 0, len(inputs))
	for _, in := range inputs {
		unit, ok := units[in.InventoryUnitID]
		if !ok {
			errs = append(errs, pkgerrors.Validation(pkgerrors.FieldError{
				Field:   "return_items",
				Key:     KeyUnitNotInOrder,
				Message: fmt.Sprintf("inventory unit %s does not belong to order %s", in.InventoryUnitID, order.Number),
			}))
			continue
		}
		if seen[unit.ID] {
			errs = append(errs, pkgerrors.Validation(pkgerrors.FieldError{
				Field:   "return_items",
				Key:     KeyDuplicateUnit,
				Message: fmt.Sprintf("inventory unit %s is listed twice", unit.ID),
			}))
			continue
		}
		seen[unit.ID] = true
		unitIDs = append(unitIDs, unit.ID)

		item := &models.ReturnItem{
			InventoryUnitID:   unit.ID,
			InventoryUnit:     unit,
			ExchangeVariantID: in.ExchangeVariantID,
		}
		if li, ok := lineItems[unit.LineItemID]; ok {
			unit.LineItem = li
			item.PreTaxAmount = unitShare(li)
		}
		if in.PreTaxAmount != nil {
			item.PreTaxAmount = *in.PreTaxAmount
		}
		items = append(items, item)
	}

	awaiting, err := repo.ExchangeItemsForUnits(ctx, unitIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load pending exchanges")
	}
	if len(awaiting) > 0 {
		errs = append(errs, pkgerrors.Validation(pkgerrors.FieldError{
			Field:   "base",
			Key:     KeyAwaitingExchange,
			Message: "return items cannot be created for inventory units that are already awaiting exchange",
		}))
	}
	if err := validation.Combine(errs...); err != nil {
		return nil, err
	}
	return items, nil
}

// unitShare is one unit's part of the line item's pre-tax amount.
func unitShare(li *models.LineItem) decimal.Decimal {
	if li.Quantity <= 0 {
		return li.Price
	}
	return li.PreTaxAmount().Div(decimal.NewFromInt(int64(li.Quantity)))
}

// expedite accepts exchange items and pays for them before the original
// units come back. Any failure is reported as a validation error so the whole
// authorization rolls back.
func (s *authorizationService) expedite(ctx context.Context, tx *gorm.DB, order *models.Order, items []*models.ReturnItem) error {
	var accepted []*models.ReturnItem
	for _, item := range items {
		if !item.ExchangeRequested() {
			continue
		}
		if err := s.accept(ctx, tx, item, order, EventAttemptAccept); err != nil {
			return err
		}
		if item.AcceptanceStatus == enums.AcceptanceAccepted {
			accepted = append(accepted, item)
		}
	}
	if len(accepted) == 0 {
		return nil
	}
	for _, hook := range s.exchangeHooks {
		if err := hook(ctx, tx, accepted); err != nil {
			return expeditedFailure(err)
		}
	}
	if err := s.reimburser.ReimburseExchanges(ctx, tx, order.ID, accepted); err != nil {
		return expeditedFailure(err)
	}
	return nil
}

func expeditedFailure(err error) error {
	fields := pkgerrors.FieldErrors(err)
	if len(fields) == 0 {
		fields = []pkgerrors.FieldError{{Field: "base", Key: KeyExpeditedReimbursing, Message: err.Error()}}
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "expedited exchange could not be reimbursed").WithDetails(fields)
}

func (s *authorizationService) Cancel(ctx context.Context, id uuid.UUID) (*models.ReturnAuthorization, error) {
	ra, err := s.loadAuthorization(ctx, s.repo, func(repo Repository) (*models.ReturnAuthorization, error) {
		return repo.FindAuthorization(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return s.cancel(ctx, ra.OrderID, func(repo Repository) (*models.ReturnAuthorization, error) {
		return repo.FindAuthorization(ctx, id)
	})
}

func (s *authorizationService) CancelByNumber(ctx context.Context, number string) (*models.ReturnAuthorization, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return authorization number required")
	}
	find := func(repo Repository) (*models.ReturnAuthorization, error) {
		return repo.FindAuthorizationByNumber(ctx, number)
	}
	ra, err := s.loadAuthorization(ctx, s.repo, find)
	if err != nil {
		return nil, err
	}
	return s.cancel(ctx, ra.OrderID, find)
}

// cancel moves the authorization to canceled and cancels every item still
// awaiting reception.
func (s *authorizationService) cancel(ctx context.Context, orderID uuid.UUID, find func(Repository) (*models.ReturnAuthorization, error)) (*models.ReturnAuthorization, error) {
	var ra *models.ReturnAuthorization
	err := s.locker.WithLock(ctx, orderID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			var err error
			ra, err = s.loadAuthorization(ctx, repo, find)
			if err != nil {
				return err
			}
			if ra.State != enums.ReturnAuthorizationAuthorized {
				return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("return authorization %s is %s", ra.Number, ra.State)).
					WithDetails(map[string]any{"event": "cancel", "state": string(ra.State)})
			}
			for i := range ra.ReturnItems {
				item := &ra.ReturnItems[i]
				if item.ReceptionStatus != enums.ReceptionAwaiting {
					continue
				}
				if err := FireReception(item, EventCancel); err != nil {
					return err
				}
				if err := repo.SaveReception(ctx, item); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel return item")
				}
			}
			if err := repo.UpdateAuthorizationState(ctx, ra.ID, enums.ReturnAuthorizationCanceled); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel return authorization")
			}
			ra.State = enums.ReturnAuthorizationCanceled

			s.logg.Info(s.logg.WithField(s.logg.WithOrderID(ctx, ra.OrderID.String()), "return_authorization", ra.Number), "return authorization canceled")
			return s.emit(ctx, tx, ra, enums.EventReturnAuthorizationCanceled)
		})
	})
	if err != nil {
		return nil, err
	}
	return ra, nil
}

func (s *authorizationService) loadAuthorization(ctx context.Context, repo Repository, find func(Repository) (*models.ReturnAuthorization, error)) (*models.ReturnAuthorization, error) {
	ra, err := find(repo)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return authorization not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load return authorization")
	}
	return ra, nil
}

func (s *authorizationService) emit(ctx context.Context, tx *gorm.DB, ra *models.ReturnAuthorization, eventType enums.OutboxEventType) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateReturnAuthorization,
		AggregateID:   ra.ID,
		Data: payloads.ReturnAuthorizationEvent{
			OrderID:   ra.OrderID,
			Number:    ra.Number,
			State:     ra.State,
			ItemCount: len(ra.ReturnItems),
		},
	})
}
