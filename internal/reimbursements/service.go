package reimbursements

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/internal/ledger"
	"github.com/angelmondragon/orderflow/internal/numbering"
	"github.com/angelmondragon/orderflow/internal/orderlock"
	"github.com/angelmondragon/orderflow/internal/refunds"
	"github.com/angelmondragon/orderflow/internal/returns"
	"github.com/angelmondragon/orderflow/internal/validation"
	"github.com/angelmondragon/orderflow/pkg/db"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
	"github.com/angelmondragon/orderflow/pkg/metrics"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/outbox/payloads"
)

const (
	KeyOrderMismatch     = "return_items_order_id_does_not_match"
	KeyAlreadyReimbursed = "return_item_already_reimbursed"
	KeyNoAcceptedItems   = "no_accepted_return_items"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Hook runs with the reimbursement after it settles.
type Hook func(ctx context.Context, r *models.Reimbursement) error

// Service creates, performs and simulates reimbursements.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Reimbursement, error)
	BuildFromCustomerReturn(ctx context.Context, customerReturnID uuid.UUID) (*models.Reimbursement, error)
	Perform(ctx context.Context, id uuid.UUID) (*models.Reimbursement, error)
	PerformByNumber(ctx context.Context, number string) (*models.Reimbursement, error)
	Simulate(ctx context.Context, id uuid.UUID) (*Simulation, error)
	SimulateByNumber(ctx context.Context, number string) (*Simulation, error)
	ReimburseExchanges(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, items []*models.ReturnItem) error
}

type CreateInput struct {
	OrderID          uuid.UUID   `json:"order_id" validate:"required"`
	CustomerReturnID *uuid.UUID  `json:"customer_return_id"`
	ReturnItemIDs    []uuid.UUID `json:"return_item_ids" validate:"min=1,unique"`
}

// Simulation is the dry-run outcome of a reimbursement.
type Simulation struct {
	Reimbursement *models.Reimbursement `json:"-"`
	Total         decimal.Decimal       `json:"total"`
	Paid          decimal.Decimal       `json:"paid"`
	Payouts       []Payout              `json:"payouts"`
}

// ServiceParams groups dependencies for the reimbursements service. Unset
// strategies fall back to the proportional tax calculator, the refunds and
// exchanges paid sources and the default performer.
type ServiceParams struct {
	Repo         Repository
	Refunds      refunds.Service
	Ledger       ledger.Service
	Packer       ExchangePacker
	Tax          TaxCalculator
	SimulatorTax TaxCalculator
	Performer    Performer
	PaidSources  []PaidSource
	SuccessHooks []Hook
	FailureHooks []Hook
	Numbers      *numbering.Generator
	Locker       orderlock.Locker
	Tx           txRunner
	Outbox       outboxPublisher
	Logger       *logger.Logger
	Metrics      *metrics.EngineMetrics
}

type service struct {
	repo         Repository
	ledger       ledger.Service
	tax          TaxCalculator
	simulatorTax TaxCalculator
	performer    Performer
	sources      []PaidSource
	successHooks []Hook
	failureHooks []Hook
	numbers      *numbering.Generator
	locker       orderlock.Locker
	tx           txRunner
	outbox       outboxPublisher
	logg         *logger.Logger
	metrics      *metrics.EngineMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("reimbursements repository required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("refunds service required")
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

	tax := params.Tax
	if tax == nil {
		tax = ProportionalTaxCalculator{}
	}
	simulatorTax := params.SimulatorTax
	if simulatorTax == nil {
		simulatorTax = tax
	}
	sources := params.PaidSources
	if len(sources) == 0 {
		sources = []PaidSource{RefundsPaid{Refunds: params.Refunds}, ExchangesPaid{}}
	}
	performer := params.Performer
	if performer == nil {
		performer = NewDefaultPerformer(params.Repo, params.Refunds, params.Packer, sources)
	}
	numbers := params.Numbers
	if numbers == nil {
		numbers = numbering.NewGenerator()
	}

	return &service{
		repo:         params.Repo,
		ledger:       params.Ledger,
		tax:          tax,
		simulatorTax: simulatorTax,
		performer:    performer,
		sources:      sources,
		successHooks: params.SuccessHooks,
		failureHooks: params.FailureHooks,
		numbers:      numbers,
		locker:       params.Locker,
		tx:           params.Tx,
		outbox:       params.Outbox,
		logg:         params.Logger,
		metrics:      params.Metrics,
	}, nil
}

// CalculatedTotal sums the items' totals, rounded down to cents so fractional
// cents never add up to an overpayment.
func CalculatedTotal(items []*models.ReturnItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Total())
	}
	return total.RoundDown(2)
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Reimbursement, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	var r *models.Reimbursement
	err := s.locker.WithLock(ctx, input.OrderID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			r, err = s.create(ctx, tx, input)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// BuildFromCustomerReturn reimburses every accepted item of the customer
// return that is not yet reimbursed.
func (s *service) BuildFromCustomerReturn(ctx context.Context, customerReturnID uuid.UUID) (*models.Reimbursement, error) {
	items, err := s.repo.UnreimbursedItemsForCustomerReturn(ctx, customerReturnID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load customer return items")
	}
	if len(items) == 0 || items[0].InventoryUnit == nil {
		return nil, pkgerrors.Validation(pkgerrors.FieldError{
			Field:   "return_items",
			Key:     KeyNoAcceptedItems,
			Message: "customer return has no accepted items awaiting reimbursement",
		})
	}
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return s.Create(ctx, CreateInput{
		OrderID:          items[0].InventoryUnit.OrderID,
		CustomerReturnID: &customerReturnID,
		ReturnItemIDs:    ids,
	})
}

func (s *service) create(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.Reimbursement, error) {
	repo := s.repo.WithTx(tx)
	rows, err := repo.FindReturnItems(ctx, input.ReturnItemIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load return items")
	}
	if len(rows) != len(input.ReturnItemIDs) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return item not found")
	}

	r := &models.Reimbursement{
		ID:               uuid.New(),
		OrderID:          input.OrderID,
		CustomerReturnID: input.CustomerReturnID,
		Status:           enums.ReimbursementPending,
	}
	items := make([]*models.ReturnItem, len(rows))
	var errs []error
	for i := range rows {
		item := &rows[i]
		items[i] = item
		if item.InventoryUnit == nil || item.InventoryUnit.OrderID != input.OrderID {
			errs = append(errs, pkgerrors.Validation(pkgerrors.FieldError{
				Field:   "return_items",
				Key:     KeyOrderMismatch,
				Message: fmt.Sprintf("return item %s does not belong to the reimbursement's order", item.ID),
			}))
			continue
		}
		if item.ReimbursementID != nil {
			errs = append(errs, pkgerrors.Validation(pkgerrors.FieldError{
				Field:   "return_items",
				Key:     KeyAlreadyReimbursed,
				Message: fmt.Sprintf("return item %s is already reimbursed", item.ID),
			}))
			continue
		}
		if err := returns.AttachToReimbursement(item, r.ID); err != nil {
			errs = append(errs, err)
		}
	}
	if err := validation.Combine(errs...); err != nil {
		return nil, err
	}

	number, err := s.numbers.Generate(ctx, tx, numbering.Reimbursement, &models.Reimbursement{})
	if err != nil {
		return nil, err
	}
	r.Number = number
	r.Total = CalculatedTotal(items)
	if err := repo.Create(ctx, r); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "reimbursement number taken")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create reimbursement")
	}
	for _, item := range items {
		if err := repo.AttachItem(ctx, item.ID, r.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "attach return item")
		}
	}
	r.ReturnItems = rows

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, r.OrderID.String()), map[string]any{
		"reimbursement": r.Number,
		"items":         len(items),
	})
	s.logg.Info(logCtx, "reimbursement created")
	return r, nil
}

func (s *service) Perform(ctx context.Context, id uuid.UUID) (*models.Reimbursement, error) {
	return s.perform(ctx, byID(ctx, id))
}

func (s *service) PerformByNumber(ctx context.Context, number string) (*models.Reimbursement, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reimbursement number required")
	}
	return s.perform(ctx, byNumber(ctx, number))
}

// perform settles the reimbursement in one transaction. An unpaid remainder
// is reported only after the errored status and any refunds are committed.
func (s *service) perform(ctx context.Context, find finder) (*models.Reimbursement, error) {
	r, err := s.load(s.repo, find)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { s.metrics.ObserveDuration("reimburse", time.Since(start)) }()

	var unpaid decimal.Decimal
	err = s.locker.WithLock(ctx, r.OrderID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			r, err = s.load(s.repo.WithTx(tx), find)
			if err != nil {
				return err
			}
			if err := checkSettleable(r); err != nil {
				return err
			}
			unpaid, err = s.settle(ctx, tx, r)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	if err := s.runHooks(ctx, r); err != nil {
		return r, err
	}
	if !unpaid.IsZero() {
		return r, &IncompleteReimbursementError{Number: r.Number, Unpaid: unpaid}
	}
	return r, nil
}

// ReimburseExchanges creates and performs a reimbursement for accepted
// exchange items inside the caller's transaction. The caller holds the order
// lock and rolls back on any error, including an unpaid remainder.
func (s *service) ReimburseExchanges(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, items []*models.ReturnItem) error {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	input := CreateInput{OrderID: orderID, ReturnItemIDs: ids}
	if err := validation.Struct(input); err != nil {
		return err
	}
	created, err := s.create(ctx, tx, input)
	if err != nil {
		return err
	}
	r, err := s.load(s.repo.WithTx(tx), byID(ctx, created.ID))
	if err != nil {
		return err
	}
	unpaid, err := s.settle(ctx, tx, r)
	if err != nil {
		return err
	}
	if err := s.runHooks(ctx, r); err != nil {
		return err
	}
	if !unpaid.IsZero() {
		return &IncompleteReimbursementError{Number: r.Number, Unpaid: unpaid}
	}
	return nil
}

// settle applies tax, recomputes the total, pays out and records the outcome.
// It returns the unpaid remainder.
func (s *service) settle(ctx context.Context, tx *gorm.DB, r *models.Reimbursement) (decimal.Decimal, error) {
	repo := s.repo.WithTx(tx)
	items := itemRefs(r)
	if err := s.tax.Apply(ctx, items); err != nil {
		return decimal.Zero, err
	}
	for _, item := range items {
		if err := repo.SaveItemTaxes(ctx, item); err != nil {
			return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save return item taxes")
		}
	}
	r.Total = CalculatedTotal(items)
	if err := repo.UpdateTotal(ctx, r.ID, r.Total); err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update reimbursement total")
	}

	if err := s.performer.Perform(ctx, tx, r); err != nil {
		return decimal.Zero, err
	}
	paid, err := paidTotal(ctx, tx, s.sources, r)
	if err != nil {
		return decimal.Zero, err
	}
	unpaid := r.Total.Sub(paid)

	status := enums.ReimbursementReimbursed
	if !unpaid.IsZero() {
		status = enums.ReimbursementErrored
	}
	if err := transitionStatus(r, status); err != nil {
		return decimal.Zero, err
	}
	if err := repo.UpdateStatus(ctx, r.ID, status); err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update reimbursement status")
	}
	s.metrics.IncReimbursement(string(status))

	if err := s.record(ctx, tx, r, unpaid); err != nil {
		return decimal.Zero, err
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, r.OrderID.String()), map[string]any{
		"reimbursement": r.Number,
		"total":         r.Total.StringFixed(2),
		"unpaid":        unpaid.StringFixed(2),
	})
	if status == enums.ReimbursementErrored {
		s.logg.Warn(logCtx, "reimbursement incomplete")
	} else {
		s.logg.Info(logCtx, "reimbursement settled")
	}

	eventType := enums.EventReimbursementReimbursed
	if status == enums.ReimbursementErrored {
		eventType = enums.EventReimbursementErrored
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateReimbursement,
		AggregateID:   r.ID,
		Data: payloads.ReimbursementSettledEvent{
			OrderID: r.OrderID,
			Number:  r.Number,
			Status:  status,
			Total:   r.Total,
			Unpaid:  unpaid,
		},
	}); err != nil {
		return decimal.Zero, err
	}
	return unpaid, nil
}

func (s *service) record(ctx context.Context, tx *gorm.DB, r *models.Reimbursement, unpaid decimal.Decimal) error {
	if s.ledger == nil {
		return nil
	}
	input := ledger.RecordLedgerEventInput{
		OrderID:     r.OrderID,
		ReferenceID: r.ID,
		Type:        enums.LedgerEventReimbursementSettled,
		Amount:      r.Total,
	}
	if r.Status == enums.ReimbursementErrored {
		input.Type = enums.LedgerEventReimbursementErrored
		input.Amount = unpaid.Abs()
		meta, err := json.Marshal(map[string]string{"total": r.Total.StringFixed(2)})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode ledger metadata")
		}
		input.Metadata = meta
	}
	if _, err := s.ledger.WithTx(tx).RecordEvent(ctx, input); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record reimbursement ledger event")
	}
	return nil
}

func (s *service) runHooks(ctx context.Context, r *models.Reimbursement) error {
	hooks := s.successHooks
	if r.Status != enums.ReimbursementReimbursed {
		hooks = s.failureHooks
	}
	for _, hook := range hooks {
		if err := hook(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) Simulate(ctx context.Context, id uuid.UUID) (*Simulation, error) {
	return s.simulate(ctx, byID(ctx, id))
}

func (s *service) SimulateByNumber(ctx context.Context, number string) (*Simulation, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reimbursement number required")
	}
	return s.simulate(ctx, byNumber(ctx, number))
}

// simulate prices the reimbursement with the simulator tax calculator and asks
// the performer for its plan. Only the recomputed total is written.
func (s *service) simulate(ctx context.Context, find finder) (*Simulation, error) {
	r, err := s.load(s.repo, find)
	if err != nil {
		return nil, err
	}
	var sim *Simulation
	err = s.locker.WithLock(ctx, r.OrderID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			r, err := s.load(s.repo.WithTx(tx), find)
			if err != nil {
				return err
			}
			items := itemRefs(r)
			if err := s.simulatorTax.Apply(ctx, items); err != nil {
				return err
			}
			r.Total = CalculatedTotal(items)
			if err := s.repo.WithTx(tx).UpdateTotal(ctx, r.ID, r.Total); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update reimbursement total")
			}
			payouts, err := s.performer.Simulate(ctx, tx, r)
			if err != nil {
				return err
			}
			paid, err := paidTotal(ctx, tx, s.sources, r)
			if err != nil {
				return err
			}
			sim = &Simulation{Reimbursement: r, Total: r.Total, Paid: paid, Payouts: payouts}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sim, nil
}

type finder func(repo Repository) (*models.Reimbursement, error)

func byID(ctx context.Context, id uuid.UUID) finder {
	return func(repo Repository) (*models.Reimbursement, error) { return repo.Find(ctx, id) }
}

func byNumber(ctx context.Context, number string) finder {
	return func(repo Repository) (*models.Reimbursement, error) { return repo.FindByNumber(ctx, number) }
}

func (s *service) load(repo Repository, find finder) (*models.Reimbursement, error) {
	r, err := find(repo)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reimbursement not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load reimbursement")
	}
	return r, nil
}

func itemRefs(r *models.Reimbursement) []*models.ReturnItem {
	items := make([]*models.ReturnItem, len(r.ReturnItems))
	for i := range r.ReturnItems {
		items[i] = &r.ReturnItems[i]
	}
	return items
}
