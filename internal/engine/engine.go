// Package engine wires the stock, order, return and reimbursement services
// into one graph shared by the binaries.
package engine

import (
	"fmt"

	"github.com/angelmondragon/orderflow/internal/ledger"
	"github.com/angelmondragon/orderflow/internal/orderlock"
	"github.com/angelmondragon/orderflow/internal/orders"
	"github.com/angelmondragon/orderflow/internal/refunds"
	"github.com/angelmondragon/orderflow/internal/reimbursements"
	"github.com/angelmondragon/orderflow/internal/returns"
	"github.com/angelmondragon/orderflow/internal/shipping"
	"github.com/angelmondragon/orderflow/internal/stock"
	"github.com/angelmondragon/orderflow/pkg/config"
	"github.com/angelmondragon/orderflow/pkg/db"
	"github.com/angelmondragon/orderflow/pkg/logger"
	"github.com/angelmondragon/orderflow/pkg/metrics"
	"github.com/angelmondragon/orderflow/pkg/outbox"
)

type Params struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	Locker  orderlock.Locker
	Metrics *metrics.EngineMetrics
}

// Engine exposes the wired services.
type Engine struct {
	Orders             orders.Service
	Authorizations     returns.AuthorizationService
	CustomerReturns    returns.CustomerReturnService
	Items              returns.ItemService
	Reimbursements     reimbursements.Service
	ReimbursementsRepo reimbursements.Repository
	Ledger             ledger.Service
	Outbox             *outbox.Repository
}

func New(params Params) (*Engine, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("order locker required")
	}
	cfg := params.Config
	logg := params.Logger
	gormDB := params.DB.DB()
	outboxRepo := outbox.NewRepository()
	events := outbox.NewService(outboxRepo, logg)

	calculators, err := BuildCalculators(cfg.Shipping, logg)
	if err != nil {
		return nil, err
	}

	stockRepo := stock.NewRepository(gormDB)
	coordinator, err := stock.NewCoordinator(stockRepo, calculators,
		stock.WithInventoryTracking(cfg.Returns.TrackInventoryLevels),
		stock.WithLogger(logg),
		stock.WithMetrics(params.Metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("build stock coordinator: %w", err)
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:           orders.NewRepository(gormDB),
		StockRepo:      stockRepo,
		Coordinator:    coordinator,
		Locker:         params.Locker,
		Tx:             params.DB,
		Outbox:         events,
		TrackInventory: cfg.Returns.TrackInventoryLevels,
		Logger:         logg,
		Metrics:        params.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("build orders service: %w", err)
	}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(gormDB))
	if err != nil {
		return nil, fmt.Errorf("build ledger service: %w", err)
	}
	refundSvc, err := refunds.NewService(refunds.ServiceParams{
		Repo:    refunds.NewRepository(gormDB),
		DB:      gormDB,
		Ledger:  ledgerSvc,
		Outbox:  events,
		Logger:  logg,
		Metrics: params.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("build refunds service: %w", err)
	}

	reimbursementRepo := reimbursements.NewRepository(gormDB)
	reimbursementSvc, err := reimbursements.NewService(reimbursements.ServiceParams{
		Repo:    reimbursementRepo,
		Refunds: refundSvc,
		Ledger:  ledgerSvc,
		Packer:  orderSvc,
		Locker:  params.Locker,
		Tx:      params.DB,
		Outbox:  events,
		Logger:  logg,
		Metrics: params.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("build reimbursements service: %w", err)
	}

	returnParams := returns.ServiceParams{
		Repo:               returns.NewRepository(gormDB),
		StockRepo:          stockRepo,
		Refunds:            refundSvc,
		Validator:          returns.NewDefaultValidator(cfg.Returns.ReturnWindow),
		Reimburser:         reimbursementSvc,
		Locker:             params.Locker,
		Tx:                 params.DB,
		Outbox:             events,
		ExpeditedExchanges: cfg.Returns.ExpeditedExchanges,
		AutoRefund:         cfg.Returns.AutoRefund,
		TrackInventory:     cfg.Returns.TrackInventoryLevels,
		Logger:             logg,
		Metrics:            params.Metrics,
	}
	authorizationSvc, err := returns.NewAuthorizationService(returnParams)
	if err != nil {
		return nil, fmt.Errorf("build authorization service: %w", err)
	}
	customerReturnSvc, err := returns.NewCustomerReturnService(returnParams)
	if err != nil {
		return nil, fmt.Errorf("build customer return service: %w", err)
	}
	itemSvc, err := returns.NewItemService(returnParams)
	if err != nil {
		return nil, fmt.Errorf("build return item service: %w", err)
	}

	return &Engine{
		Orders:             orderSvc,
		Authorizations:     authorizationSvc,
		CustomerReturns:    customerReturnSvc,
		Items:              itemSvc,
		Reimbursements:     reimbursementSvc,
		ReimbursementsRepo: reimbursementRepo,
		Ledger:             ledgerSvc,
		Outbox:             outboxRepo,
	}, nil
}

// BuildCalculators registers the remote rate calculator only when a rates URL
// is configured.
func BuildCalculators(cfg config.ShippingConfig, logg *logger.Logger) (*shipping.Registry, error) {
	if cfg.RemoteRatesURL == "" {
		return shipping.NewRegistry(nil), nil
	}
	remote, err := shipping.NewRemoteCalculator(cfg, shipping.WithLogger(logg))
	if err != nil {
		return nil, fmt.Errorf("build remote rate calculator: %w", err)
	}
	return shipping.NewRegistry(remote), nil
}
