package main

import (
	"io"

	"github.com/angelmondragon/orderflow/internal/engine"
	"github.com/angelmondragon/orderflow/internal/ledger"
	"github.com/angelmondragon/orderflow/internal/orders"
	"github.com/angelmondragon/orderflow/internal/reimbursements"
	"github.com/angelmondragon/orderflow/internal/returns"
	"github.com/angelmondragon/orderflow/pkg/logger"
)

// app holds the engine services the CLI commands operate on.
type app struct {
	logg            *logger.Logger
	out             io.Writer
	orders          orders.Service
	authorizations  returns.AuthorizationService
	customerReturns returns.CustomerReturnService
	items           returns.ItemService
	reimbursements  reimbursements.Service
	ledger          ledger.Service
}

func newApp(params engine.Params, out io.Writer) (*app, error) {
	e, err := engine.New(params)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = io.Discard
	}
	return &app{
		logg:            params.Logger,
		out:             out,
		orders:          e.Orders,
		authorizations:  e.Authorizations,
		customerReturns: e.CustomerReturns,
		items:           e.Items,
		reimbursements:  e.Reimbursements,
		ledger:          e.Ledger,
	}, nil
}
