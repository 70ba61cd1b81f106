package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow/internal/reimbursements"
	"github.com/angelmondragon/orderflow/internal/returns"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

var errUsage = errors.New("usage")

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) (any, error)
}

var commands = map[string]command{
	"allocate": {
		usage: "allocate -order <number>",
		run:   runAllocate,
	},
	"ship": {
		usage: "ship -shipment <number>",
		run:   runShip,
	},
	"authorize": {
		usage: "authorize -order <number> -location <stock location id> -units <unit id,...> [-memo <text>]",
		run:   runAuthorize,
	},
	"cancel-ra": {
		usage: "cancel-ra -number <RA number>",
		run:   runCancelAuthorization,
	},
	"receive": {
		usage: "receive -location <stock location id> -items <return item id,...>",
		run:   runReceive,
	},
	"attempt-accept": {
		usage: "attempt-accept -item <return item id>",
		run:   itemCommand(func(s returns.ItemService) itemAction { return s.AttemptAccept }),
	},
	"accept": {
		usage: "accept -item <return item id>",
		run:   itemCommand(func(s returns.ItemService) itemAction { return s.Accept }),
	},
	"reject": {
		usage: "reject -item <return item id>",
		run:   itemCommand(func(s returns.ItemService) itemAction { return s.Reject }),
	},
	"manual-review": {
		usage: "manual-review -item <return item id>",
		run:   itemCommand(func(s returns.ItemService) itemAction { return s.RequireManualIntervention }),
	},
	"give": {
		usage: "give -item <return item id>",
		run:   itemCommand(func(s returns.ItemService) itemAction { return s.Give }),
	},
	"destroy-item": {
		usage: "destroy-item -item <return item id>",
		run:   runDestroyItem,
	},
	"build-reimbursement": {
		usage: "build-reimbursement -customer-return <CR number>",
		run:   runBuildReimbursement,
	},
	"refund": {
		usage: "refund -customer-return <CR number>",
		run:   runRefund,
	},
	"reimburse": {
		usage: "reimburse -number <RI number>",
		run:   runReimburse,
	},
	"simulate": {
		usage: "simulate -number <RI number>",
		run:   runSimulate,
	},
	"ledger": {
		usage: "ledger -order <number>",
		run:   runLedger,
	},
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.printUsage()
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		a.printUsage()
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	ctx = a.logg.WithField(ctx, "command", args[0])
	result, err := cmd.run(ctx, a, args[1:])
	if err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(a.out, "usage: orderflow", cmd.usage)
		}
		return err
	}
	return writeJSON(a.out, result)
}

func (a *app) printUsage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(a.out, "usage: orderflow <command> [flags]")
	for _, name := range names {
		fmt.Fprintln(a.out, "  "+commands[name].usage)
	}
}

// stringFlag parses args for a single required string flag.
func stringFlag(name string, args []string) (string, error) {
	values, err := parseFlags(args, []string{name}, nil)
	if err != nil {
		return "", err
	}
	return values[name], nil
}

// parseFlags parses args for string flags. Every required flag must be set to
// a non-blank value; optional ones default to "".
func parseFlags(args []string, required, optional []string) (map[string]string, error) {
	fs := flag.NewFlagSet("orderflow", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	raw := make(map[string]*string, len(required)+len(optional))
	for _, name := range append(append([]string(nil), required...), optional...) {
		raw[name] = fs.String(name, "", "")
	}
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected argument %q", errUsage, fs.Arg(0))
	}

	values := make(map[string]string, len(raw))
	for name, value := range raw {
		values[name] = strings.TrimSpace(*value)
	}
	for _, name := range required {
		if values[name] == "" {
			return nil, fmt.Errorf("%w: -%s is required", errUsage, name)
		}
	}
	return values, nil
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Validation(pkgerrors.FieldError{Field: field, Key: "invalid_id", Message: fmt.Sprintf("is not a valid id: %q", raw)})
	}
	return id, nil
}

// parseIDs splits a comma separated id list.
func parseIDs(field, raw string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := parseID(field, part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type shipmentView struct {
	Number          string          `json:"number"`
	State           string          `json:"state"`
	StockLocationID uuid.UUID       `json:"stock_location_id"`
	Units           int             `json:"units"`
	Cost            decimal.Decimal `json:"cost"`
}

func viewShipment(s *models.Shipment) shipmentView {
	return shipmentView{
		Number:          s.Number,
		State:           string(s.State),
		StockLocationID: s.StockLocationID,
		Units:           len(s.InventoryUnits),
		Cost:            s.Cost,
	}
}

func runAllocate(ctx context.Context, a *app, args []string) (any, error) {
	number, err := stringFlag("order", args)
	if err != nil {
		return nil, err
	}
	shipments, err := a.orders.Allocate(a.logg.WithField(ctx, "order_number", number), number)
	if err != nil {
		return nil, err
	}
	views := make([]shipmentView, 0, len(shipments))
	for _, s := range shipments {
		views = append(views, viewShipment(s))
	}
	return views, nil
}

func runShip(ctx context.Context, a *app, args []string) (any, error) {
	number, err := stringFlag("shipment", args)
	if err != nil {
		return nil, err
	}
	shipment, err := a.orders.ShipShipment(ctx, number)
	if err != nil {
		return nil, err
	}
	return viewShipment(shipment), nil
}

func runCancelAuthorization(ctx context.Context, a *app, args []string) (any, error) {
	number, err := stringFlag("number", args)
	if err != nil {
		return nil, err
	}
	ra, err := a.authorizations.CancelByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return map[string]any{"number": ra.Number, "state": ra.State}, nil
}

func runAuthorize(ctx context.Context, a *app, args []string) (any, error) {
	values, err := parseFlags(args, []string{"order", "location", "units"}, []string{"memo"})
	if err != nil {
		return nil, err
	}
	locationID, err := parseID("location", values["location"])
	if err != nil {
		return nil, err
	}
	unitIDs, err := parseIDs("units", values["units"])
	if err != nil {
		return nil, err
	}
	order, err := a.orders.FindByNumber(ctx, values["order"])
	if err != nil {
		return nil, err
	}

	input := returns.CreateAuthorizationInput{
		OrderID:         order.ID,
		StockLocationID: locationID,
		Memo:            values["memo"],
	}
	for _, id := range unitIDs {
		input.Items = append(input.Items, returns.AuthorizationItemInput{InventoryUnitID: id})
	}
	ra, err := a.authorizations.Create(a.logg.WithField(ctx, "order_number", order.Number), input)
	if err != nil {
		return nil, err
	}
	items := make([]uuid.UUID, 0, len(ra.ReturnItems))
	for _, item := range ra.ReturnItems {
		items = append(items, item.ID)
	}
	return map[string]any{"number": ra.Number, "state": ra.State, "return_items": items}, nil
}

func runReceive(ctx context.Context, a *app, args []string) (any, error) {
	values, err := parseFlags(args, []string{"location", "items"}, nil)
	if err != nil {
		return nil, err
	}
	locationID, err := parseID("location", values["location"])
	if err != nil {
		return nil, err
	}
	itemIDs, err := parseIDs("items", values["items"])
	if err != nil {
		return nil, err
	}
	cr, err := a.customerReturns.Create(ctx, returns.CreateCustomerReturnInput{
		StockLocationID: locationID,
		ReturnItemIDs:   itemIDs,
	})
	if err != nil {
		return nil, err
	}
	items := make([]returnItemView, 0, len(cr.ReturnItems))
	for i := range cr.ReturnItems {
		items = append(items, viewReturnItem(&cr.ReturnItems[i]))
	}
	return map[string]any{"number": cr.Number, "return_items": items}, nil
}

type itemAction func(ctx context.Context, id uuid.UUID) (*models.ReturnItem, error)

type returnItemView struct {
	ID               uuid.UUID `json:"id"`
	AcceptanceStatus string    `json:"acceptance_status"`
	ReceptionStatus  string    `json:"reception_status"`
}

func viewReturnItem(item *models.ReturnItem) returnItemView {
	return returnItemView{
		ID:               item.ID,
		AcceptanceStatus: string(item.AcceptanceStatus),
		ReceptionStatus:  string(item.ReceptionStatus),
	}
}

// itemCommand runs one return item transition picked from the item service.
func itemCommand(pick func(returns.ItemService) itemAction) func(context.Context, *app, []string) (any, error) {
	return func(ctx context.Context, a *app, args []string) (any, error) {
		raw, err := stringFlag("item", args)
		if err != nil {
			return nil, err
		}
		id, err := parseID("item", raw)
		if err != nil {
			return nil, err
		}
		item, err := pick(a.items)(ctx, id)
		if err != nil {
			return nil, err
		}
		return viewReturnItem(item), nil
	}
}

func runDestroyItem(ctx context.Context, a *app, args []string) (any, error) {
	raw, err := stringFlag("item", args)
	if err != nil {
		return nil, err
	}
	id, err := parseID("item", raw)
	if err != nil {
		return nil, err
	}
	if err := a.items.Destroy(ctx, id); err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "destroyed": true}, nil
}

func runBuildReimbursement(ctx context.Context, a *app, args []string) (any, error) {
	number, err := stringFlag("customer-return", args)
	if err != nil {
		return nil, err
	}
	cr, err := a.customerReturns.FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	r, err := a.reimbursements.BuildFromCustomerReturn(ctx, cr.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"number": r.Number, "status": r.Status, "total": r.Total}, nil
}

func runRefund(ctx context.Context, a *app, args []string) (any, error) {
	number, err := stringFlag("customer-return", args)
	if err != nil {
		return nil, err
	}
	fully, err := a.customerReturns.RefundByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return map[string]any{"customer_return": number, "fully_reimbursed": fully}, nil
}

func runReimburse(ctx context.Context, a *app, args []string) (any, error) {
	number, err := stringFlag("number", args)
	if err != nil {
		return nil, err
	}
	r, err := a.reimbursements.PerformByNumber(ctx, number)
	if err != nil {
		var incomplete *reimbursements.IncompleteReimbursementError
		if errors.As(err, &incomplete) {
			a.logg.Warn(a.logg.WithField(ctx, "unpaid", incomplete.Unpaid.StringFixed(2)), "reimbursement left unpaid balance")
		}
		return nil, err
	}
	return map[string]any{"number": r.Number, "status": r.Status, "total": r.Total}, nil
}

func runSimulate(ctx context.Context, a *app, args []string) (any, error) {
	number, err := stringFlag("number", args)
	if err != nil {
		return nil, err
	}
	return a.reimbursements.SimulateByNumber(ctx, number)
}

func runLedger(ctx context.Context, a *app, args []string) (any, error) {
	number, err := stringFlag("order", args)
	if err != nil {
		return nil, err
	}
	order, err := a.orders.FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return a.ledger.Statement(ctx, order.ID)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
