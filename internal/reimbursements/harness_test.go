package reimbursements

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow/internal/ledger"
	"github.com/angelmondragon/orderflow/internal/orderlock"
	"github.com/angelmondragon/orderflow/internal/orders"
	"github.com/angelmondragon/orderflow/internal/refunds"
	"github.com/angelmondragon/orderflow/internal/shipping"
	"github.com/angelmondragon/orderflow/internal/stock"
	"github.com/angelmondragon/orderflow/internal/testdb"
	"github.com/angelmondragon/orderflow/pkg/db"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/angelmondragon/orderflow/pkg/outbox"
)

type harness struct {
	client *db.Client
	fx     *testdb.Fixture
	params ServiceParams
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := testdb.Open(t)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(client.DB()))
	require.NoError(t, err)
	refundSvc, err := refunds.NewService(refunds.ServiceParams{
		Repo:   refunds.NewRepository(client.DB()),
		DB:     client.DB(),
		Ledger: ledgerSvc,
		Outbox: outbox.NewService(nil, nil),
	})
	require.NoError(t, err)

	locker := orderlock.NewMemoryLocker(nil)
	stockRepo := stock.NewRepository(client.DB())
	coordinator, err := stock.NewCoordinator(stockRepo, shipping.NewRegistry(nil))
	require.NoError(t, err)
	packer, err := orders.NewService(orders.ServiceParams{
		Repo:           orders.NewRepository(client.DB()),
		StockRepo:      stockRepo,
		Coordinator:    coordinator,
		Locker:         locker,
		Tx:             client,
		Outbox:         outbox.NewService(nil, nil),
		TrackInventory: true,
	})
	require.NoError(t, err)

	return &harness{
		client: client,
		fx:     testdb.NewFixture(t, client),
		params: ServiceParams{
			Repo:    NewRepository(client.DB()),
			Refunds: refundSvc,
			Ledger:  ledgerSvc,
			Packer:  packer,
			Locker:  locker,
			Tx:      client,
			Outbox:  outbox.NewService(nil, nil),
		},
	}
}

func (h *harness) service(t *testing.T, mutate ...func(*ServiceParams)) Service {
	t.Helper()
	params := h.params
	for _, fn := range mutate {
		fn(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return svc
}

// acceptedOrder seeds a shipped order with one line of quantity units and an
// accepted return item per unit priced at preTax.
func (h *harness) acceptedOrder(line testdb.Line, preTax string) (*models.Order, []*models.ReturnItem) {
	loc := h.fx.Location("returns-"+uuid.NewString()[:8], true)
	order := h.fx.Order(line)
	h.fx.Ship(order, loc)
	ra := h.fx.Authorization(order, loc)
	items := make([]*models.ReturnItem, 0, len(order.InventoryUnits))
	for _, unit := range order.InventoryUnits {
		items = append(items, h.fx.ReturnItem(ra, unit, preTax, enums.AcceptanceAccepted))
	}
	return order, items
}

func itemIDs(items []*models.ReturnItem) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func (h *harness) create(t *testing.T, svc Service, order *models.Order, items []*models.ReturnItem) *models.Reimbursement {
	t.Helper()
	r, err := svc.Create(context.Background(), CreateInput{OrderID: order.ID, ReturnItemIDs: itemIDs(items)})
	require.NoError(t, err)
	return r
}

func (h *harness) refundsFor(t *testing.T, r *models.Reimbursement) []models.Refund {
	t.Helper()
	var out []models.Refund
	require.NoError(t, h.fx.DB.Where("reimbursement_id = ?", r.ID).Order("created_at ASC").Find(&out).Error)
	return out
}
