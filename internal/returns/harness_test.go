package returns

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow/internal/ledger"
	"github.com/angelmondragon/orderflow/internal/orderlock"
	"github.com/angelmondragon/orderflow/internal/refunds"
	"github.com/angelmondragon/orderflow/internal/stock"
	"github.com/angelmondragon/orderflow/internal/testdb"
	"github.com/angelmondragon/orderflow/pkg/db"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/outbox"
)

type harness struct {
	client *db.Client
	fx     *testdb.Fixture
	locker *orderlock.MemoryLocker
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

	return &harness{
		client: client,
		fx:     testdb.NewFixture(t, client),
		locker: locker,
		params: ServiceParams{
			Repo:           NewRepository(client.DB()),
			StockRepo:      stock.NewRepository(client.DB()),
			Refunds:        refundSvc,
			Locker:         locker,
			Tx:             client,
			Outbox:         outbox.NewService(nil, nil),
			TrackInventory: true,
		},
	}
}

func (h *harness) authorizations(t *testing.T, mutate ...func(*ServiceParams)) AuthorizationService {
	t.Helper()
	params := h.params
	for _, fn := range mutate {
		fn(&params)
	}
	svc, err := NewAuthorizationService(params)
	require.NoError(t, err)
	return svc
}

func (h *harness) customerReturns(t *testing.T, mutate ...func(*ServiceParams)) CustomerReturnService {
	t.Helper()
	params := h.params
	for _, fn := range mutate {
		fn(&params)
	}
	svc, err := NewCustomerReturnService(params)
	require.NoError(t, err)
	return svc
}

func (h *harness) items(t *testing.T) ItemService {
	t.Helper()
	svc, err := NewItemService(h.params)
	require.NoError(t, err)
	return svc
}

// shippedOrder seeds a completed order of quantity units of variant shipped
// from loc.
func (h *harness) shippedOrder(variant *models.Variant, quantity int, loc *models.StockLocation) *models.Order {
	order := h.fx.Order(testdb.Line{Variant: variant, Quantity: quantity})
	h.fx.Ship(order, loc)
	return order
}
