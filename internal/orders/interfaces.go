package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
)

// Repository defines persistence operations for orders, their units and
// shipments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindShipmentByNumber(ctx context.Context, number string) (*models.Shipment, error)
	CreateShipment(ctx context.Context, shipment *models.Shipment) error
	AssignUnit(ctx context.Context, unitID, shipmentID uuid.UUID, state enums.InventoryUnitState) error
	UpdateUnitsState(ctx context.Context, unitIDs []uuid.UUID, state enums.InventoryUnitState) error
	MarkPreferencesFulfilled(ctx context.Context, orderID uuid.UUID) error
	MarkShipped(ctx context.Context, shipmentID uuid.UUID, at time.Time) error
	UpdateOrderState(ctx context.Context, orderID uuid.UUID, state enums.OrderState) error
}
