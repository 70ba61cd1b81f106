package refunds

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow/pkg/db/models"
)

// Gateway returns money to the payment's source and reports the gateway
// transaction id. Errors are surfaced to callers unchanged.
type Gateway interface {
	Refund(ctx context.Context, payment *models.Payment, amount decimal.Decimal) (string, error)
}

type GatewayFunc func(ctx context.Context, payment *models.Payment, amount decimal.Decimal) (string, error)

func (f GatewayFunc) Refund(ctx context.Context, payment *models.Payment, amount decimal.Decimal) (string, error) {
	return f(ctx, payment, amount)
}

// NoopGateway accepts every refund without contacting a processor.
type NoopGateway struct{}

func (NoopGateway) Refund(context.Context, *models.Payment, decimal.Decimal) (string, error) {
	return "noop-" + uuid.NewString(), nil
}
