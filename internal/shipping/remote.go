package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/angelmondragon/orderflow/pkg/config"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
)

const (
	defaultRemoteTimeout        = 5 * time.Second
	responseBodyReadLimit int64 = 1024
	breakerName                 = "shipping-rates"
)

var errRatesURLRequired = errors.New("shipping rates url is required")

// RemoteCalculator asks an external rating service for a quote. The service
// owns carrier logic; this client owns timeout and circuit breaking.
type RemoteCalculator struct {
	httpClient *http.Client
	url        string
	breaker    *gobreaker.CircuitBreaker
	logg       *logger.Logger
}

type RemoteOption func(*RemoteCalculator)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(c *RemoteCalculator) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithLogger(logg *logger.Logger) RemoteOption {
	return func(c *RemoteCalculator) {
		c.logg = logg
	}
}

func NewRemoteCalculator(cfg config.ShippingConfig, opts ...RemoteOption) (*RemoteCalculator, error) {
	url := strings.TrimSpace(cfg.RemoteRatesURL)
	if url == "" {
		return nil, errRatesURLRequired
	}
	timeout := cfg.RemoteRatesTimeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}

	calc := &RemoteCalculator{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(calc)
		}
	}

	threshold := cfg.BreakerFailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	calc.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			ctx := calc.logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			calc.logg.Warn(ctx, "circuit breaker state changed")
		},
	})
	return calc, nil
}

type remoteRequest struct {
	MethodCode      string `json:"method_code"`
	OrderID         string `json:"order_id"`
	StockLocationID string `json:"stock_location_id"`
	Country         string `json:"country"`
	Currency        string `json:"currency"`
	Units           int    `json:"units"`
	ItemTotal       string `json:"item_total"`
}

type remoteResponse struct {
	Cost decimal.Decimal `json:"cost"`
}

func (c *RemoteCalculator) Compute(ctx context.Context, method *models.ShippingMethod, req Request) (decimal.Decimal, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.quote(ctx, method, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "shipping rates unavailable")
	}
	if err != nil {
		return decimal.Zero, err
	}
	return result.(decimal.Decimal), nil
}

// State exposes the breaker state for health reporting.
func (c *RemoteCalculator) State() gobreaker.State {
	return c.breaker.State()
}

func (c *RemoteCalculator) quote(ctx context.Context, method *models.ShippingMethod, req Request) (decimal.Decimal, error) {
	payload, err := json.Marshal(remoteRequest{
		MethodCode:      method.Code,
		OrderID:         req.OrderID.String(),
		StockLocationID: req.StockLocationID.String(),
		Country:         req.Country,
		Currency:        req.Currency.String(),
		Units:           req.UnitCount,
		ItemTotal:       req.ItemTotal.StringFixed(2),
	})
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal rate request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build rate request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute rate request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "rate request failed")
	}

	var body remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode rate response")
	}
	if body.Cost.IsNegative() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeDependency, "rate service returned a negative cost")
	}
	return body.Cost, nil
}
