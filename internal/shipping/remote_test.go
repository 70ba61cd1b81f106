package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow/internal/testdb"
	"github.com/angelmondragon/orderflow/pkg/config"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func remoteMethod() *models.ShippingMethod {
	return &models.ShippingMethod{Code: "ground", CalculatorKind: enums.CalculatorRemote}
}

func TestRemoteCalculatorQuotes(t *testing.T) {
	var captured remoteRequest
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"cost":"7.25"}`)),
			Header:     http.Header{},
		}, nil
	})

	calc, err := NewRemoteCalculator(config.ShippingConfig{RemoteRatesURL: "http://rates.test/quote"}, WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	cost, err := calc.Compute(context.Background(), remoteMethod(), Request{
		OrderID:   uuid.New(),
		Country:   "US",
		Currency:  enums.CurrencyUSD,
		UnitCount: 2,
		ItemTotal: testdb.D("20"),
	})
	require.NoError(t, err)
	assert.True(t, cost.Equal(testdb.D("7.25")))
	assert.Equal(t, "ground", captured.MethodCode)
	assert.Equal(t, 2, captured.Units)
	assert.Equal(t, "20.00", captured.ItemTotal)
}

func TestRemoteCalculatorNon200IsDependencyError(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusBadGateway,
			Body:       io.NopCloser(strings.NewReader("upstream down")),
			Header:     http.Header{},
		}, nil
	})
	calc, err := NewRemoteCalculator(config.ShippingConfig{RemoteRatesURL: "http://rates.test/quote"}, WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	_, err = calc.Compute(context.Background(), remoteMethod(), Request{})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
}

func TestRemoteCalculatorOpensBreaker(t *testing.T) {
	calls := 0
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		return nil, errors.New("connection refused")
	})
	calc, err := NewRemoteCalculator(config.ShippingConfig{
		RemoteRatesURL:          "http://rates.test/quote",
		BreakerFailureThreshold: 2,
		BreakerOpenTimeout:      time.Minute,
	}, WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := calc.Compute(context.Background(), remoteMethod(), Request{})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, calc.State())

	_, err = calc.Compute(context.Background(), remoteMethod(), Request{})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, 2, calls, "open breaker must short-circuit")
}

func TestNewRemoteCalculatorRequiresURL(t *testing.T) {
	_, err := NewRemoteCalculator(config.ShippingConfig{})
	assert.ErrorIs(t, err, errRatesURLRequired)
}
