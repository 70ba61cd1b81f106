package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow/internal/orderlock"
	"github.com/angelmondragon/orderflow/internal/testdb"
	"github.com/angelmondragon/orderflow/pkg/config"
)

func TestNewRequiresConfigDatabaseAndLocker(t *testing.T) {
	_, err := New(Params{})
	assert.Error(t, err)

	client := testdb.Open(t)
	_, err = New(Params{Config: &config.Config{}})
	assert.Error(t, err)
	_, err = New(Params{Config: &config.Config{}, DB: client})
	assert.Error(t, err)
}

func TestNewWiresEveryService(t *testing.T) {
	e, err := New(Params{
		Config: &config.Config{},
		DB:     testdb.Open(t),
		Locker: orderlock.NewMemoryLocker(nil),
	})
	require.NoError(t, err)
	assert.NotNil(t, e.Orders)
	assert.NotNil(t, e.Authorizations)
	assert.NotNil(t, e.CustomerReturns)
	assert.NotNil(t, e.Items)
	assert.NotNil(t, e.Reimbursements)
	assert.NotNil(t, e.ReimbursementsRepo)
	assert.NotNil(t, e.Outbox)
	assert.NotNil(t, e.Ledger)
}

func TestBuildCalculatorsRegistersRemoteOnlyWithURL(t *testing.T) {
	reg, err := BuildCalculators(config.ShippingConfig{}, nil)
	require.NoError(t, err)
	_, err = reg.For("remote")
	assert.Error(t, err)

	reg, err = BuildCalculators(config.ShippingConfig{RemoteRatesURL: "http://rates.internal/quote"}, nil)
	require.NoError(t, err)
	_, err = reg.For("remote")
	assert.NoError(t, err)
}
