package dbtypes

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDArrayStoresSortedSet(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	value, err := UUIDArray{a, b, a}.Value()
	require.NoError(t, err)
	assert.Equal(t, "{"+b.String()+","+a.String()+"}", value)

	var decoded UUIDArray
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, UUIDArray{b, a}, decoded)
	assert.True(t, decoded.Contains(a))
	assert.False(t, decoded.Contains(uuid.New()))
}

func TestUUIDArrayEmptyAllowsEverything(t *testing.T) {
	var decoded UUIDArray
	require.NoError(t, decoded.Scan([]byte("{}")))
	assert.Empty(t, decoded)
	require.NoError(t, decoded.Scan(nil))
	assert.Empty(t, decoded)
	assert.True(t, decoded.Allows(uuid.New()))

	restricted := UUIDArray{uuid.New()}
	assert.False(t, restricted.Allows(uuid.New()))

	assert.Error(t, decoded.Scan(`{"not-a-uuid"}`))
	assert.Error(t, decoded.Scan(42))
}
