package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow/internal/testdb"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
)

func TestFetchSkipsPublishedAndExhaustedEvents(t *testing.T) {
	client := testdb.Open(t)
	repo := NewRepository()
	conn := client.DB()

	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, repo.Insert(conn, models.OutboxEvent{
			ID:            ids[i],
			EventType:     enums.EventRefundIssued,
			AggregateType: enums.AggregateRefund,
			AggregateID:   uuid.New(),
			Payload:       []byte(`{}`),
		}))
	}
	require.NoError(t, repo.MarkPublishedTx(conn, ids[0]))
	require.NoError(t, repo.MarkTerminalTx(conn, ids[1], errors.New("bad payload"), 3))
	require.NoError(t, repo.MarkFailedTx(conn, ids[2], errors.New("timeout")))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ids[2], rows[0].ID)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Equal(t, "timeout", *rows[0].LastError)

	_, err = repo.FetchUnpublishedForPublish(nil, 10, 3)
	assert.Error(t, err)
}

func TestDeletePublishedBeforeKeepsPendingAndRecentRows(t *testing.T) {
	client := testdb.Open(t)
	repo := NewRepository()
	conn := client.DB()

	old := time.Now().UTC().Add(-48 * time.Hour)
	rows := []models.OutboxEvent{
		{ID: uuid.New(), PublishedAt: &old},
		{ID: uuid.New(), PublishedAt: nil},
		{ID: uuid.New()},
	}
	for i := range rows {
		rows[i].EventType = enums.EventShipmentShipped
		rows[i].AggregateType = enums.AggregateShipment
		rows[i].AggregateID = uuid.New()
		rows[i].Payload = []byte(`{}`)
		require.NoError(t, repo.Insert(conn, rows[i]))
	}
	require.NoError(t, repo.MarkPublishedTx(conn, rows[2].ID))

	deleted, err := repo.DeletePublishedBefore(context.Background(), conn, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	assert.Equal(t, int64(2), remaining)

	_, err = repo.DeletePublishedBefore(context.Background(), nil, time.Now())
	assert.Error(t, err)
}
