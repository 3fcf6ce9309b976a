package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookon/bookon-api/internal/models"
)

func TestBroadcastRepositoryListByChannel(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBroadcastRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM broadcasts WHERE 1=1 AND $1 = ANY(channels) ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("sms").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status"}).AddRow("b1", "Snow day", "draft"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM broadcasts WHERE 1=1 AND $1 = ANY(channels)")).
		WithArgs("sms").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.BroadcastFilter{Channel: "sms"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Snow day", items[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBroadcastRepositoryListDue(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBroadcastRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1 AND scheduled_for <= $2 ORDER BY scheduled_for ASC LIMIT 5")).
		WithArgs("scheduled", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "scheduled_for"}).AddRow("b1", "scheduled", now.Add(-time.Minute)))

	due, err := repo.ListDue(context.Background(), now, 5)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "b1", due[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBroadcastRepositorySaveProgress(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBroadcastRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE broadcasts SET sent_count = sent_count + $2, failed_count = failed_count + $3, delivered_offset = $4")).
		WithArgs("b1", 48, 2, 50, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SaveProgress(context.Background(), models.DeliveryProgress{BroadcastID: "b1", Offset: 50, Sent: 48, Failed: 2}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBroadcastRepositorySentStampsSentAt(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBroadcastRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE broadcasts SET status = $1, updated_at = $2, sent_at = $2 WHERE id = $3 AND status = $4")).
		WithArgs("sent", sqlmock.AnyArg(), "b1", "sending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "b1", "sending", "sent"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
