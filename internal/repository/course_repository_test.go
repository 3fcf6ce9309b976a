package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookon/bookon-api/internal/models"
)

func TestCourseRepositoryListMultiSelect(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses c LEFT JOIN venues v ON v.id = c.venue_id WHERE 1=1 AND c.type = ANY($1) AND c.years && $2 AND c.venue_id = $3")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "venue-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "type", "venue_id", "venue_name", "start_date", "end_date", "capacity", "price", "status", "created_by", "created_at", "updated_at"}).
			AddRow("c1", "Summer Camp", "holiday_club", "venue-1", "Oak Hall", now, now, 30, 25.5, "published", "biz-1", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses c")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.CourseFilter{
		Types:   []string{"holiday_club", "activity"},
		Years:   []string{"Year 3"},
		VenueID: "venue-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].VenueName)
	assert.Equal(t, "Oak Hall", *items[0].VenueName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryPublishStampsPublishedAt(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET status = $1, updated_at = $2, published_at = $2 WHERE id = $3 AND status = $4")).
		WithArgs("published", sqlmock.AnyArg(), "c1", "draft").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "c1", "draft", "published"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM courses WHERE id = $1")).
		WithArgs("nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "nope"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
