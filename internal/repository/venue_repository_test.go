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

var venueRowColumns = []string{"id", "name", "address_line1", "address_line2", "city", "postcode", "capacity", "contact_email", "contact_phone", "created_by", "created_at", "updated_at"}

func TestVenueRepositoryListScopesOwnerAndCity(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewVenueRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM venues WHERE 1=1 AND created_by = $1 AND LOWER(city) = LOWER($2) AND (LOWER(COALESCE(name, '')) LIKE $3")).
		WithArgs("biz-1", "Leeds", "%hall%").
		WillReturnRows(sqlmock.NewRows(venueRowColumns).
			AddRow("venue-1", "School Hall", "1 High St", nil, "Leeds", "LS1 1AA", 60, nil, nil, "biz-1", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM venues")).
		WithArgs("biz-1", "Leeds", "%hall%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.VenueFilter{
		ListFilter: models.ListFilter{OwnerID: "biz-1", Search: " Hall "},
		City:       "Leeds",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "LS1 1AA", items[0].Postcode)
	assert.Nil(t, items[0].AddressLine2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVenueRepositoryCountReferences(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewVenueRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT (SELECT COUNT(*) FROM courses WHERE venue_id = $1) + (SELECT COUNT(*) FROM registers WHERE venue_id = $1)")).
		WithArgs("venue-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountReferences(context.Background(), "venue-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVenueRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewVenueRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO venues")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	venue := &models.Venue{Name: "School Hall", City: "Leeds", Postcode: "LS1 1AA", Capacity: 60, CreatedBy: "biz-1"}
	require.NoError(t, repo.Create(context.Background(), venue))
	assert.NotEmpty(t, venue.ID)
	assert.False(t, venue.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
