package review

import (
	"database/sql"
	"os"
	"testing"

	"datacleanse/models"
	"datacleanse/pkg/lifecycle"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DB-backed tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
func testDB(t *testing.T) *gorm.DB {
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		t.Fatal("DB_DSN not set")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&models.User{}, &models.Dataset{}, &models.Record{}))
	return gdb
}

// seeds a processed dataset with n unreviewed records
func seedDataset(t *testing.T, gdb *gorm.DB, owner *models.User, n int) *models.Dataset {
	ds := models.Dataset{
		DatasetID: uuid.NewString(),
		UserID:    owner.ID,
		Filename:  "a.csv",
		Size:      1,
		StoreRef:  "ref",
		Status:    models.StatusProcessed,
	}
	require.NoError(t, gdb.Create(&ds).Error)
	for i := 0; i < n; i++ {
		rec := models.Record{
			DatasetID: ds.DatasetID,
			RowIndex:  i,
			Data:      datatypes.JSONMap{"name": "x"},
			Changes:   datatypes.JSONMap{},
		}
		require.NoError(t, gdb.Create(&rec).Error)
	}
	return &ds
}

func seedUser(t *testing.T, gdb *gorm.DB) *models.User {
	u := models.User{Username: "u-" + uuid.NewString(), HashedPassword: []byte("x")}
	require.NoError(t, gdb.Create(&u).Error)
	return &u
}

func TestProgressMath(t *testing.T) {
	gdb := testDB(t)
	c := NewCoordinator(gdb)
	u := seedUser(t, gdb)
	ds := seedDataset(t, gdb, u, 5)

	p, err := c.Progress(ds.DatasetID, u)
	require.NoError(t, err)
	assert.Equal(t, Progress{Total: 5, Reviewed: 0, Percent: 0}, *p)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.SubmitDecision(ds.DatasetID, u, i, true, ""))
	}
	p, err = c.Progress(ds.DatasetID, u)
	require.NoError(t, err)
	assert.Equal(t, Progress{Total: 5, Reviewed: 3, Percent: 60}, *p)

	done, err := c.AllReviewed(ds.DatasetID)
	require.NoError(t, err)
	assert.False(t, done)

	for i := 3; i < 5; i++ {
		require.NoError(t, c.SubmitDecision(ds.DatasetID, u, i, false, "needs work"))
	}
	p, err = c.Progress(ds.DatasetID, u)
	require.NoError(t, err)
	assert.Equal(t, Progress{Total: 5, Reviewed: 5, Percent: 100}, *p)

	done, err = c.AllReviewed(ds.DatasetID)
	require.NoError(t, err)
	assert.True(t, done)

	// full coverage advanced the dataset to reviewing
	var cur models.Dataset
	require.NoError(t, gdb.Where("dataset_id = ?", ds.DatasetID).First(&cur).Error)
	assert.Equal(t, models.StatusReviewing, cur.Status)
}

func TestProgressEmptyDataset(t *testing.T) {
	gdb := testDB(t)
	c := NewCoordinator(gdb)
	u := seedUser(t, gdb)
	ds := seedDataset(t, gdb, u, 0)

	p, err := c.Progress(ds.DatasetID, u)
	require.NoError(t, err)
	assert.Equal(t, Progress{Total: 0, Reviewed: 0, Percent: 0}, *p)

	// zero records never satisfy the completion gate
	done, err := c.AllReviewed(ds.DatasetID)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestSubmitDecisionIdempotent(t *testing.T) {
	gdb := testDB(t)
	c := NewCoordinator(gdb)
	u := seedUser(t, gdb)
	ds := seedDataset(t, gdb, u, 2)

	require.NoError(t, c.SubmitDecision(ds.DatasetID, u, 0, true, "fine"))
	// resubmission overwrites the decision instead of erroring
	require.NoError(t, c.SubmitDecision(ds.DatasetID, u, 0, false, "second thoughts"))

	var rec models.Record
	require.NoError(t, gdb.Where("dataset_id = ? AND row_index = ?", ds.DatasetID, 0).First(&rec).Error)
	assert.True(t, rec.Reviewed)
	require.NotNil(t, rec.Approved)
	assert.False(t, *rec.Approved)
	assert.Equal(t, "second thoughts", rec.Comments)
	assert.NotNil(t, rec.ReviewedAt)

	p, err := c.Progress(ds.DatasetID, u)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Reviewed)
}

func TestSubmitDecisionUnknownRecord(t *testing.T) {
	gdb := testDB(t)
	c := NewCoordinator(gdb)
	u := seedUser(t, gdb)
	ds := seedDataset(t, gdb, u, 1)

	assert.ErrorIs(t, c.SubmitDecision(ds.DatasetID, u, 7, true, ""), lifecycle.ErrNotFound)
	assert.ErrorIs(t, c.SubmitDecision("no-such-id", u, 0, true, ""), lifecycle.ErrNotFound)
}

// deadDB returns a gorm handle over a lazy pool pointing at a dead port, so
// every query fails with a connection error. No live database is required.
func deadDB(t *testing.T) *gorm.DB {
	sqlDB, err := sql.Open("postgres", "host=127.0.0.1 port=1 user=x dbname=x sslmode=disable connect_timeout=1")
	require.NoError(t, err)
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)
	return gdb
}

func TestInfraFailureIsUnavailableNotNotFound(t *testing.T) {
	c := NewCoordinator(deadDB(t))
	u := &models.User{ID: 1}

	// a DB outage must surface as retryable, never as a 404
	_, err := c.Progress("some-id", u)
	assert.ErrorIs(t, err, lifecycle.ErrUnavailable)
	assert.NotErrorIs(t, err, lifecycle.ErrNotFound)

	err = c.SubmitDecision("some-id", u, 0, true, "")
	assert.ErrorIs(t, err, lifecycle.ErrUnavailable)
	assert.NotErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestSubmitDecisionAccess(t *testing.T) {
	gdb := testDB(t)
	c := NewCoordinator(gdb)
	owner := seedUser(t, gdb)
	stranger := seedUser(t, gdb)
	ds := seedDataset(t, gdb, owner, 1)

	assert.ErrorIs(t, c.SubmitDecision(ds.DatasetID, stranger, 0, true, ""), lifecycle.ErrNotFound)
	_, err := c.Progress(ds.DatasetID, stranger)
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestCoverageDoesNotRegressLaterStatus(t *testing.T) {
	gdb := testDB(t)
	c := NewCoordinator(gdb)
	u := seedUser(t, gdb)
	ds := seedDataset(t, gdb, u, 1)
	require.NoError(t, gdb.Model(&models.Dataset{}).Where("dataset_id = ?", ds.DatasetID).
		Update("status", models.StatusCompleted).Error)

	// re-submitting after completion must not move the status backwards
	require.NoError(t, c.SubmitDecision(ds.DatasetID, u, 0, true, ""))
	var cur models.Dataset
	require.NoError(t, gdb.Where("dataset_id = ?", ds.DatasetID).First(&cur).Error)
	assert.Equal(t, models.StatusCompleted, cur.Status)
}
