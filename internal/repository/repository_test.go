package repository

import (
	"context"
	"testing"
	"time"

	"llm-eval-go/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = sqlDB.Close()
	})
	return db, mock
}

var catalogColumns = []string{"id", "name", "qa_catalog_group_id", "revision", "status", "origin", "error", "created_at", "updated_at"}

func TestQACatalogFindByID(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	mock.ExpectQuery("SELECT \\* FROM `qa_catalogs` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows(catalogColumns).
			AddRow("c1", "catalog", "g1", 2, model.CatalogStatusReady, model.CatalogOriginUpload, "", now, now))

	c, err := NewQACatalogRepository(db).FindByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "g1", c.QACatalogGroupID)
	assert.Equal(t, 2, c.Revision)
}

func TestQACatalogFindByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT \\* FROM `qa_catalogs`").WillReturnRows(sqlmock.NewRows(catalogColumns))

	_, err := NewQACatalogRepository(db).FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestQACatalogCreateWithPairs(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `qa_catalogs`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `qa_pairs`").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	catalog := &model.QACatalog{ID: "c1", Name: "n", QACatalogGroupID: "g1", Status: model.CatalogStatusReady, Origin: model.CatalogOriginUpload}
	pairs := []*model.QAPair{
		{ID: "p1", QACatalogID: "c1", Question: "q1", ExpectedOutput: "a1"},
		{ID: "p2", QACatalogID: "c1", Question: "q2", ExpectedOutput: "a2"},
	}
	require.NoError(t, NewQACatalogRepository(db).CreateWithPairs(context.Background(), catalog, pairs))
}

func TestQACatalogDelete(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `qa_pairs` WHERE qa_catalog_id = \\?").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM `qa_catalogs` WHERE id = \\?").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewQACatalogRepository(db).Delete(context.Background(), "c1"))
}

func TestQACatalogDeleteMissingRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `qa_pairs`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM `qa_catalogs`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := NewQACatalogRepository(db).Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestVersionedUpdate(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		existing int
		wantErr  error
	}{
		{name: "matching version", affected: 1},
		{name: "stale version", affected: 0, existing: 1, wantErr: ErrVersionConflict},
		{name: "missing record", affected: 0, existing: 0, wantErr: gorm.ErrRecordNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			mock.ExpectBegin()
			mock.ExpectExec("UPDATE `llm_endpoints` SET .*`version`=version \\+ 1.* WHERE id = \\? AND version = \\?").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))
			mock.ExpectCommit()
			if tt.affected == 0 {
				mock.ExpectQuery("SELECT count\\(\\*\\) FROM `llm_endpoints` WHERE id = \\?").
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tt.existing))
			}

			err := NewLLMEndpointRepository(db).Update(context.Background(), "e1", 3, map[string]any{"name": "renamed"})
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestEvaluationCountByStatus(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) AS total FROM `evaluations` GROUP BY `status`").
		WillReturnRows(sqlmock.NewRows([]string{"status", "total"}).
			AddRow(model.EvaluationStatusPending, 2).
			AddRow(model.EvaluationStatusSuccess, 5))

	counts, err := NewEvaluationRepository(db).CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{model.EvaluationStatusPending: 2, model.EvaluationStatusSuccess: 5}, counts)
}

func TestQAPairFindByIDsWithoutIDs(t *testing.T) {
	db, _ := newMockDB(t)
	pairs, err := NewQAPairRepository(db).FindByIDs(context.Background(), "c1", nil)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestProgressPublishAndSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	repo := NewProgressRepository(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	latest, err := repo.Latest(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	events, closeSub, err := repo.Subscribe(ctx, "c1")
	require.NoError(t, err)
	defer closeSub()

	require.NoError(t, repo.Publish(ctx, GenerationProgress{CatalogID: "c1", Status: model.CatalogStatusGenerating, Requested: 5, Delivered: 2}))

	select {
	case p := <-events:
		assert.Equal(t, 2, p.Delivered)
		assert.Equal(t, 5, p.Requested)
	case <-time.After(2 * time.Second):
		t.Fatal("no progress event received")
	}

	latest, err = repo.Latest(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, model.CatalogStatusGenerating, latest.Status)
	assert.False(t, latest.UpdatedAt.IsZero())
}
