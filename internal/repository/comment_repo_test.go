package repository

import (
	"context"
	"encoding/json"
	"net"
	"regexp"
	"testing"

	"storyloom/internal/config"
	"storyloom/internal/model"
	"storyloom/internal/util"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *util.RedisClient) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	rc, err := util.NewRedisClient(&config.Config{RedisHost: host, RedisPort: port})
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	return mr, rc
}

func TestCommentRepository_SetPinnedEvictsClearedRoots(t *testing.T) {
	db, mock := setupMockDB(t)
	mr, rc := setupTestRedis(t)
	repo := NewCommentRepository(db, rc)
	ctx := context.Background()

	const (
		threadID = "11111111-1111-1111-1111-111111111111"
		oldPin   = "22222222-2222-2222-2222-222222222222"
		newPin   = "33333333-3333-3333-3333-333333333333"
	)

	// The old pinned root sits in the per-comment cache, as after a Get
	cached, err := json.Marshal(&model.Comment{
		ID:        oldPin,
		ChapterID: threadID,
		Body:      "old pin",
		Pinned:    true,
	})
	require.NoError(t, err)
	require.NoError(t, mr.Set(commentCachePrefix+oldPin, string(cached)))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id" FROM "comments" WHERE chapter_id = $1 AND pinned = $2 AND id <> $3`)).
		WithArgs(threadID, true, newPin).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(oldPin))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "comments" SET "pinned"=$1,"updated_at"=$2 WHERE id IN ($3)`)).
		WithArgs(false, sqlmock.AnyArg(), oldPin).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "comments" SET "pinned"=$1,"updated_at"=$2 WHERE id = $3`)).
		WithArgs(true, sqlmock.AnyArg(), newPin).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = repo.SetPinned(ctx, threadID, newPin, true)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	// The unpinned root's cache entry is gone too, so no later read can
	// see it pinned and write the stale flag back
	assert.False(t, mr.Exists(commentCachePrefix+oldPin))
	assert.False(t, mr.Exists(commentCachePrefix+newPin))
}

func TestCommentRepository_UnpinSkipsClearScan(t *testing.T) {
	db, mock := setupMockDB(t)
	_, rc := setupTestRedis(t)
	repo := NewCommentRepository(db, rc)
	ctx := context.Background()

	const (
		threadID = "11111111-1111-1111-1111-111111111111"
		id       = "22222222-2222-2222-2222-222222222222"
	)

	// Unpinning frees the slot without touching any other row
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "comments" SET "pinned"=$1,"updated_at"=$2 WHERE id = $3`)).
		WithArgs(false, sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SetPinned(ctx, threadID, id, false)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
