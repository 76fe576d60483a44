package magiclink

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, model := range []any{
		(*MagicToken)(nil),
		(*RateLimitEntry)(nil),
		(*User)(nil),
	} {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}

	return db
}

func TestBunStoreSaveAndGetToken(t *testing.T) {
	store := NewBunStore(newTestDB(t))
	ctx := context.Background()
	now := time.Now()

	token := newTestToken("digest-1", "user@example.com", now.Add(time.Hour))
	require.NoError(t, store.SaveToken(ctx, token))
	assert.NotEmpty(t, token.ID)

	got, err := store.GetToken(ctx, "digest-1")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", got.Email)
	assert.Equal(t, RoleStandard, got.Role)
	assert.False(t, got.Used)
}

func TestBunStoreGetTokenNotFound(t *testing.T) {
	store := NewBunStore(newTestDB(t))

	_, err := store.GetToken(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestBunStoreConsumeToken(t *testing.T) {
	store := NewBunStore(newTestDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.SaveToken(ctx, newTestToken("digest-1", "user@example.com", now.Add(time.Hour))))

	consumed, err := store.ConsumeToken(ctx, "digest-1", now)
	require.NoError(t, err)
	assert.True(t, consumed.Used)
	assert.NotNil(t, consumed.UsedAt)

	_, err = store.ConsumeToken(ctx, "digest-1", now)
	assert.ErrorIs(t, err, ErrTokenUsed)
}

func TestBunStoreConsumeExpiredToken(t *testing.T) {
	store := NewBunStore(newTestDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.SaveToken(ctx, newTestToken("digest-1", "user@example.com", now.Add(-time.Minute))))

	_, err := store.ConsumeToken(ctx, "digest-1", now)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestBunStoreConsumeUnknownToken(t *testing.T) {
	store := NewBunStore(newTestDB(t))

	_, err := store.ConsumeToken(context.Background(), "missing", time.Now())
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestBunStoreDeleteToken(t *testing.T) {
	store := NewBunStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.SaveToken(ctx, newTestToken("digest-1", "user@example.com", time.Now().Add(time.Hour))))
	require.NoError(t, store.DeleteToken(ctx, "digest-1"))

	_, err := store.GetToken(ctx, "digest-1")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestBunStorePurgeExpired(t *testing.T) {
	store := NewBunStore(newTestDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.SaveToken(ctx, newTestToken("live", "a@example.com", now.Add(time.Hour))))
	require.NoError(t, store.SaveToken(ctx, newTestToken("dead", "b@example.com", now.Add(-time.Hour))))

	purged, err := store.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = store.GetToken(ctx, "live")
	assert.NoError(t, err)
}

func TestBunStoreHitIncrementsWithinWindow(t *testing.T) {
	store := NewBunStore(newTestDB(t))
	ctx := context.Background()
	now := time.Now()
	window := time.Hour

	entry, err := store.Hit(ctx, "device-1", now, window)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Count)

	entry, err = store.Hit(ctx, "device-1", now.Add(time.Minute), window)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Count)

	entry, err = store.Hit(ctx, "device-1", now.Add(2*time.Minute), window)
	require.NoError(t, err)
	assert.Equal(t, 3, entry.Count)
}

func TestBunStoreHitRollsExpiredWindow(t *testing.T) {
	store := NewBunStore(newTestDB(t))
	ctx := context.Background()
	now := time.Now()
	window := time.Minute

	for i := 0; i < 4; i++ {
		_, err := store.Hit(ctx, "device-1", now, window)
		require.NoError(t, err)
	}

	later := now.Add(window + time.Second)
	entry, err := store.Hit(ctx, "device-1", later, window)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Count, "rolled window starts a fresh count")
}

func TestBunStoreHitSeparatesDevices(t *testing.T) {
	store := NewBunStore(newTestDB(t))
	ctx := context.Background()
	now := time.Now()

	_, err := store.Hit(ctx, "device-1", now, time.Hour)
	require.NoError(t, err)

	entry, err := store.Hit(ctx, "device-2", now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Count)
}
