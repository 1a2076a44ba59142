//go:build integration

package relay

import (
	"context"
	"testing"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"personrelay/internal/constants"
	"personrelay/pkg/errors"
	"personrelay/pkg/migrations"
)

func setupRedis(t *testing.T) *redisclient.Client {
	t.Helper()
	ctx := context.Background()

	container, err := redismodule.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opt, err := redisclient.ParseURL(uri)
	require.NoError(t, err)

	client := redisclient.NewClient(opt)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func setupMongo(t *testing.T) *mongo.Database {
	t.Helper()
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:6")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(ctx) })

	return client.Database("relay_test")
}

func TestRedisLocker(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	locker := NewRedisLocker(client, time.Minute)

	release, err := locker.Acquire(ctx)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx)
	assert.ErrorIs(t, err, errors.ErrConflict)

	require.NoError(t, release(ctx))

	release2, err := locker.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, release2(ctx))
}

func TestRedisLocker_ReleaseIgnoresForeignToken(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	locker := NewRedisLocker(client, time.Minute)

	release, err := locker.Acquire(ctx)
	require.NoError(t, err)

	require.NoError(t, client.Set(ctx, constants.DrainLockKey, "someone-else", time.Minute).Err())
	require.NoError(t, release(ctx))

	val, err := client.Get(ctx, constants.DrainLockKey).Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}

func TestMongoAuditSink(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()
	require.NoError(t, migrations.EnsureAuditCollection(ctx, db, constants.DefaultAuditCollection))

	sink := NewMongoAuditSink(db, "")
	rec := CycleRecord{
		CycleID:    "cycle-1",
		StartedAt:  time.Now().UTC().Truncate(time.Millisecond),
		DurationMs: 12,
		Status:     "success",
		AckMode:    constants.AckBeforePersist,
		Result:     Result{Received: 3, Parsed: 2, Skipped: 1, Inserted: 2},
	}
	require.NoError(t, sink.Record(ctx, rec))

	var got CycleRecord
	err := db.Collection(constants.DefaultAuditCollection).FindOne(ctx, bson.M{"_id": "cycle-1"}).Decode(&got)
	require.NoError(t, err)
	assert.Equal(t, rec.Result, got.Result)
	assert.Equal(t, "success", got.Status)
}
