package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-reconciliation/internal/models"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStreamPublisher_Publish(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()
	p := NewStreamPublisher(client, "")

	event := models.LinkEvent{
		Type:       models.EventClustersMerged,
		PrimaryID:  1,
		ContactIDs: []int64{2, 5},
		OccurredAt: time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Publish(ctx, event))

	msgs, err := client.XRange(ctx, DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	values := msgs[0].Values
	assert.Equal(t, "contact.merged", values["type"])
	assert.Equal(t, "1", values["primary_id"])

	var decoded models.LinkEvent
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &decoded))
	assert.Equal(t, event.ContactIDs, decoded.ContactIDs)
	assert.True(t, event.OccurredAt.Equal(decoded.OccurredAt))
}

func TestStreamPublisher_MaxLen(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()
	p := NewStreamPublisher(client, "links", WithMaxLen(2))

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, p.Publish(ctx, models.LinkEvent{Type: models.EventContactCreated, PrimaryID: i}))
	}

	n, err := client.XLen(ctx, "links").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestStreamPublisher_Unavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.Close()

	err := NewStreamPublisher(client, "links").Publish(context.Background(), models.LinkEvent{Type: models.EventContactLinked})
	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()

	client, err := NewRedisClient(context.Background(), RedisConfig{Addr: addr})
	require.NoError(t, err)
	_ = client.Close()

	mr.Close()
	_, err = NewRedisClient(context.Background(), RedisConfig{Addr: addr})
	assert.Error(t, err)
}
