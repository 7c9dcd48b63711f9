package memory

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, opts...), mr
}

func TestAddInteractionStoresNewestFirst(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddInteraction(ctx, "user", "what is the weather"))
	require.NoError(t, store.AddInteraction(ctx, "assistant", "sunny and warm"))

	interactions, err := store.Interactions(ctx)
	require.NoError(t, err)
	require.Len(t, interactions, 2)
	assert.Equal(t, "assistant", interactions[0].Role)
	assert.Equal(t, "what is the weather", interactions[1].Text)
	assert.False(t, interactions[0].Timestamp.IsZero())
}

func TestAddInteractionTrimsLog(t *testing.T) {
	store, mr := setupRedisStore(t, WithMaxInteractions(3), WithPrefix("test"))
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three", "four", "five"} {
		require.NoError(t, store.AddInteraction(ctx, "user", text))
	}

	values, err := mr.List("test:interactions")
	require.NoError(t, err)
	assert.Len(t, values, 3)

	interactions, err := store.Interactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, "five", interactions[0].Text)
	assert.Equal(t, "three", interactions[2].Text)
}

func TestAddInteractionRejectsEmpty(t *testing.T) {
	store, _ := setupRedisStore(t)

	assert.ErrorIs(t, store.AddInteraction(context.Background(), "user", "   "), ErrInvalidInteraction)
	assert.ErrorIs(t, store.AddInteraction(context.Background(), "", "hi"), ErrInvalidInteraction)
}

func TestProfileDefaultsName(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	profile, err := store.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "User"}, profile)

	require.NoError(t, store.SetProfileField(ctx, "name", "Ana"))
	require.NoError(t, store.SetProfileField(ctx, "city", "Zagreb"))
	profile, err = store.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "Ana", "city": "Zagreb"}, profile)
}

func TestRelevantContextRanksByOverlap(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetProfileField(ctx, "city", "Zagreb"))
	for _, text := range []string{
		"remind me to water the plants",
		"what is the weather tomorrow in Zagreb",
		"the weather will be rainy",
		"play some jazz music",
		"tell me about weather patterns",
	} {
		require.NoError(t, store.AddInteraction(ctx, "user", text))
	}

	got, err := store.RelevantContext(ctx, "Weather in Zagreb?")
	require.NoError(t, err)
	assert.Equal(t,
		"User Profile: city=Zagreb, name=User\n"+
			"Relevant Past Conversations:\n"+
			"- user: what is the weather tomorrow in Zagreb\n"+
			"- user: tell me about weather patterns\n"+
			"- user: the weather will be rainy",
		got)
}

func TestRelevantContextWithoutMatches(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.AddInteraction(ctx, "user", "play some jazz"))

	got, err := store.RelevantContext(ctx, "weather")
	require.NoError(t, err)
	assert.Equal(t, "User Profile: name=User", got)
}

func TestRelevantContextRedisDown(t *testing.T) {
	store, mr := setupRedisStore(t)
	mr.Close()

	_, err := store.RelevantContext(context.Background(), "weather")
	assert.Error(t, err)
}
