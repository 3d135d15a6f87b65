package repository

import (
	"context"
	"testing"
	"time"

	"nobat/internal/config"
	"nobat/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStateRepository(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer Close(client)

	repo := NewRedisStateRepository(client, time.Hour, 2*time.Hour)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})

	t.Run("SetAndGetSession", func(t *testing.T) {
		session := models.NewSession(123, models.StepAskDate)
		session.Answers[models.FieldFullName] = "Sara"
		session.OfferedDates = []string{"1404/08/03", "1404/08/04"}
		session.UpdatedAt = time.Date(2025, 10, 20, 10, 0, 0, 0, time.UTC)

		require.NoError(t, repo.SaveSession(ctx, session))

		got, err := repo.GetSession(ctx, 123)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, session.Step, got.Step)
		assert.Equal(t, "Sara", got.Answers[models.FieldFullName])
		assert.Equal(t, session.OfferedDates, got.OfferedDates)
		assert.True(t, session.UpdatedAt.Equal(got.UpdatedAt))

		ttl := s.TTL("session:123")
		assert.Equal(t, time.Hour, ttl)
	})

	t.Run("GetNonExistentSession", func(t *testing.T) {
		got, err := repo.GetSession(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("SessionExpires", func(t *testing.T) {
		require.NoError(t, repo.SaveSession(ctx, models.NewSession(321, models.StepAskPhone)))
		s.FastForward(time.Hour + time.Second)

		got, err := repo.GetSession(ctx, 321)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("CorruptSession", func(t *testing.T) {
		require.NoError(t, s.Set("session:555", "{not json"))
		_, err := repo.GetSession(ctx, 555)
		assert.Error(t, err)
	})

	t.Run("Dedupe", func(t *testing.T) {
		isNew, err := repo.IsNewUpdate(ctx, 42)
		require.NoError(t, err)
		assert.True(t, isNew)

		isNew, err = repo.IsNewUpdate(ctx, 42)
		require.NoError(t, err)
		assert.False(t, isNew)

		assert.Equal(t, 2*time.Hour, s.TTL("update:42"))
	})

	t.Run("RateLimitExpires", func(t *testing.T) {
		now := time.Date(2025, 10, 20, 10, 0, 0, 0, time.UTC)
		repo.now = func() time.Time { return now }
		defer func() { repo.now = time.Now }()
		key := rateKey(5, now, time.Minute)

		for i := 0; i < 2; i++ {
			allowed, err := repo.CheckRateLimit(ctx, 5, 2, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed)
		}
		allowed, err := repo.CheckRateLimit(ctx, 5, 2, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)
		assert.Equal(t, time.Minute, s.TTL(key))

		s.FastForward(time.Minute)
		assert.False(t, s.Exists(key))

		now = now.Add(time.Minute)
		allowed, err = repo.CheckRateLimit(ctx, 5, 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, 5, 0, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("ConnectionError", func(t *testing.T) {
		broken := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
		defer broken.Close()
		r := NewRedisStateRepository(broken, time.Hour, time.Hour)

		_, err := r.GetSession(ctx, 1)
		assert.Error(t, err)
		_, err = r.IsNewUpdate(ctx, 1)
		assert.Error(t, err)
		_, err = r.CheckRateLimit(ctx, 1, 5, time.Minute)
		assert.Error(t, err)
	})

	t.Run("NilClient", func(t *testing.T) {
		r := NewRedisStateRepository(nil, time.Hour, time.Hour)
		_, err := r.GetSession(ctx, 1)
		assert.Error(t, err)
		assert.Error(t, r.SaveSession(ctx, models.NewSession(1, models.StepAskName)))
		_, err = r.IsNewUpdate(ctx, 1)
		assert.Error(t, err)
		_, err = r.CheckRateLimit(ctx, 1, 5, time.Minute)
		assert.Error(t, err)
	})
}
