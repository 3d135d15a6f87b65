package repository

import (
	"context"
	"testing"
	"time"

	"nobat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStateRepository(t *testing.T) {
	repo := NewMemoryStateRepository(time.Hour, time.Hour)
	ctx := context.Background()

	t.Run("SetAndGetSession", func(t *testing.T) {
		session := models.NewSession(123, models.StepAskPhone)
		session.Answers[models.FieldFullName] = "Sara"
		require.NoError(t, repo.SaveSession(ctx, session))

		got, err := repo.GetSession(ctx, 123)
		require.NoError(t, err)
		assert.Equal(t, session, got)
	})

	t.Run("StoredCopyIsIsolated", func(t *testing.T) {
		session := models.NewSession(124, models.StepAskPhone)
		require.NoError(t, repo.SaveSession(ctx, session))
		session.Answers[models.FieldPhone] = "changed"

		got, err := repo.GetSession(ctx, 124)
		require.NoError(t, err)
		assert.Empty(t, got.Answers)
	})

	t.Run("MissingSession", func(t *testing.T) {
		got, err := repo.GetSession(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Dedupe", func(t *testing.T) {
		isNew, err := repo.IsNewUpdate(ctx, 1001)
		require.NoError(t, err)
		assert.True(t, isNew)

		isNew, err = repo.IsNewUpdate(ctx, 1001)
		require.NoError(t, err)
		assert.False(t, isNew)
	})
}

func TestMemoryStateRepository_Expiry(t *testing.T) {
	repo := NewMemoryStateRepository(time.Minute, time.Minute)
	now := time.Date(2025, 10, 20, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, repo.SaveSession(ctx, models.NewSession(1, models.StepAskBrand)))
	isNew, _ := repo.IsNewUpdate(ctx, 7)
	require.True(t, isNew)

	now = now.Add(30 * time.Second)
	got, err := repo.GetSession(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0, repo.Sweep())

	now = now.Add(2 * time.Minute)
	got, err = repo.GetSession(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	isNew, _ = repo.IsNewUpdate(ctx, 7)
	assert.True(t, isNew, "expired update id is treated as new")

	require.NoError(t, repo.SaveSession(ctx, models.NewSession(2, models.StepAskBrand)))
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, repo.Sweep())
}

func TestMemoryStateRepository_Janitor(t *testing.T) {
	repo := NewMemoryStateRepository(time.Nanosecond, time.Nanosecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, repo.SaveSession(ctx, models.NewSession(5, models.StepAskName)))
	go repo.StartJanitor(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		count := 0
		repo.states.Range(func(_, _ any) bool {
			count++
			return true
		})
		return count == 0
	}, time.Second, 10*time.Millisecond)
}

func countEntries(m interface{ Range(func(any, any) bool) }) int {
	count := 0
	m.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func TestMemoryStateRepository_CheckRateLimit(t *testing.T) {
	repo := NewMemoryStateRepository(time.Hour, time.Hour)
	now := time.Date(2025, 10, 20, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := repo.CheckRateLimit(ctx, 7, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := repo.CheckRateLimit(ctx, 7, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, _ = repo.CheckRateLimit(ctx, 8, 3, time.Minute)
	assert.True(t, allowed, "buckets are per conversation")

	now = now.Add(21 * time.Second)
	allowed, _ = repo.CheckRateLimit(ctx, 7, 3, time.Minute)
	assert.True(t, allowed, "one token refills every window/limit")

	allowed, _ = repo.CheckRateLimit(ctx, 9, 0, time.Minute)
	assert.True(t, allowed)
	assert.Equal(t, 2, countEntries(&repo.limits))
}

func TestMemoryStateRepository_RateEntriesExpire(t *testing.T) {
	repo := NewMemoryStateRepository(time.Hour, time.Hour)
	now := time.Date(2025, 10, 20, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	for id := int64(1); id <= 1000; id++ {
		_, err := repo.CheckRateLimit(ctx, id, 20, time.Millisecond)
		require.NoError(t, err)
	}
	require.Equal(t, 1000, countEntries(&repo.limits))

	now = now.Add(50 * time.Millisecond)
	assert.Equal(t, 1000, repo.Sweep())
	assert.Zero(t, countEntries(&repo.limits))

	allowed, err := repo.CheckRateLimit(ctx, 1, 20, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, allowed)
}
