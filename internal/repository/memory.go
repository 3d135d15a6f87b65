package repository

import (
	"context"
	"sync"
	"time"

	"nobat/internal/models"

	"golang.org/x/time/rate"
)

type memoryEntry struct {
	session   *models.Session
	expiresAt time.Time
}

// rateEntry is a token bucket refilled to limit over one window. Once idle for a full
// window it is indistinguishable from a new bucket and can be dropped.
type rateEntry struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	idleAfter time.Time
}

// MemoryStateRepository keeps sessions, seen update ids and rate buckets in process memory.
// Entries expire ttl after the last write; Sweep drops them eagerly.
type MemoryStateRepository struct {
	states    sync.Map
	updates   sync.Map
	limits    sync.Map
	ttl       time.Duration
	dedupeTTL time.Duration
	now       func() time.Time
}

func NewMemoryStateRepository(ttl, dedupeTTL time.Duration) *MemoryStateRepository {
	return &MemoryStateRepository{
		ttl:       ttl,
		dedupeTTL: dedupeTTL,
		now:       time.Now,
	}
}

func (r *MemoryStateRepository) GetSession(ctx context.Context, conversationID int64) (*models.Session, error) {
	val, ok := r.states.Load(conversationID)
	if !ok {
		return nil, nil
	}
	entry := val.(*memoryEntry)
	if r.expired(entry.expiresAt) {
		r.states.CompareAndDelete(conversationID, entry)
		return nil, nil
	}
	return entry.session.Clone(), nil
}

func (r *MemoryStateRepository) SaveSession(ctx context.Context, session *models.Session) error {
	r.states.Store(session.ConversationID, &memoryEntry{
		session:   session.Clone(),
		expiresAt: r.deadline(r.ttl),
	})
	return nil
}

func (r *MemoryStateRepository) IsNewUpdate(ctx context.Context, updateID int) (bool, error) {
	deadline := r.deadline(r.dedupeTTL)
	for {
		val, loaded := r.updates.LoadOrStore(updateID, deadline)
		if !loaded {
			return true, nil
		}
		seen := val.(time.Time)
		if !r.expired(seen) {
			return false, nil
		}
		// истёкшая запись: повторное появление считается новым
		if r.updates.CompareAndSwap(updateID, seen, deadline) {
			return true, nil
		}
	}
}

// CheckRateLimit takes one token from the conversation's bucket.
func (r *MemoryStateRepository) CheckRateLimit(ctx context.Context, conversationID int64, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	now := r.now()

	entry := r.bucket(conversationID, limit, window)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.idleAfter = now.Add(window)
	return entry.limiter.AllowN(now, 1), nil
}

func (r *MemoryStateRepository) bucket(conversationID int64, limit int, window time.Duration) *rateEntry {
	if val, ok := r.limits.Load(conversationID); ok {
		return val.(*rateEntry)
	}
	entry := &rateEntry{limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)}
	actual, _ := r.limits.LoadOrStore(conversationID, entry)
	return actual.(*rateEntry)
}

// Sweep removes expired sessions, update ids and idle rate buckets and returns how many
// entries were dropped.
func (r *MemoryStateRepository) Sweep() int {
	removed := 0
	r.states.Range(func(key, val any) bool {
		if r.expired(val.(*memoryEntry).expiresAt) && r.states.CompareAndDelete(key, val) {
			removed++
		}
		return true
	})
	r.updates.Range(func(key, val any) bool {
		if r.expired(val.(time.Time)) && r.updates.CompareAndDelete(key, val) {
			removed++
		}
		return true
	})
	r.limits.Range(func(key, val any) bool {
		entry := val.(*rateEntry)
		entry.mu.Lock()
		idle := r.expired(entry.idleAfter)
		entry.mu.Unlock()
		if idle && r.limits.CompareAndDelete(key, val) {
			removed++
		}
		return true
	})
	return removed
}

// StartJanitor sweeps on every tick until ctx is done. It blocks.
func (r *MemoryStateRepository) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *MemoryStateRepository) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return r.now().Add(ttl)
}

func (r *MemoryStateRepository) expired(deadline time.Time) bool {
	return !deadline.IsZero() && r.now().After(deadline)
}
