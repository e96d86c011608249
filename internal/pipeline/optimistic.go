package pipeline

import (
	"context"
	"fmt"
)

// Cloner is an entity that can produce an independent copy of itself.
type Cloner[T any] interface {
	Clone() T
}

// Cache is the minimal keyed store an optimistic update needs. Update runs fn on the
// entry under key and reports false, without calling fn, when key is not cached.
type Cache[K comparable, T any] interface {
	Update(key K, fn func(*T)) bool
}

// WithOptimisticUpdate publishes the mutated entity under key, then calls confirm. If
// confirm fails the snapshot taken before mutate is handed to restore before the error
// is returned. restore writes back only what mutate touched, so edits made to other
// fields while confirm was in flight survive; a nil restore writes back the whole
// snapshot. An entry evicted meanwhile is not re-added. The returned rollback closure
// runs the same restore on demand.
func WithOptimisticUpdate[K comparable, T Cloner[T]](
	ctx context.Context,
	cache Cache[K, T],
	key K,
	mutate func(*T),
	restore func(cur *T, snapshot T),
	confirm func(ctx context.Context, next T) error,
) (rollback func(), err error) {
	if restore == nil {
		restore = func(cur *T, snapshot T) { *cur = snapshot.Clone() }
	}
	var snapshot, next T
	if !cache.Update(key, func(cur *T) {
		snapshot = (*cur).Clone()
		mutate(cur)
		next = (*cur).Clone()
	}) {
		return func() {}, fmt.Errorf("optimistic update %v: %w", key, ErrUnknownApplication)
	}

	rollback = func() {
		cache.Update(key, func(cur *T) { restore(cur, snapshot) })
	}
	if err := confirm(ctx, next.Clone()); err != nil {
		rollback()
		return rollback, err
	}
	return rollback, nil
}
