package membership

import (
	"concord-backend/internal/apperr"
	"concord-backend/internal/storage"
	"context"
	"fmt"
)

// step is one per-entity write of a saga.
type step struct {
	name string
	run  func(ctx context.Context, store storage.Store) error
}

func saveStep[T any](name string, collection func(storage.Store) storage.Collection[T], doc *T) step {
	return step{name: name, run: func(ctx context.Context, store storage.Store) error {
		return collection(store).Save(ctx, doc)
	}}
}

func deleteStep[T any](name string, collection func(storage.Store) storage.Collection[T], id int64) step {
	return step{name: name, run: func(ctx context.Context, store storage.Store) error {
		return collection(store).DeleteByID(ctx, id)
	}}
}

// runSaga issues the writes in order. On a transactional store they commit
// or roll back together. Otherwise each write is durable on its own, and a
// failure after the first one is reported as apperr.ErrPartialWrite so the
// reconciler can pick up what is left.
func (c *Coordinator) runSaga(ctx context.Context, operation string, steps []step) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if c.store.Transactional() {
		return c.store.WithTx(ctx, func(tx storage.Store) error {
			for _, st := range steps {
				if err := st.run(ctx, tx); err != nil {
					return fmt.Errorf("%s: %s: %w", operation, st.name, err)
				}
			}
			return nil
		})
	}

	completed := make([]string, 0, len(steps))
	for _, st := range steps {
		if err := st.run(ctx, c.store); err != nil {
			if len(completed) == 0 {
				return fmt.Errorf("%s: %s: %w", operation, st.name, err)
			}
			c.sugar.Errorf("Partial write in %s, completed %v, failed at %s: %v", operation, completed, st.name, err)
			return fmt.Errorf("%w: %s stopped at %s after %v: %w", apperr.ErrPartialWrite, operation, st.name, completed, err)
		}
		completed = append(completed, st.name)
	}
	return nil
}
