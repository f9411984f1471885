package core

import (
	"context"
	"fmt"
	"sync"

	"wellcore/pkg/domain"
)

// UnitOfWork coordinates one atomic commit cycle over a set of tracked
// entities. Callers register entities as new, dirty, deleted, or clean
// between Begin and Commit; Commit applies all pending changes inside a
// single physical transaction, checking optimistic versions on updates.
//
// A UnitOfWork owns its tracking state and is not safe for concurrent use;
// concurrent callers construct independent instances, and isolation between
// them is delegated to the backing store's transaction semantics.
type UnitOfWork struct {
	store    Store
	registry *Registry

	mu      sync.Mutex
	active  bool
	tracked *changeSet
}

// NewUnitOfWork constructs a coordinator over the supplied store and registry.
func NewUnitOfWork(store Store, registry *Registry) *UnitOfWork {
	return &UnitOfWork{
		store:    store,
		registry: registry,
		tracked:  newChangeSet(),
	}
}

// Begin opens a logical unit of work. Nested units are not supported.
func (u *UnitOfWork) Begin() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.active {
		return domain.InvalidStateError{Op: "begin", Reason: "a unit of work is already active"}
	}
	u.active = true
	return nil
}

// IsActive reports whether Begin has been called without a matching
// Commit or Rollback.
func (u *UnitOfWork) IsActive() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.active
}

// RegisterNew tracks an entity for insertion.
func (u *UnitOfWork) RegisterNew(e Entity) error {
	return u.register("register new", e, u.tracked.registerNew)
}

// RegisterDirty tracks an entity for a version-checked update.
func (u *UnitOfWork) RegisterDirty(e Entity) error {
	return u.register("register dirty", e, u.tracked.registerDirty)
}

// RegisterDeleted tracks an entity for deletion.
func (u *UnitOfWork) RegisterDeleted(e Entity) error {
	return u.register("register deleted", e, u.tracked.registerDeleted)
}

// RegisterClean tracks an entity with no pending changes.
func (u *UnitOfWork) RegisterClean(e Entity) error {
	return u.register("register clean", e, u.tracked.registerClean)
}

func (u *UnitOfWork) register(op string, e Entity, apply func(Entity)) error {
	if e == nil {
		return fmt.Errorf("%s: nil entity", op)
	}
	if e.EntityID() == "" {
		return fmt.Errorf("%s: entity %q has no identifier", op, e.Kind())
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.active {
		return domain.InvalidStateError{Op: op, Reason: "no active unit of work"}
	}
	apply(e)
	return nil
}

// Commit applies all tracked changes within one physical transaction:
// inserts first, then version-checked updates, then deletes. Any failure
// aborts the transaction and nothing is applied. Tracking state is cleared
// unconditionally, on success and on failure alike; the returned changes
// describe what was committed.
func (u *UnitOfWork) Commit(ctx context.Context) ([]Change, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.active {
		return nil, domain.InvalidStateError{Op: "commit", Reason: "no active unit of work"}
	}
	defer func() {
		u.tracked.clear()
		u.active = false
	}()

	var changes []Change
	err := u.store.RunInTx(ctx, func(tx Tx) error {
		for _, id := range u.tracked.addOrder {
			e := u.tracked.added[id]
			repo, err := u.registry.Resolve(id.Kind, tx)
			if err != nil {
				return err
			}
			if err := repo.Insert(ctx, e); err != nil {
				return fmt.Errorf("insert %s: %w", id, err)
			}
			changes = append(changes, Change{Entity: id.Kind, Action: ActionCreate, ID: id.ID, After: e})
		}
		for _, id := range u.tracked.dirOrder {
			e := u.tracked.dirty[id]
			repo, err := u.registry.Resolve(id.Kind, tx)
			if err != nil {
				return err
			}
			before, err := u.checkVersion(ctx, repo, id, e)
			if err != nil {
				return err
			}
			e.BumpVersion()
			if err := repo.Update(ctx, e); err != nil {
				return fmt.Errorf("update %s: %w", id, err)
			}
			changes = append(changes, Change{Entity: id.Kind, Action: ActionUpdate, ID: id.ID, Before: before, After: e})
		}
		for _, id := range u.tracked.delOrder {
			repo, err := u.registry.Resolve(id.Kind, tx)
			if err != nil {
				return err
			}
			if err := repo.Delete(ctx, id.ID); err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
			changes = append(changes, Change{Entity: id.Kind, Action: ActionDelete, ID: id.ID})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// checkVersion reads the persisted version of e inside the active transaction
// and compares it to the version captured at registration. A missing row
// counts as version 0. The in-memory entity is untouched on mismatch.
func (u *UnitOfWork) checkVersion(ctx context.Context, repo Repository, id Identity, e Entity) (Entity, error) {
	current, err := repo.FindByID(ctx, id.ID)
	var found int64
	switch {
	case err == nil:
		found = current.EntityVersion()
	case domain.IsNotFound(err):
		found = 0
	default:
		return nil, fmt.Errorf("read %s for version check: %w", id, err)
	}
	if found != e.EntityVersion() {
		return nil, domain.ConflictError{Identity: id, Expected: e.EntityVersion(), Found: found}
	}
	return current, nil
}

// Rollback discards all tracked state. It is idempotent and safe to call at
// any time, including before the first Begin.
func (u *UnitOfWork) Rollback() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tracked.clear()
	u.active = false
}
