package domain

import (
	"errors"
	"fmt"
)

// InvalidStateError reports a unit-of-work lifecycle misuse: Begin while
// active, or Commit/registration while inactive. It signals a caller
// programming error and is never retried automatically.
type InvalidStateError struct {
	Op     string
	Reason string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("unit of work: %s: %s", e.Op, e.Reason)
}

// ConflictError reports an optimistic concurrency violation: the persisted
// version of an entity no longer matches the version captured when the entity
// was registered. The whole unit of work is aborted; callers recover by
// re-fetching and retrying.
type ConflictError struct {
	Identity Identity
	Expected int64
	Found    int64
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("concurrent modification of %s: expected version %d, found %d",
		e.Identity, e.Expected, e.Found)
}

// NotFoundError reports a missing persisted row for an identity.
type NotFoundError struct {
	Identity Identity
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Identity)
}

// RepositoryNotFoundError reports a missing repository registration for an
// entity kind. This is a fatal wiring error, not a runtime condition.
type RepositoryNotFoundError struct {
	Kind EntityType
}

func (e RepositoryNotFoundError) Error() string {
	return fmt.Sprintf("no repository registered for entity type %q", e.Kind)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var ne NotFoundError
	return errors.As(err, &ne)
}
