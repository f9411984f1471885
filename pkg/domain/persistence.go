package domain

import "context"

// Tx is the backend transaction handle threaded through repository factories.
// Each persistence backend defines one concrete implementation; factories
// convert the handle back to their own type and must reject any other. The
// handle never outlives the RunInTx block that produced it.
type Tx interface {
	// Driver names the backend that produced the handle (memory, sqlite,
	// postgres). Factories use it in mismatch diagnostics.
	Driver() string
}

// Repository translates entities of one kind to and from stored rows, bound
// to the transaction handle supplied at construction. Implementations know
// nothing about lifecycle tracking or version arithmetic; the coordinator
// drives both.
type Repository interface {
	Insert(ctx context.Context, e Entity) error
	Update(ctx context.Context, e Entity) error
	Delete(ctx context.Context, id string) error
	// FindByID returns the persisted entity or a NotFoundError.
	FindByID(ctx context.Context, id string) (Entity, error)
}

// RepositoryFactory builds a repository bound to the supplied transaction
// handle. Factories fail when handed a handle from a different backend.
type RepositoryFactory func(tx Tx) (Repository, error)

// Store is the minimal contract a durable backend must satisfy: one atomic
// transaction primitive, non-transactional reads for lookups outside a unit
// of work, and the repository factories for every entity kind it persists.
type Store interface {
	// RunInTx executes fn within a single physical transaction. A non-nil
	// error from fn aborts the transaction; nothing fn wrote is visible
	// afterwards.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	// Find returns the committed entity or a NotFoundError.
	Find(ctx context.Context, kind EntityType, id string) (Entity, error)
	// List returns all committed entities of kind owned by operator, ordered
	// by ID ascending.
	List(ctx context.Context, kind EntityType, operator string) ([]Entity, error)
	// Factories returns one repository factory per supported entity kind.
	Factories() map[EntityType]RepositoryFactory
	Close() error
}
