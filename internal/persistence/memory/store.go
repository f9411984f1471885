// Package memory provides an in-memory transactional store used for tests and
// ephemeral deployments. Transactions stage a cloned copy of the state and
// swap it in on success, so a failed transaction leaves nothing behind.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"wellcore/pkg/domain"
)

// record is one stored row: the version column mirrors the version embedded
// in the payload so reads never need to decode just to compare.
type record struct {
	operator string
	version  int64
	payload  []byte
}

type state map[domain.EntityType]map[string]record

func newState() state {
	s := make(state, len(domain.EntityTypes()))
	for _, kind := range domain.EntityTypes() {
		s[kind] = make(map[string]record)
	}
	return s
}

func (s state) clone() state {
	out := make(state, len(s))
	for kind, rows := range s {
		cp := make(map[string]record, len(rows))
		for id, rec := range rows {
			cp[id] = rec
		}
		out[kind] = cp
	}
	return out
}

// Compile-time contract assertion.
var _ domain.Store = (*Store)(nil)

// Store is the in-memory backend. txMu serializes transactions so isolation
// across concurrent units of work is trivial; stateMu guards the committed
// state for the short read and swap sections only, so Find and List stay
// callable while a transaction is open.
type Store struct {
	txMu    sync.Mutex
	stateMu sync.RWMutex
	state   state
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// Tx stages mutations against a cloned state until RunInTx commits it.
type Tx struct {
	state state
}

// Driver implements domain.Tx.
func (t *Tx) Driver() string { return "memory" }

// RunInTx executes fn against a staged copy of the state and swaps the copy
// in only when fn succeeds.
func (s *Store) RunInTx(_ context.Context, fn func(tx domain.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.stateMu.RLock()
	tx := &Tx{state: s.state.clone()}
	s.stateMu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}

	s.stateMu.Lock()
	s.state = tx.state
	s.stateMu.Unlock()
	return nil
}

// Find returns the committed entity or a NotFoundError.
func (s *Store) Find(_ context.Context, kind domain.EntityType, id string) (domain.Entity, error) {
	s.stateMu.RLock()
	rec, ok := s.state[kind][id]
	s.stateMu.RUnlock()
	if !ok {
		return nil, domain.NotFoundError{Identity: domain.Identity{Kind: kind, ID: id}}
	}
	return decode(kind, id, rec.payload)
}

// List returns all committed entities of kind owned by operator, ordered by ID.
func (s *Store) List(_ context.Context, kind domain.EntityType, operator string) ([]domain.Entity, error) {
	s.stateMu.RLock()
	ids := make([]string, 0, len(s.state[kind]))
	rows := make(map[string]record, len(s.state[kind]))
	for id, rec := range s.state[kind] {
		if rec.operator != operator {
			continue
		}
		ids = append(ids, id)
		rows[id] = rec
	}
	s.stateMu.RUnlock()

	sort.Strings(ids)
	out := make([]domain.Entity, 0, len(ids))
	for _, id := range ids {
		e, err := decode(kind, id, rows[id].payload)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Factories returns one repository factory per entity kind, each converting
// the generic transaction handle back to this backend's Tx.
func (s *Store) Factories() map[domain.EntityType]domain.RepositoryFactory {
	out := make(map[domain.EntityType]domain.RepositoryFactory, len(domain.EntityTypes()))
	for _, kind := range domain.EntityTypes() {
		kind := kind
		out[kind] = func(tx domain.Tx) (domain.Repository, error) {
			mt, ok := tx.(*Tx)
			if !ok {
				return nil, fmt.Errorf("memory: unexpected transaction handle %T", tx)
			}
			return &repo{tx: mt, kind: kind}, nil
		}
	}
	return out
}

// Close implements domain.Store; the memory backend holds no resources.
func (s *Store) Close() error { return nil }

// Len reports the number of committed rows of kind. Test helper.
func (s *Store) Len(kind domain.EntityType) int {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return len(s.state[kind])
}

type repo struct {
	tx   *Tx
	kind domain.EntityType
}

func (r *repo) Insert(_ context.Context, e domain.Entity) error {
	rows := r.tx.state[r.kind]
	if _, ok := rows[e.EntityID()]; ok {
		return fmt.Errorf("%s already exists", domain.IdentityOf(e))
	}
	rec, err := encode(e)
	if err != nil {
		return err
	}
	rows[e.EntityID()] = rec
	return nil
}

func (r *repo) Update(_ context.Context, e domain.Entity) error {
	rows := r.tx.state[r.kind]
	if _, ok := rows[e.EntityID()]; !ok {
		return domain.NotFoundError{Identity: domain.IdentityOf(e)}
	}
	rec, err := encode(e)
	if err != nil {
		return err
	}
	rows[e.EntityID()] = rec
	return nil
}

func (r *repo) Delete(_ context.Context, id string) error {
	rows := r.tx.state[r.kind]
	if _, ok := rows[id]; !ok {
		return domain.NotFoundError{Identity: domain.Identity{Kind: r.kind, ID: id}}
	}
	delete(rows, id)
	return nil
}

func (r *repo) FindByID(_ context.Context, id string) (domain.Entity, error) {
	rec, ok := r.tx.state[r.kind][id]
	if !ok {
		return nil, domain.NotFoundError{Identity: domain.Identity{Kind: r.kind, ID: id}}
	}
	return decode(r.kind, id, rec.payload)
}

func encode(e domain.Entity) (record, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return record{}, fmt.Errorf("encode %s: %w", domain.IdentityOf(e), err)
	}
	return record{operator: e.Operator(), version: e.EntityVersion(), payload: payload}, nil
}

func decode(kind domain.EntityType, id string, payload []byte) (domain.Entity, error) {
	e, err := domain.NewEntity(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, e); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", kind, id, err)
	}
	return e, nil
}
