package core

// changeSet tracks the lifecycle tag of every entity registered with one unit
// of work. An identity lives in at most one of the four collections at any
// time. Order slices preserve registration order so changes are applied
// deterministically within each group.
type changeSet struct {
	added    map[Identity]Entity
	dirty    map[Identity]Entity
	deleted  map[Identity]Entity
	clean    map[Identity]Entity
	addOrder []Identity
	dirOrder []Identity
	delOrder []Identity
}

func newChangeSet() *changeSet {
	return &changeSet{
		added:   make(map[Identity]Entity),
		dirty:   make(map[Identity]Entity),
		deleted: make(map[Identity]Entity),
		clean:   make(map[Identity]Entity),
	}
}

// registerNew marks an entity for insertion. An identity pending deletion is
// resurrected as dirty instead: it still has a persisted row to update. An
// identity already tracked as new, dirty, or clean is left untouched.
func (c *changeSet) registerNew(e Entity) {
	id := identityOf(e)
	if _, ok := c.deleted[id]; ok {
		delete(c.deleted, id)
		c.delOrder = removeIdentity(c.delOrder, id)
		c.dirty[id] = e
		c.dirOrder = append(c.dirOrder, id)
		return
	}
	if _, ok := c.dirty[id]; ok {
		return
	}
	if _, ok := c.clean[id]; ok {
		return
	}
	if _, ok := c.added[id]; ok {
		return
	}
	c.added[id] = e
	c.addOrder = append(c.addOrder, id)
}

// registerDirty marks an entity for update. An identity pending insertion
// stays new (there is no persisted prior state to be dirty against) and one
// pending deletion stays deleted.
func (c *changeSet) registerDirty(e Entity) {
	id := identityOf(e)
	if _, ok := c.added[id]; ok {
		return
	}
	if _, ok := c.deleted[id]; ok {
		return
	}
	delete(c.clean, id)
	if _, ok := c.dirty[id]; !ok {
		c.dirOrder = append(c.dirOrder, id)
	}
	c.dirty[id] = e
}

// registerDeleted marks an entity for deletion. An identity pending insertion
// is simply dropped: it never reached storage, so there is nothing to delete.
// Deletion supersedes a pending update.
func (c *changeSet) registerDeleted(e Entity) {
	id := identityOf(e)
	if _, ok := c.added[id]; ok {
		delete(c.added, id)
		c.addOrder = removeIdentity(c.addOrder, id)
		return
	}
	delete(c.clean, id)
	if _, ok := c.dirty[id]; ok {
		delete(c.dirty, id)
		c.dirOrder = removeIdentity(c.dirOrder, id)
	}
	if _, ok := c.deleted[id]; !ok {
		c.delOrder = append(c.delOrder, id)
	}
	c.deleted[id] = e
}

// registerClean records an entity with no pending work. Idempotent; it never
// demotes an identity that already has pending changes.
func (c *changeSet) registerClean(e Entity) {
	id := identityOf(e)
	if _, ok := c.added[id]; ok {
		return
	}
	if _, ok := c.dirty[id]; ok {
		return
	}
	if _, ok := c.deleted[id]; ok {
		return
	}
	c.clean[id] = e
}

// clear unconditionally drops all tracked state. Called on commit and rollback.
func (c *changeSet) clear() {
	c.added = make(map[Identity]Entity)
	c.dirty = make(map[Identity]Entity)
	c.deleted = make(map[Identity]Entity)
	c.clean = make(map[Identity]Entity)
	c.addOrder = nil
	c.dirOrder = nil
	c.delOrder = nil
}

func (c *changeSet) empty() bool {
	return len(c.added) == 0 && len(c.dirty) == 0 && len(c.deleted) == 0 && len(c.clean) == 0
}

// tagCount reports how many collections contain the identity. Used by tests
// to assert mutual exclusion.
func (c *changeSet) tagCount(id Identity) int {
	n := 0
	if _, ok := c.added[id]; ok {
		n++
	}
	if _, ok := c.dirty[id]; ok {
		n++
	}
	if _, ok := c.deleted[id]; ok {
		n++
	}
	if _, ok := c.clean[id]; ok {
		n++
	}
	return n
}

func removeIdentity(ids []Identity, id Identity) []Identity {
	out := ids[:0]
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}

func identityOf(e Entity) Identity {
	return Identity{Kind: e.Kind(), ID: e.EntityID()}
}
