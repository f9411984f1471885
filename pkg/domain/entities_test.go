package domain

import (
	"testing"
	"time"
)

func TestNewEntityReturnsConcreteKinds(t *testing.T) {
	for _, kind := range EntityTypes() {
		e, err := NewEntity(kind)
		if err != nil {
			t.Fatalf("NewEntity(%s): %v", kind, err)
		}
		if e.Kind() != kind {
			t.Fatalf("NewEntity(%s) produced kind %s", kind, e.Kind())
		}
	}
}

func TestNewEntityUnknownKind(t *testing.T) {
	if _, err := NewEntity(EntityType("pipeline")); err == nil {
		t.Fatalf("expected error for unknown entity type")
	}
}

func TestEntityTypesStableOrder(t *testing.T) {
	first := EntityTypes()
	second := EntityTypes()
	if len(first) != len(second) {
		t.Fatalf("unstable entity type count")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("entity type order changed at %d: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestIdentityString(t *testing.T) {
	id := Identity{Kind: EntityWell, ID: "w-1"}
	if got := id.String(); got != "well/w-1" {
		t.Fatalf("identity string = %q", got)
	}
}

func TestIdentityOf(t *testing.T) {
	w := &Well{Base: Base{ID: "w-7"}}
	id := IdentityOf(w)
	if id.Kind != EntityWell || id.ID != "w-7" {
		t.Fatalf("unexpected identity %v", id)
	}
}

func TestBaseVersionAndTouch(t *testing.T) {
	b := &Base{}
	b.BumpVersion()
	b.BumpVersion()
	if b.EntityVersion() != 2 {
		t.Fatalf("version = %d, want 2", b.EntityVersion())
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.Touch(now)
	if !b.UpdatedAt.Equal(now) {
		t.Fatalf("updated at = %v, want %v", b.UpdatedAt, now)
	}
}
