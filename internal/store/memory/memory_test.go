package memory

import (
	"context"
	"errors"
	"testing"

	"lorekeeper/internal/entity"
	"lorekeeper/internal/store"
)

func TestUpsertReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	original := &entity.Character{Name: "Mira", Role: "scout"}
	if err := s.Upsert(ctx, "novel", original); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	original.Role = "changed after write"

	got, err := s.Get(ctx, "novel", entity.KindCharacter, "MIRA")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.(*entity.Character).Role != "scout" {
		t.Fatalf("expected stored record to be isolated from caller mutation")
	}
}

func TestListOrderedByKey(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, name := range []string{"Zed", "alba", "Mira"} {
		if err := s.Upsert(ctx, "novel", &entity.Character{Name: name}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	records, err := s.List(ctx, "novel", entity.KindCharacter)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var keys []string
	for _, record := range records {
		keys = append(keys, entity.Key(record))
	}
	if len(keys) != 3 || keys[0] != "alba" || keys[1] != "mira" || keys[2] != "zed" {
		t.Fatalf("unexpected order: %v", keys)
	}
}

func TestUpsertMissingIdentity(t *testing.T) {
	err := New().Upsert(context.Background(), "novel", &entity.WorldElement{Description: "no title"})
	var writeErr *store.WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("expected write error, got %v", err)
	}
	if !errors.Is(err, store.ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}
