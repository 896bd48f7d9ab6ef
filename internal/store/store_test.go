package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{DBPath: filepath.Join(t.TempDir(), "history.db")})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(Options{}); err == nil {
		t.Fatalf("expected error for missing path")
	}
}

func TestRecordAndListDapEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	events := []struct{ name, status, instanceID string }{
		{"chat", "enabled", ""},
		{"chat", "loaded", "inst-1"},
		{"todo", "enabled", ""},
	}
	for _, evt := range events {
		if err := s.RecordDapEvent(ctx, evt.name, evt.status, evt.instanceID, ""); err != nil {
			t.Fatalf("RecordDapEvent: %v", err)
		}
	}

	all, err := s.ListDapEvents(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListDapEvents: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	// Newest first.
	if all[0].Name != "todo" || all[2].Status != "enabled" {
		t.Fatalf("unexpected ordering %+v", all)
	}
	if all[0].CreatedAt.IsZero() {
		t.Fatalf("expected a parsed timestamp")
	}

	chat, err := s.ListDapEvents(ctx, "chat", 1)
	if err != nil {
		t.Fatalf("ListDapEvents filtered: %v", err)
	}
	if len(chat) != 1 || chat[0].Status != "loaded" || chat[0].InstanceID != "inst-1" {
		t.Fatalf("unexpected filtered result %+v", chat)
	}
}

func TestDeleteDapEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordDapEvent(ctx, "chat", "enabled", "", ""); err != nil {
		t.Fatalf("RecordDapEvent: %v", err)
	}
	if err := s.DeleteDapEvents(ctx, "chat"); err != nil {
		t.Fatalf("DeleteDapEvents: %v", err)
	}
	if err := s.DeleteDapEvents(ctx, "chat"); !IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	rw, err := Open(Options{DBPath: path})
	if err != nil {
		t.Fatalf("Open read-write: %v", err)
	}
	if err := rw.RecordDapEvent(context.Background(), "chat", "enabled", "", ""); err != nil {
		t.Fatalf("RecordDapEvent: %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ro, err := Open(Options{DBPath: path, ReadOnly: true})
	if err != nil {
		t.Fatalf("Open read-only: %v", err)
	}
	defer ro.Close()

	if err := ro.RecordDapEvent(context.Background(), "chat", "disabled", "", ""); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
	events, err := ro.ListDapEvents(context.Background(), "chat", 0)
	if err != nil {
		t.Fatalf("ListDapEvents read-only: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}

func TestCloseNilStore(t *testing.T) {
	var s *Store
	if err := s.Close(); err != nil {
		t.Fatalf("Close on nil store: %v", err)
	}
}
