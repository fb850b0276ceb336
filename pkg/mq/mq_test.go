package mq

import (
	"testing"

	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/db"
	"github.com/hatn-go/hatn/pkg/herr"
)

func openTestStore(t *testing.T) *db.Store {
	t.Helper()
	s, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostCreateThenDuplicateCreateFails(t *testing.T) {
	store := openTestStore(t)
	p := NewProducer(store, "producer-1")

	if err := p.Post("default", OpCreate, "order-1", "order", []byte("v1"), nil, value.Null()); err != nil {
		t.Fatalf("first create: %v", err)
	}

	err := p.Post("default", OpCreate, "order-1", "order", []byte("v2"), nil, value.Null())
	if err == nil {
		t.Fatalf("expected duplicate-object-id error, got nil")
	}
	dup, ok := err.(*herr.Error)
	if !ok || dup.Code != herr.ErrDuplicateObjectID {
		t.Fatalf("got %v, want ErrDuplicateObjectID", err)
	}
}

func TestPostUpdateMergesIntoPendingCreate(t *testing.T) {
	store := openTestStore(t)
	p := NewProducer(store, "producer-2")

	if err := p.Post("default", OpCreate, "order-2", "order", []byte("v1"), nil, value.Null()); err != nil {
		t.Fatalf("create: %v", err)
	}
	created, err := p.findByOperation("default", "order-2", OpCreate)
	if err != nil || created == nil {
		t.Fatalf("findByOperation create: %v", err)
	}
	originalPos := created.ProducerPos

	if err := p.Post("default", OpUpdate, "order-2", "order", []byte("v2"), []byte("note"), value.Null()); err != nil {
		t.Fatalf("update: %v", err)
	}

	msgs, err := p.queryByTarget("default", "order-2")
	if err != nil {
		t.Fatalf("queryByTarget: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d pending messages, want 1 (update must merge, not append)", len(msgs))
	}
	merged := msgs[0]
	if merged.Operation != OpCreate {
		t.Fatalf("merged row operation = %q, want create", merged.Operation)
	}
	if string(merged.Content) != "v2" {
		t.Fatalf("merged content = %q, want v2", merged.Content)
	}
	if string(merged.Notification) != "note" {
		t.Fatalf("merged notification = %q, want note", merged.Notification)
	}
	if merged.ProducerPos != originalPos {
		t.Fatalf("merge must keep the original pos")
	}
}

func TestPostUpdateWithoutPendingCreateInsertsNewMessage(t *testing.T) {
	store := openTestStore(t)
	p := NewProducer(store, "producer-3")

	if err := p.Post("default", OpUpdate, "order-3", "order", []byte("v1"), nil, value.Null()); err != nil {
		t.Fatalf("update: %v", err)
	}

	msgs, err := p.queryByTarget("default", "order-3")
	if err != nil {
		t.Fatalf("queryByTarget: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Operation != OpUpdate {
		t.Fatalf("got %+v, want one pending update message", msgs)
	}
}

func TestPostDeleteDropsAllPendingMessages(t *testing.T) {
	store := openTestStore(t)
	p := NewProducer(store, "producer-4")

	if err := p.Post("default", OpCreate, "order-4", "order", []byte("v1"), nil, value.Null()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := p.Post("default", OpDelete, "order-4", "order", nil, nil, value.Null()); err != nil {
		t.Fatalf("delete: %v", err)
	}

	msgs, err := p.queryByTarget("default", "order-4")
	if err != nil {
		t.Fatalf("queryByTarget: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Operation != OpDelete {
		t.Fatalf("got %+v, want exactly one pending delete message", msgs)
	}
}

func TestProducerPosMonotonicOrdering(t *testing.T) {
	store := openTestStore(t)
	p := NewProducer(store, "producer-5")

	for _, id := range []string{"a", "b", "c"} {
		if err := p.Post("default", OpCreate, id, "order", nil, nil, value.Null()); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	msgs, err := p.allPending("default")
	if err != nil {
		t.Fatalf("allPending: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if !msgs[i-1].ProducerPos.Less(msgs[i].ProducerPos) {
			t.Fatalf("messages not in ascending pos order at index %d", i)
		}
	}
}

func TestRemoveLocalAndReadLocal(t *testing.T) {
	store := openTestStore(t)
	p := NewProducer(store, "producer-6")

	if err := p.Post("default", OpCreate, "order-6", "order", []byte("v1"), nil, value.Null()); err != nil {
		t.Fatalf("create: %v", err)
	}

	read, err := p.ReadLocal("default", []string{"order-6"})
	if err != nil {
		t.Fatalf("ReadLocal: %v", err)
	}
	if len(read) != 1 {
		t.Fatalf("got %d, want 1", len(read))
	}

	if err := p.RemoveLocal("default", []string{"order-6"}); err != nil {
		t.Fatalf("RemoveLocal: %v", err)
	}
	remaining, err := p.ReadLocal("default", []string{"order-6"})
	if err != nil {
		t.Fatalf("ReadLocal after remove: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("got %d remaining, want 0 after RemoveLocal", len(remaining))
	}
}
