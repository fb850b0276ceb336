package db

import (
	"errors"
	"testing"
	"time"

	"github.com/hatn-go/hatn/pkg/dataunit"
	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/herr"
)

func eventSchema() *dataunit.Schema {
	return dataunit.NewSchema("event").
		AddField(dataunit.Field{ID: 1, Name: "object_id", Kind: dataunit.KObjectID}).
		AddField(dataunit.Field{ID: 2, Name: "created_at", Kind: dataunit.KDateTime}).
		AddField(dataunit.Field{ID: 3, Name: "updated_at", Kind: dataunit.KDateTime}).
		AddField(dataunit.Field{ID: 4, Name: "user", Kind: dataunit.KString}).
		AddField(dataunit.Field{ID: 5, Name: "amount", Kind: dataunit.KInt64}).
		AddField(dataunit.Field{ID: 6, Name: "expires_at", Kind: dataunit.KDateTime})
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newEvent(schema *dataunit.Schema, user string, amount int64) *dataunit.Unit {
	u := dataunit.New(schema)
	u.Set("user", value.String(user))
	u.Set("amount", value.Int64(amount))
	return u
}

func TestCreateGetDelete(t *testing.T) {
	s := openTestStore(t)
	model := &Model{ID: "events", Schema: eventSchema()}
	s.RegisterModel(model)

	u := newEvent(model.Schema, "alice", 10)
	oid, err := s.Create("topic1", model, u)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get("topic1", model, oid, time.Now())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	v, ok := got.Get("user")
	if !ok || v.Str != "alice" {
		t.Fatalf("unexpected user field: %+v ok=%v", v, ok)
	}

	if err := s.Delete("topic1", model, oid, got, time.Now()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get("topic1", model, oid, time.Now()); err == nil {
		t.Fatal("expected error reading deleted row")
	} else {
		var herrErr *herr.Error
		if !errors.As(err, &herrErr) || herrErr.Code != herr.ErrNotFound {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
}

func TestUniqueIndexRejectsDuplicate(t *testing.T) {
	s := openTestStore(t)
	model := &Model{
		ID:     "users",
		Schema: eventSchema(),
		Indexes: []IndexDef{
			{Name: "by_user", Fields: []string{"user"}, Unique: true},
		},
	}
	s.RegisterModel(model)

	if _, err := s.Create("topic1", model, newEvent(model.Schema, "bob", 1)); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	_, err := s.Create("topic1", model, newEvent(model.Schema, "bob", 2))
	if err == nil {
		t.Fatal("expected duplicate-key error")
	}
	var herrErr *herr.Error
	if !errors.As(err, &herrErr) || herrErr.Code != herr.ErrDuplicateUniqueKey {
		t.Fatalf("expected ErrDuplicateUniqueKey, got %v", err)
	}
}

func TestPartitionModes(t *testing.T) {
	s := openTestStore(t)
	model := &Model{
		ID:             "monthly",
		Schema:         eventSchema(),
		PartitionMode:  PartitionMonth,
		PartitionField: "created_at",
	}
	s.RegisterModel(model)

	jan := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	u := newEvent(model.Schema, "jan-user", 1)
	u.Set("created_at", value.DateTimeVal(jan))
	oid, err := s.Create("topic1", model, u)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	parts, err := s.ListPartitions(model.ID)
	if err != nil {
		t.Fatalf("ListPartitions: %v", err)
	}
	if len(parts) != 1 || parts[0] != "2026-01" {
		t.Fatalf("expected partition 2026-01, got %v", parts)
	}

	got, err := s.Get("topic1", model, oid, jan)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v, _ := got.Get("user"); v.Str != "jan-user" {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestRelationCounter(t *testing.T) {
	s := openTestStore(t)
	model := &Model{ID: "counted", Schema: eventSchema()}
	s.RegisterModel(model)

	oid1, err := s.Create("topicA", model, newEvent(model.Schema, "a", 1))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create("topicA", model, newEvent(model.Schema, "b", 1)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	count, err := s.RelationCount(model.ID, "topicA")
	if err != nil {
		t.Fatalf("RelationCount: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}

	u1, err := s.Get("topicA", model, oid1, time.Now())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := s.Delete("topicA", model, oid1, u1, time.Now()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	count, err = s.RelationCount(model.ID, "topicA")
	if err != nil {
		t.Fatalf("RelationCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1 after delete, got %d", count)
	}
}

func TestQueryAscDescAndRange(t *testing.T) {
	s := openTestStore(t)
	model := &Model{
		ID:     "amounts",
		Schema: eventSchema(),
		Indexes: []IndexDef{
			{Name: "by_amount", Fields: []string{"amount"}},
		},
	}
	s.RegisterModel(model)

	for _, amount := range []int64{5, 1, 3, 9, 7} {
		if _, err := s.Create("t", model, newEvent(model.Schema, "u", amount)); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	q := &Query{Model: model, Index: "by_amount", Topic: "t", Order: Asc}
	units, err := q.Exec(s)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	var got []int64
	for _, u := range units {
		v, _ := u.Get("amount")
		got = append(got, v.I64)
	}
	want := []int64{1, 3, 5, 7, 9}
	if !int64SliceEqual(got, want) {
		t.Fatalf("asc order = %v, want %v", got, want)
	}

	qd := &Query{Model: model, Index: "by_amount", Topic: "t", Order: Desc}
	units, err = qd.Exec(s)
	if err != nil {
		t.Fatalf("Exec desc: %v", err)
	}
	got = nil
	for _, u := range units {
		v, _ := u.Get("amount")
		got = append(got, v.I64)
	}
	wantDesc := []int64{9, 7, 5, 3, 1}
	if !int64SliceEqual(got, wantDesc) {
		t.Fatalf("desc order = %v, want %v", got, wantDesc)
	}

	qr := &Query{
		Model: model, Index: "by_amount", Topic: "t", Order: Asc,
		Ranges: []value.Interval{{Low: value.ClosedAt(value.Int64(3)), High: value.ClosedAt(value.Int64(7))}},
	}
	units, err = qr.Exec(s)
	if err != nil {
		t.Fatalf("Exec range: %v", err)
	}
	got = nil
	for _, u := range units {
		v, _ := u.Get("amount")
		got = append(got, v.I64)
	}
	wantRange := []int64{3, 5, 7}
	if !int64SliceEqual(got, wantRange) {
		t.Fatalf("range order = %v, want %v", got, wantRange)
	}
}

func TestQueryLimit(t *testing.T) {
	s := openTestStore(t)
	model := &Model{
		ID:     "limited",
		Schema: eventSchema(),
		Indexes: []IndexDef{
			{Name: "by_amount", Fields: []string{"amount"}},
		},
	}
	s.RegisterModel(model)
	for _, amount := range []int64{1, 2, 3, 4, 5} {
		if _, err := s.Create("t", model, newEvent(model.Schema, "u", amount)); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	q := &Query{Model: model, Index: "by_amount", Topic: "t", Order: Asc, Limit: 2}
	units, err := q.Exec(s)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("expected 2 results, got %d", len(units))
	}
}

func TestSweepExpiredIndexRows(t *testing.T) {
	s := openTestStore(t)
	model := &Model{
		ID:     "ttlmodel",
		Schema: eventSchema(),
		Indexes: []IndexDef{
			{Name: "by_user", Fields: []string{"user"}, TTLField: "expires_at"},
		},
	}
	s.RegisterModel(model)

	u := newEvent(model.Schema, "expiring", 1)
	u.Set("expires_at", value.DateTimeVal(time.Now().Add(-time.Hour)))
	oid, err := s.Create("t", model, u)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.SweepExpired(time.Now()); err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}

	if _, err := s.Get("t", model, oid, time.Now()); err == nil {
		t.Fatal("expected expired row to be swept")
	}
}

func TestExpiredRowHiddenBeforeSweep(t *testing.T) {
	s := openTestStore(t)
	model := &Model{
		ID:     "ttllagmodel",
		Schema: eventSchema(),
		Indexes: []IndexDef{
			{Name: "by_user", Fields: []string{"user"}, TTLField: "expires_at"},
		},
	}
	s.RegisterModel(model)

	u := newEvent(model.Schema, "expiring", 1)
	u.Set("expires_at", value.DateTimeVal(time.Now().Add(-time.Hour)))
	oid, err := s.Create("t", model, u)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// No SweepExpired has run yet: the data and index rows are both still
	// physically present, but Get and Exec must independently reject the
	// row because its own expires_at has passed.
	if _, err := s.Get("t", model, oid, time.Now()); err == nil {
		t.Fatal("expected error reading unswept expired row")
	} else {
		var herrErr *herr.Error
		if !errors.As(err, &herrErr) || herrErr.Code != herr.ErrNotFound {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}

	q := &Query{Model: model, Index: "by_user", Topic: "t", Equals: []value.Value{value.String("expiring")}}
	units, err := q.Exec(s)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(units) != 0 {
		t.Fatalf("expected unswept expired row to be excluded from Exec, got %d results", len(units))
	}
}

func int64SliceEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
