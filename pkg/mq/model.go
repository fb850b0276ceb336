// Package mq implements the Producer Message Queue (spec.md §4.8): an
// outbox of pending messages persisted alongside the caller's own writes,
// drained by a delivery loop that sends each message to a remote service
// over pkg/rpc. It is grounded on original_source/mq/include/hatn/mq/
// producerclient.h's ProducerClient, with its post() Create/Update/Delete
// collapsing logic carried over closely and its unimplemented dequeue/
// removeLocal* stubs designed fresh from spec.md §4.8's prose, following
// pkg/jobsched's Delete-then-Create-inside-one-Transaction idiom.
package mq

import (
	"github.com/hatn-go/hatn/pkg/dataunit"
	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/db"
)

const modelID = "mq_messages"

const (
	idxTargetOp    = "by_target_op"
	idxTargetOnly  = "by_target_only"
	idxProducerPos = "by_producer_pos"
)

// Operation is the kind of mutation a message records against its target
// object (spec.md line 55 glossary: operation∈{create,update,delete}).
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// messageSchema backs the mq_messages model. target_object_id and
// object_type name the business object the message concerns; this is
// distinct from the row's own object_id (pkg/db's intrinsic row key, reused
// below as the message's producer_pos, since both must be a monotonic
// ObjectId minted at post() time).
func messageSchema() *dataunit.Schema {
	return dataunit.NewSchema("mq_message").
		AddField(dataunit.Field{ID: 1, Name: "object_id", Kind: dataunit.KObjectID}).
		AddField(dataunit.Field{ID: 2, Name: "created_at", Kind: dataunit.KDateTime}).
		AddField(dataunit.Field{ID: 3, Name: "updated_at", Kind: dataunit.KDateTime}).
		AddField(dataunit.Field{ID: 4, Name: "producer_id", Kind: dataunit.KString}).
		AddField(dataunit.Field{ID: 5, Name: "producer_pos", Kind: dataunit.KObjectID}).
		AddField(dataunit.Field{ID: 6, Name: "target_object_id", Kind: dataunit.KString}).
		AddField(dataunit.Field{ID: 7, Name: "object_type", Kind: dataunit.KString}).
		AddField(dataunit.Field{ID: 8, Name: "operation", Kind: dataunit.KString}).
		AddField(dataunit.Field{ID: 9, Name: "content", Kind: dataunit.KBytes}).
		AddField(dataunit.Field{ID: 10, Name: "notification", Kind: dataunit.KBytes}).
		AddField(dataunit.Field{ID: 11, Name: "expire_at", Kind: dataunit.KDateTime})
}

// Model returns the pkg/db Model describing mq_messages. Index layout
// matches spec.md §4.8: a unique-in-partition index on (target_object_id,
// operation), a non-unique index on target_object_id alone (used to find
// any pending message regardless of operation, needed by the Create and
// Delete post rules), and a non-unique index on (producer_id,
// producer_pos) driving the delivery loop's ordered scan.
func Model() *db.Model {
	return &db.Model{
		ID:            modelID,
		Schema:        messageSchema(),
		PartitionMode: db.PartitionNone,
		Indexes: []db.IndexDef{
			{Name: idxTargetOp, Fields: []string{"target_object_id", "operation"}, UniqueInPartition: true},
			{Name: idxTargetOnly, Fields: []string{"target_object_id"}},
			{Name: idxProducerPos, Fields: []string{"producer_id", "producer_pos"}},
		},
	}
}

// Message is the Go-native view of one mq_messages row, matching spec.md
// line 55's MessageQueue Item glossary entry. TargetObjectID/ObjectType
// name the business object being mutated; ProducerPos is the ordering key
// and equals ObjectID (both are minted together at post() time).
type Message struct {
	ObjectID       value.ObjectID
	ProducerID     string
	ProducerPos    value.ObjectID
	TargetObjectID string
	ObjectType     string
	Operation      Operation
	Content        []byte
	Notification   []byte
	ExpireAt       value.Value // Null when the message never expires
}

func messageFromUnit(u *dataunit.Unit) *Message {
	m := &Message{}
	if v, ok := u.Get("object_id"); ok {
		m.ObjectID = v.OID
	}
	if v, ok := u.Get("producer_id"); ok {
		m.ProducerID = v.Str
	}
	if v, ok := u.Get("producer_pos"); ok {
		m.ProducerPos = v.OID
	}
	if v, ok := u.Get("target_object_id"); ok {
		m.TargetObjectID = v.Str
	}
	if v, ok := u.Get("object_type"); ok {
		m.ObjectType = v.Str
	}
	if v, ok := u.Get("operation"); ok {
		m.Operation = Operation(v.Str)
	}
	if v, ok := u.Get("content"); ok {
		m.Content = v.Blob
	}
	if v, ok := u.Get("notification"); ok {
		m.Notification = v.Blob
	}
	if v, ok := u.Get("expire_at"); ok {
		m.ExpireAt = v
	}
	return m
}

func (m *Message) toUnit(schema *dataunit.Schema) *dataunit.Unit {
	u := dataunit.New(schema)
	if !m.ObjectID.IsZero() {
		u.Set("object_id", value.ObjectIDVal(m.ObjectID))
	}
	u.Set("producer_id", value.String(m.ProducerID))
	u.Set("producer_pos", value.ObjectIDVal(m.ProducerPos))
	u.Set("target_object_id", value.String(m.TargetObjectID))
	u.Set("object_type", value.String(m.ObjectType))
	u.Set("operation", value.String(string(m.Operation)))
	u.Set("content", value.Bytes(m.Content))
	u.Set("notification", value.Bytes(m.Notification))
	if m.ExpireAt.IsNull() {
		u.Set("expire_at", value.Null())
	} else {
		u.Set("expire_at", m.ExpireAt)
	}
	return u
}
