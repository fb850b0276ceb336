package mq

import (
	"sync"
	"time"

	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/db"
	"github.com/hatn-go/hatn/pkg/herr"
)

// Producer is one outbox owner, binding a producer id to a pkg/db store.
// Post calls from one Producer are serialized by mu, matching the
// source's single-threaded ProducerClient state machine and avoiding a
// read-then-write race across the two separate Store calls post() needs
// (pkg/db exposes no compare-and-swap primitive, see DESIGN.md).
type Producer struct {
	store *db.Store
	model *db.Model
	id    string

	mu sync.Mutex
}

// NewProducer registers the mq_messages model on store and returns a
// Producer bound to producerID.
func NewProducer(store *db.Store, producerID string) *Producer {
	m := Model()
	store.RegisterModel(m)
	return &Producer{store: store, model: m, id: producerID}
}

// Post applies one pending write against targetObjectID, following spec.md
// §4.8's Post rules, grounded on producerclient.h's post(): Create fails if
// any pending message (any operation) already exists for the target;
// Delete removes every pending message for the target before inserting the
// delete message; Update merges into a pending Create if one exists,
// keeping the create's original pos, else inserts a new update message.
func (p *Producer) Post(topic string, op Operation, targetObjectID, objectType string, content, notification []byte, expireAt value.Value) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch op {
	case OpCreate:
		return p.postCreate(topic, targetObjectID, objectType, content, notification, expireAt)
	case OpDelete:
		return p.postDelete(topic, targetObjectID, objectType)
	case OpUpdate:
		return p.postUpdate(topic, targetObjectID, objectType, content, notification, expireAt)
	default:
		return herr.New(herr.Mq, herr.ErrInvalidArg, "unknown mq operation "+string(op))
	}
}

func (p *Producer) postCreate(topic, targetObjectID, objectType string, content, notification []byte, expireAt value.Value) error {
	existing, err := p.findAnyPending(topic, targetObjectID)
	if err != nil {
		return err
	}
	if existing != nil {
		return herr.New(herr.Mq, herr.ErrDuplicateObjectID, "a pending message already exists for object "+targetObjectID)
	}

	pos := value.NewObjectID()
	msg := &Message{
		ObjectID:       pos,
		ProducerID:     p.id,
		ProducerPos:    pos,
		TargetObjectID: targetObjectID,
		ObjectType:     objectType,
		Operation:      OpCreate,
		Content:        content,
		Notification:   notification,
		ExpireAt:       expireAt,
	}
	_, err = p.store.Create(topic, p.model, msg.toUnit(p.model.Schema))
	return err
}

func (p *Producer) postDelete(topic, targetObjectID, objectType string) error {
	pos := value.NewObjectID()
	return p.store.Transaction(func(tx *db.Tx) error {
		pending, err := p.queryByTarget(topic, targetObjectID)
		if err != nil {
			return err
		}
		for _, m := range pending {
			if err := p.store.Delete(topic, p.model, m.ObjectID, m.toUnit(p.model.Schema), time.Time{}); err != nil {
				return err
			}
		}

		msg := &Message{
			ObjectID:       pos,
			ProducerID:     p.id,
			ProducerPos:    pos,
			TargetObjectID: targetObjectID,
			ObjectType:     objectType,
			Operation:      OpDelete,
		}
		_, err = p.store.Create(topic, p.model, msg.toUnit(p.model.Schema))
		return err
	})
}

func (p *Producer) postUpdate(topic, targetObjectID, objectType string, content, notification []byte, expireAt value.Value) error {
	create, err := p.findByOperation(topic, targetObjectID, OpCreate)
	if err != nil {
		return err
	}
	if create != nil {
		merged := *create
		merged.Content = content
		merged.Notification = notification
		if !expireAt.IsNull() {
			merged.ExpireAt = expireAt
		}
		return p.replace(topic, create, &merged)
	}

	pos := value.NewObjectID()
	msg := &Message{
		ObjectID:       pos,
		ProducerID:     p.id,
		ProducerPos:    pos,
		TargetObjectID: targetObjectID,
		ObjectType:     objectType,
		Operation:      OpUpdate,
		Content:        content,
		Notification:   notification,
		ExpireAt:       expireAt,
	}
	_, err = p.store.Create(topic, p.model, msg.toUnit(p.model.Schema))
	return err
}

// replace overwrites old's row with new's fields in one transaction,
// reusing old's ObjectID/ProducerPos so the outbox ordering position does
// not change when an update merges into a pending create (spec.md §4.8,
// "keeping the original pos"). Delete-then-Create is used because pkg/db
// has no update primitive, matching pkg/jobsched's replace.
func (p *Producer) replace(topic string, old, newMsg *Message) error {
	return p.store.Transaction(func(tx *db.Tx) error {
		if err := p.store.Delete(topic, p.model, old.ObjectID, old.toUnit(p.model.Schema), time.Time{}); err != nil {
			return err
		}
		newMsg.ObjectID = old.ObjectID
		newMsg.ProducerPos = old.ProducerPos
		_, err := p.store.Create(topic, p.model, newMsg.toUnit(p.model.Schema))
		return err
	})
}

func (p *Producer) queryByTarget(topic, targetObjectID string) ([]*Message, error) {
	q := &db.Query{
		Model:  p.model,
		Index:  idxTargetOnly,
		Topic:  topic,
		Equals: []value.Value{value.String(targetObjectID)},
	}
	units, err := q.Exec(p.store)
	if err != nil {
		return nil, err
	}
	out := make([]*Message, len(units))
	for i, u := range units {
		out[i] = messageFromUnit(u)
	}
	return out, nil
}

func (p *Producer) findAnyPending(topic, targetObjectID string) (*Message, error) {
	msgs, err := p.queryByTarget(topic, targetObjectID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return msgs[0], nil
}

func (p *Producer) findByOperation(topic, targetObjectID string, op Operation) (*Message, error) {
	q := &db.Query{
		Model:  p.model,
		Index:  idxTargetOp,
		Topic:  topic,
		Equals: []value.Value{value.String(targetObjectID), value.String(string(op))},
		Limit:  1,
	}
	units, err := q.Exec(p.store)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, nil
	}
	return messageFromUnit(units[0]), nil
}
