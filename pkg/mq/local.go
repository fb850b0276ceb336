package mq

import (
	"time"

	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/db"
)

// RemoveLocalExpired deletes every pending message in topic whose
// expire_at has passed, without attempting to send them. producerclient.h
// declares this as an empty stub (removeLocalExpired); the scan-and-drop
// behavior here follows spec.md §4.8's "deletes without sending if
// expire_at <= now" delivery rule applied outside the regular cycle.
func (p *Producer) RemoveLocalExpired(topic string) (int, error) {
	msgs, err := p.allPending(topic)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	var n int
	for _, m := range msgs {
		if m.ExpireAt.IsNull() || m.ExpireAt.DT.After(now) {
			continue
		}
		if err := p.deleteRow(topic, m); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// RemoveLocalPos deletes the single pending message at pos, if any.
func (p *Producer) RemoveLocalPos(topic string, pos value.ObjectID) error {
	q := &db.Query{
		Model:  p.model,
		Index:  idxProducerPos,
		Topic:  topic,
		Equals: []value.Value{value.String(p.id), value.ObjectIDVal(pos)},
		Limit:  1,
	}
	units, err := q.Exec(p.store)
	if err != nil {
		return err
	}
	if len(units) == 0 {
		return nil
	}
	return p.deleteRow(topic, messageFromUnit(units[0]))
}

// RemoveLocal deletes every pending message (any operation) for each of
// targetObjectIDs.
func (p *Producer) RemoveLocal(topic string, targetObjectIDs []string) error {
	for _, id := range targetObjectIDs {
		msgs, err := p.queryByTarget(topic, id)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if err := p.deleteRow(topic, m); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadLocal returns every pending message for each of targetObjectIDs
// without removing them.
func (p *Producer) ReadLocal(topic string, targetObjectIDs []string) ([]*Message, error) {
	var out []*Message
	for _, id := range targetObjectIDs {
		msgs, err := p.queryByTarget(topic, id)
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
	}
	return out, nil
}

func (p *Producer) allPending(topic string) ([]*Message, error) {
	q := &db.Query{
		Model:  p.model,
		Index:  idxProducerPos,
		Topic:  topic,
		Equals: []value.Value{value.String(p.id)},
		Order:  db.Asc,
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

func (p *Producer) deleteRow(topic string, m *Message) error {
	return p.store.Delete(topic, p.model, m.ObjectID, m.toUnit(p.model.Schema), time.Time{})
}
