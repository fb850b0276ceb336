package db

import (
	"bytes"
	"time"

	"github.com/hatn-go/hatn/pkg/dataunit"
	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/herr"
	bolt "go.etcd.io/bbolt"
)

// Order selects ascending or descending iteration (spec.md §4.4).
type Order int

const (
	Asc Order = iota
	Desc
)

// Query describes one lookup against an index: an ordered list of
// equality conditions on the index's leading fields, an optional set of
// ranges (scalar-operator or interval conditions) on the field that
// follows them, a topic selector, a result limit, and an order (spec.md
// §4.4). Vector-of-intervals conditions are expressed by passing multiple
// Ranges; Exec sorts and merges them via value.SortAndMerge before
// iterating, per the query path's "vector-of-intervals → sorted, merged
// intervals" rule.
type Query struct {
	Model  *Model
	Index  string
	Topic  string
	Equals []value.Value
	Ranges []value.Interval
	Limit  int
	Order  Order
}

// Exec iterates every known partition of q.Model in the order the
// partitions were first written, reversed for Desc (spec.md §4.4
// "enumerating partition ranges in order, opening iterators on each in
// turn"), stopping once Limit results have been collected.
func (q *Query) Exec(s *Store) ([]*dataunit.Unit, error) {
	if _, err := s.model(q.Model.ID); err != nil {
		return nil, err
	}
	ix, ok := q.Model.index(q.Index)
	if !ok {
		return nil, herr.New(herr.Db, herr.ErrModelNotFound, "unknown index "+q.Index)
	}
	indexID := crc32Hex(q.Model.ID, ix.Name)
	prefix := indexPrefix(q.Topic, indexID, q.Equals)

	partitions, err := s.ListPartitions(q.Model.ID)
	if err != nil {
		return nil, err
	}
	if q.Order == Desc {
		reversed := make([]string, len(partitions))
		for i, p := range partitions {
			reversed[len(partitions)-1-i] = p
		}
		partitions = reversed
	}

	ranges := value.SortAndMerge(q.Ranges)
	if len(ranges) == 0 {
		ranges = []value.Interval{{Low: value.First_(), High: value.Last_()}}
	}
	if q.Order == Desc {
		for i, j := 0, len(ranges)-1; i < j; i, j = i+1, j-1 {
			ranges[i], ranges[j] = ranges[j], ranges[i]
		}
	}

	now := time.Now()
	var results []*dataunit.Unit
	err = s.View(func(tx *bolt.Tx) error {
		for _, partKey := range partitions {
			dataBkt, idxBkt, err := partitionBuckets(tx, q.Model.ID, partKey, false)
			if err != nil {
				continue // partitions this index never wrote to
			}
			for _, rng := range ranges {
				scanRange(idxBkt, dataBkt, q.Topic, q.Model, prefix, rng, q.Order, q.Limit, now, &results)
				if q.Limit > 0 && len(results) >= q.Limit {
					return nil
				}
			}
		}
		return nil
	})
	return results, err
}

func indexPrefix(topic, indexID string, equals []value.Value) []byte {
	p := make([]byte, 0, 32)
	p = append(p, topic...)
	p = append(p, fieldSep)
	p = append(p, indexID...)
	for _, v := range equals {
		p = append(p, fieldSep)
		p = append(p, encodeFieldValue(v)...)
	}
	return p
}

// scanRange walks idxBkt's keys under prefix whose trailing field value
// falls in rng, fetching and decoding the corresponding data row for each
// match until limit results have been collected across the whole query.
// Rows whose TTL field has passed now are skipped even if SweepExpired
// hasn't collected them yet (spec.md §4.4 "readers also check timestamp to
// tolerate lagging compaction").
func scanRange(idxBkt, dataBkt *bolt.Bucket, topic string, model *Model, prefix []byte, rng value.Interval, order Order, limit int, now time.Time, results *[]*dataunit.Unit) {
	lowBound := append([]byte{}, prefix...)
	if rng.Low.Kind != value.EndFirst {
		lowBound = append(lowBound, fieldSep)
		lowBound = append(lowBound, encodeFieldValue(rng.Low.Value)...)
	}
	var highBound []byte
	if rng.High.Kind != value.EndLast {
		highBound = append(append([]byte{}, prefix...), fieldSep)
		highBound = append(highBound, encodeFieldValue(rng.High.Value)...)
	}

	accept := func(k, v []byte) bool {
		if !bytes.HasPrefix(k, prefix) {
			return false
		}
		if highBound != nil {
			n := len(highBound)
			if len(k) < n {
				n = len(k)
			}
			cmp := bytes.Compare(k[:n], highBound)
			if cmp > 0 || (cmp == 0 && rng.High.Kind == value.Open) {
				return false
			}
		}
		if rng.Low.Kind == value.Open && bytes.HasPrefix(k, lowBound) {
			return true // equal to an open lower bound: skip
		}
		oid, ok := extractOID(k, v)
		if !ok {
			return true
		}
		raw := dataBkt.Get(dataKey(topic, model.ID, oid))
		if raw == nil {
			return true
		}
		u, err := dataunit.Parse(model.Schema, raw)
		if err != nil {
			return true
		}
		if modelRowExpired(model, u, now) {
			return true
		}
		*results = append(*results, u)
		return limit <= 0 || len(*results) < limit
	}

	c := idxBkt.Cursor()
	if order == Desc {
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if bytes.Compare(k, lowBound) < 0 {
				return
			}
			if !bytes.HasPrefix(k, prefix) {
				continue
			}
			if highBound != nil && bytes.Compare(k, highBound) >= 0 && !(rng.High.Kind == value.Closed && bytes.HasPrefix(k, highBound)) {
				continue // above the upper bound
			}
			if !accept(k, v) {
				return
			}
		}
		return
	}

	for k, v := c.Seek(lowBound); k != nil; k, v = c.Next() {
		if !accept(k, v) {
			return
		}
	}
}

// extractOID recovers the 12-byte ObjectId stored as an index row's value,
// falling back to the 12 bytes trailing the key (spec.md §4.4: "for unique
// indexes the trailing oid is omitted").
func extractOID(k, v []byte) (value.ObjectID, bool) {
	if len(v) == 12 {
		oid, err := value.ObjectIDFromBytes(v)
		return oid, err == nil
	}
	if len(k) >= 12 {
		oid, err := value.ObjectIDFromBytes(k[len(k)-12:])
		return oid, err == nil
	}
	return value.ObjectID{}, false
}
