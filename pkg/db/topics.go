package db

import (
	"encoding/binary"
	"time"

	"github.com/hatn-go/hatn/pkg/herr"
	bolt "go.etcd.io/bbolt"
)

// relationValue is the counter plus optional expiration stamp stored per
// (modelID, topic) pair, generalizing
// original_source/db/plugins/rocksdb/src/modeltopics.cpp's RocksDB merge
// operator into a read-modify-write cycle inside the same bolt.Tx (bbolt
// has no merge operator).
type relationValue struct {
	Count    int64
	ExpireAt int64 // unix seconds; 0 means "no TTL set"
}

func relationKey(modelID, topic string) []byte {
	return []byte(modelID + "\x1f" + topic)
}

func decodeRelation(b []byte) relationValue {
	if len(b) < 16 {
		return relationValue{}
	}
	return relationValue{
		Count:    int64(binary.BigEndian.Uint64(b[0:8])),
		ExpireAt: int64(binary.BigEndian.Uint64(b[8:16])),
	}
}

func encodeRelation(v relationValue) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], uint64(v.Count))
	binary.BigEndian.PutUint64(b[8:16], uint64(v.ExpireAt))
	return b
}

// relationTTL is how long a (modelID, topic) relation counter survives
// after hitting zero before the sweep reclaims its row (spec.md §4.4:
// "a TTL column is set so the relation row expires and cleans itself up").
const relationTTL = 24 * time.Hour

// mergeRelationCounter applies delta to the (modelID, topic) relation
// counter, setting an expiration stamp when the counter reaches zero and
// clearing it otherwise (spec.md §4.4 model-topic relation).
func mergeRelationCounter(tx *bolt.Tx, modelID, topic string, delta int64) error {
	bkt := tx.Bucket(bucketTopics)
	key := relationKey(modelID, topic)

	cur := decodeRelation(bkt.Get(key))
	cur.Count += delta
	if cur.Count <= 0 {
		cur.Count = 0
		cur.ExpireAt = time.Now().Add(relationTTL).Unix()
	} else {
		cur.ExpireAt = 0
	}

	if err := bkt.Put(key, encodeRelation(cur)); err != nil {
		return herr.Wrap(herr.Db, herr.ErrModelTopicRelationSave, "saving relation counter", err)
	}
	return nil
}

// RelationCount answers count(topic, model) by reading the single relation
// cell rather than scanning data (spec.md §4.4).
func (s *Store) RelationCount(modelID, topic string) (int64, error) {
	var count int64
	err := s.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketTopics)
		raw := bkt.Get(relationKey(modelID, topic))
		if raw == nil {
			return nil
		}
		rv := decodeRelation(raw)
		if rv.ExpireAt != 0 && rv.ExpireAt < time.Now().Unix() {
			return nil
		}
		count = rv.Count
		return nil
	})
	if err != nil {
		return 0, herr.Wrap(herr.Db, herr.ErrModelTopicRelationRead, "reading relation counter", err)
	}
	return count, nil
}

// sweepExpiredRelations deletes every relation row whose expiration has
// passed, the bbolt stand-in for the source's RocksDB compaction filter
// (spec.md §4.4).
func (s *Store) sweepExpiredRelations() error {
	now := time.Now().Unix()
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketTopics)
		c := bkt.Cursor()
		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			rv := decodeRelation(v)
			if rv.ExpireAt != 0 && rv.ExpireAt < now {
				toDelete = append(toDelete, append([]byte{}, k...))
			}
		}
		for _, k := range toDelete {
			if err := bkt.Delete(k); err != nil {
				return herr.Wrap(herr.Db, herr.ErrModelTopicRelationDel, "deleting expired relation", err)
			}
		}
		return nil
	})
}
