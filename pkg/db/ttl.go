package db

import (
	"bytes"
	"time"

	"github.com/hatn-go/hatn/pkg/dataunit"
	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/herr"
	bolt "go.etcd.io/bbolt"
)

// rowExpired reports whether u's ttlField value has passed now. A row with
// no such field, or whose value isn't a DateTime, is never considered
// expired by this check.
func rowExpired(u *dataunit.Unit, ttlField string, now time.Time) bool {
	if ttlField == "" {
		return false
	}
	v, ok := u.Get(ttlField)
	if !ok || v.Kind != value.KindDateTime {
		return false
	}
	return v.DT.Before(now)
}

// modelRowExpired reports whether any of model's TTL-indexed fields on u
// has passed now, independent of whether SweepExpired has collected the
// row yet (spec.md §4.4 "readers also check timestamp to tolerate lagging
// compaction"). Get and Exec both call this so an expired-but-unswept row
// reads back as NotFound rather than waiting for the next sweep.
func modelRowExpired(model *Model, u *dataunit.Unit, now time.Time) bool {
	for _, ix := range model.Indexes {
		if rowExpired(u, ix.TTLField, now) {
			return true
		}
	}
	return false
}

// SweepExpired reclaims every row past its TTL: rows under a ttl-tagged
// index whose key's trailing minute-precision timestamp has passed, and
// model-topic relation counters whose zero-count grace period elapsed.
// This stands in for the source's RocksDB compaction filter, since bbolt
// has none. Get and Exec independently reject expired-but-unswept rows via
// modelRowExpired, so this only needs to run often enough to reclaim space,
// not to preserve read correctness.
func (s *Store) SweepExpired(now time.Time) error {
	if err := s.sweepExpiredRelations(); err != nil {
		return err
	}
	return s.sweepExpiredIndexRows(now)
}

func (s *Store) sweepExpiredIndexRows(now time.Time) error {
	nowStamp := []byte(now.UTC().Format("200601021504"))

	return s.db.Update(func(tx *bolt.Tx) error {
		for modelID, model := range s.models {
			ttlIndexes := map[string]bool{}
			for _, ix := range model.Indexes {
				if ix.TTLField != "" {
					ttlIndexes[crc32Hex(modelID, ix.Name)] = true
				}
			}
			if len(ttlIndexes) == 0 {
				continue
			}

			modelBkt := tx.Bucket([]byte(modelID))
			if modelBkt == nil {
				continue
			}
			meta := tx.Bucket(bucketMeta)
			partitions := splitLines(meta.Get([]byte("partitions/" + modelID)))
			for _, partKey := range partitions {
				partBkt := modelBkt.Bucket([]byte(partKey))
				if partBkt == nil {
					continue
				}
				dataBkt := partBkt.Bucket(bucketData)
				idxBkt := partBkt.Bucket(bucketIndex)
				if dataBkt == nil || idxBkt == nil {
					continue
				}
				if err := sweepPartitionIndexRows(dataBkt, idxBkt, modelID, ttlIndexes, nowStamp); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func sweepPartitionIndexRows(dataBkt, idxBkt *bolt.Bucket, modelID string, ttlIndexes map[string]bool, nowStamp []byte) error {
	c := idxBkt.Cursor()
	var expired [][]byte
	for k, v := c.First(); k != nil; k, v = c.Next() {
		segs := splitSep(k)
		if len(segs) < 2 || !ttlIndexes[string(segs[1])] {
			continue
		}
		last := segs[len(segs)-1]
		if len(last) != len(nowStamp) {
			continue // not a timestamp suffix (e.g. this row carries no ttl)
		}
		if bytes.Compare(last, nowStamp) >= 0 {
			continue // not expired yet
		}
		expired = append(expired, append([]byte{}, k...))
		if oid, ok := extractOID(k, v); ok {
			topic := string(segs[0])
			if dk := dataKey(topic, modelID, oid); dataBkt.Get(dk) != nil {
				if err := dataBkt.Delete(dk); err != nil {
					return herr.Wrap(herr.Db, herr.ErrDbOperationFailed, "deleting expired data row", err)
				}
			}
		}
	}
	for _, k := range expired {
		if err := idxBkt.Delete(k); err != nil {
			return herr.Wrap(herr.Db, herr.ErrDbOperationFailed, "deleting expired index row", err)
		}
	}
	return nil
}

func splitSep(k []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, b := range k {
		if b == fieldSep {
			out = append(out, k[start:i])
			start = i + 1
		}
	}
	out = append(out, k[start:])
	return out
}
