package db

import (
	"fmt"
	"time"

	"github.com/hatn-go/hatn/pkg/dataunit"
	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/herr"
	"github.com/hatn-go/hatn/pkg/metrics"
	bolt "go.etcd.io/bbolt"
)

// Create allocates an ObjectId if unset, stamps created_at/updated_at,
// and writes the data row plus every index row in one transaction, then
// merges +1 into the (modelId, topic) relation counter (spec.md §4.4
// write path). u must be bound to model.Schema.
func (s *Store) Create(topic string, model *Model, u *dataunit.Unit) (value.ObjectID, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.DbOperationDuration, model.ID, "create")

	if _, err := s.model(model.ID); err != nil {
		metrics.DbOperationsTotal.WithLabelValues(model.ID, "create", "error").Inc()
		return value.ObjectID{}, err
	}

	var oid value.ObjectID
	if v, ok := u.Get("object_id"); ok && !v.IsNull() {
		oid = v.OID
	} else {
		oid = value.NewObjectID()
	}
	now := time.Now()
	if !u.IsSet("created_at") {
		u.Set("created_at", value.DateTimeVal(now))
	}
	u.Set("updated_at", value.DateTimeVal(now))
	u.Set("object_id", value.ObjectIDVal(oid))

	partTime := now
	if model.PartitionField != "" {
		if v, ok := u.Get(model.PartitionField); ok && v.Kind == value.KindDateTime {
			partTime = v.DT
		}
	}
	partKey := partitionKey(model.PartitionMode, partTime)

	err := s.Transaction(func(tx *Tx) error {
		dataBkt, idxBkt, err := partitionBuckets(tx.bolt, model.ID, partKey, true)
		if err != nil {
			return err
		}

		body, err := dataunit.Serialize(u, dataunit.ModeSolid, nil)
		if err != nil {
			return herr.Wrap(herr.Db, herr.ErrDbOperationFailed, "serializing data row", err)
		}
		if err := dataBkt.Put(dataKey(topic, model.ID, oid), body); err != nil {
			return herr.Wrap(herr.Db, herr.ErrDbOperationFailed, "writing data row", err)
		}

		for _, ix := range model.Indexes {
			if err := writeIndexRow(idxBkt, topic, model.ID, ix, u, oid); err != nil {
				return err
			}
		}

		return mergeRelationCounter(tx.bolt, model.ID, topic, 1)
	})
	if err != nil {
		metrics.DbOperationsTotal.WithLabelValues(model.ID, "create", "error").Inc()
		return value.ObjectID{}, err
	}
	metrics.DbOperationsTotal.WithLabelValues(model.ID, "create", "ok").Inc()
	return oid, nil
}

func writeIndexRow(idxBkt *bolt.Bucket, topic, modelID string, ix IndexDef, u *dataunit.Unit, oid value.ObjectID) error {
	indexID := crc32Hex(modelID, ix.Name)

	var fieldVals []value.Value
	for _, fname := range ix.Fields {
		v, _ := u.Get(fname)
		fieldVals = append(fieldVals, v)
	}

	includeOID := !ix.Unique && !ix.UniqueInPartition
	key := indexKey(topic, indexID, fieldVals, oid, includeOID)

	if ix.TTLField != "" {
		if v, ok := u.Get(ix.TTLField); ok && v.Kind == value.KindDateTime {
			key = append(key, fieldSep)
			key = append(key, []byte(v.DT.UTC().Format("200601021504"))...)
		}
	}

	if ix.Unique || ix.UniqueInPartition {
		if existing := idxBkt.Get(key); existing != nil {
			return herr.New(herr.Db, herr.ErrDuplicateUniqueKey,
				fmt.Sprintf("duplicate key for unique index %s", ix.Name))
		}
		return idxBkt.Put(key, oid.Bytes())
	}
	// The oid is also stored as the value: a TTL suffix follows it in the key.
	return idxBkt.Put(key, oid.Bytes())
}

// Delete removes the data row and every index row for oid in topic/partKey.
func (s *Store) Delete(topic string, model *Model, oid value.ObjectID, u *dataunit.Unit, partTime time.Time) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.DbOperationDuration, model.ID, "delete")

	partKey := partitionKey(model.PartitionMode, partTime)
	err := s.Transaction(func(tx *Tx) error {
		dataBkt, idxBkt, err := partitionBuckets(tx.bolt, model.ID, partKey, false)
		if err != nil {
			return err
		}
		if err := dataBkt.Delete(dataKey(topic, model.ID, oid)); err != nil {
			return herr.Wrap(herr.Db, herr.ErrDbOperationFailed, "deleting data row", err)
		}
		for _, ix := range model.Indexes {
			indexID := crc32Hex(model.ID, ix.Name)
			var fieldVals []value.Value
			for _, fname := range ix.Fields {
				v, _ := u.Get(fname)
				fieldVals = append(fieldVals, v)
			}
			includeOID := !ix.Unique && !ix.UniqueInPartition
			key := indexKey(topic, indexID, fieldVals, oid, includeOID)
			if ix.TTLField != "" {
				if v, ok := u.Get(ix.TTLField); ok && v.Kind == value.KindDateTime {
					key = append(key, fieldSep)
					key = append(key, []byte(v.DT.UTC().Format("200601021504"))...)
				}
			}
			if err := idxBkt.Delete(key); err != nil {
				return herr.Wrap(herr.Db, herr.ErrDbOperationFailed, "deleting index row", err)
			}
		}
		return mergeRelationCounter(tx.bolt, model.ID, topic, -1)
	})
	if err != nil {
		metrics.DbOperationsTotal.WithLabelValues(model.ID, "delete", "error").Inc()
		return err
	}
	metrics.DbOperationsTotal.WithLabelValues(model.ID, "delete", "ok").Inc()
	return nil
}

// Get fetches and decodes the data row for oid in topic/partKey.
func (s *Store) Get(topic string, model *Model, oid value.ObjectID, partTime time.Time) (*dataunit.Unit, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.DbOperationDuration, model.ID, "get")

	partKey := partitionKey(model.PartitionMode, partTime)
	now := time.Now()
	var u *dataunit.Unit
	err := s.View(func(tx *bolt.Tx) error {
		dataBkt, _, err := partitionBuckets(tx, model.ID, partKey, false)
		if err != nil {
			return err
		}
		raw := dataBkt.Get(dataKey(topic, model.ID, oid))
		if raw == nil {
			return herr.New(herr.Db, herr.ErrNotFound, "object not found")
		}
		decoded, err := dataunit.Parse(model.Schema, raw)
		if err != nil {
			return err
		}
		if modelRowExpired(model, decoded, now) {
			return herr.New(herr.Db, herr.ErrNotFound, "object not found")
		}
		u = decoded
		return nil
	})
	if err != nil {
		metrics.DbOperationsTotal.WithLabelValues(model.ID, "get", "error").Inc()
		return u, err
	}
	metrics.DbOperationsTotal.WithLabelValues(model.ID, "get", "ok").Inc()
	return u, nil
}
