package db

import (
	"fmt"
	"path/filepath"

	"github.com/hatn-go/hatn/pkg/herr"
	"github.com/hatn-go/hatn/pkg/metrics"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketMeta   = []byte("_meta")
	bucketTopics = []byte("_topics")
	bucketData   = []byte("d")
	bucketIndex  = []byte("i")
)

// Store is the embedded KV engine hosting every model's partitions, the
// Go-native stand-in for the source's RocksDB column families: bbolt has
// no native CF concept, so each "<modelId>/<partitionKey>/{d,i}" name from
// spec.md §4.4 becomes a path of nested buckets instead
// (model bucket → partition bucket → "d"/"i" sub-bucket), matching the
// nesting pkg/storage/boltdb.go never needed because it never partitioned.
type Store struct {
	db     *bolt.DB
	models map[string]*Model
}

// Open creates or opens the store file at <dataDir>/store.db and ensures
// the two process-wide buckets exist, the same eager
// create-buckets-on-open pattern as pkg/storage.NewBoltStore.
func Open(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, "store.db")
	bdb, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, herr.Wrap(herr.Db, herr.ErrDbOperationFailed, "opening store file", err)
	}
	err = bdb.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketTopics)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, herr.Wrap(herr.Db, herr.ErrDbOperationFailed, "creating process-wide buckets", err)
	}
	return &Store{db: bdb, models: map[string]*Model{}}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// RegisterModel makes m known to the store; Write/Query reject an unknown
// model id with ErrModelNotFound.
func (s *Store) RegisterModel(m *Model) { s.models[m.ID] = m }

func (s *Store) model(id string) (*Model, error) {
	m, ok := s.models[id]
	if !ok {
		return nil, herr.New(herr.Db, herr.ErrModelNotFound, "unknown model "+id)
	}
	return m, nil
}

// partitionBuckets returns (data, index) buckets for modelID/partKey,
// recording the partition in _meta and creating both buckets lazily on
// first write (spec.md §4.4 "created lazily on first write to that range").
func partitionBuckets(tx *bolt.Tx, modelID, partKey string, create bool) (*bolt.Bucket, *bolt.Bucket, error) {
	var modelBkt *bolt.Bucket
	var err error
	if create {
		modelBkt, err = tx.CreateBucketIfNotExists([]byte(modelID))
	} else {
		modelBkt = tx.Bucket([]byte(modelID))
	}
	if err != nil {
		return nil, nil, err
	}
	if modelBkt == nil {
		return nil, nil, herr.New(herr.Db, herr.ErrPartitionNotFound, fmt.Sprintf("model %s has no partitions", modelID))
	}

	var partBkt *bolt.Bucket
	if create {
		partBkt, err = modelBkt.CreateBucketIfNotExists([]byte(partKey))
	} else {
		partBkt = modelBkt.Bucket([]byte(partKey))
	}
	if err != nil {
		return nil, nil, err
	}
	if partBkt == nil {
		return nil, nil, herr.New(herr.Db, herr.ErrPartitionNotFound, fmt.Sprintf("partition %s/%s not found", modelID, partKey))
	}

	if create {
		if err := recordPartition(tx, modelID, partKey); err != nil {
			return nil, nil, err
		}
	}

	var dataBkt, idxBkt *bolt.Bucket
	if create {
		dataBkt, err = partBkt.CreateBucketIfNotExists(bucketData)
		if err != nil {
			return nil, nil, err
		}
		idxBkt, err = partBkt.CreateBucketIfNotExists(bucketIndex)
		if err != nil {
			return nil, nil, err
		}
	} else {
		dataBkt = partBkt.Bucket(bucketData)
		idxBkt = partBkt.Bucket(bucketIndex)
	}
	return dataBkt, idxBkt, nil
}

// recordPartition appends partKey to modelID's entry in _meta, a flat
// newline-joined list (the store's schema-version/partition registry is
// otherwise empty, so a minimal append-only log suffices here).
func recordPartition(tx *bolt.Tx, modelID, partKey string) error {
	meta := tx.Bucket(bucketMeta)
	key := []byte("partitions/" + modelID)
	existing := meta.Get(key)
	marker := []byte(partKey + "\n")
	for _, line := range splitLines(existing) {
		if line == partKey {
			return nil
		}
	}
	if err := meta.Put(key, append(append([]byte{}, existing...), marker...)); err != nil {
		return err
	}
	metrics.DbPartitionsTotal.WithLabelValues(modelID).Inc()
	return nil
}

// ListPartitions returns every partition key recorded for modelID, in the
// order they were first written (spec.md §4.4 "Cross-partition iteration
// is done by enumerating partition ranges in order").
func (s *Store) ListPartitions(modelID string) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		keys = splitLines(meta.Get([]byte("partitions/" + modelID)))
		return nil
	})
	if err == nil {
		metrics.DbPartitionsTotal.WithLabelValues(modelID).Set(float64(len(keys)))
	}
	return keys, err
}

func splitLines(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	var out []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			if i > start {
				out = append(out, string(b[start:i]))
			}
			start = i + 1
		}
	}
	return out
}
