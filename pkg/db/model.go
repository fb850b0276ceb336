// Package db implements the indexed, partitioned store (spec.md §4.4):
// a bbolt-backed layout of one data and one index bucket per partition,
// plus process-wide metadata and topic-relation buckets, generalizing
// pkg/storage/boltdb.go's fixed bucket-per-collection CRUD into a
// schema-driven, partitioned, indexed model.
package db

import (
	"time"

	"github.com/hatn-go/hatn/pkg/dataunit"
)

// PartitionMode selects how a model's rows are bucketed by time range.
type PartitionMode int

const (
	PartitionNone PartitionMode = iota
	PartitionMonth
	PartitionQuarter
	PartitionYear
)

// IndexDef describes one secondary index over a model (spec.md §4.4).
type IndexDef struct {
	Name   string
	Fields []string

	// Unique enforces a single object per distinct field-value tuple across
	// the whole model; UniqueInPartition restricts that to one partition.
	Unique            bool
	UniqueInPartition bool

	// TTLField names a DateTime field whose value becomes the index key's
	// expiration suffix, read by the compaction sweep (spec.md §4.4 TTL).
	TTLField string
}

// Model is the schema-driven description of one stored collection
// (spec.md §4.4), the structured counterpart to pkg/storage's one
// hand-written Go struct + bucket name per collection.
type Model struct {
	ID     string
	Schema *dataunit.Schema

	PartitionMode  PartitionMode
	PartitionField string // DateTime field driving partition selection; "" for PartitionNone

	Indexes []IndexDef
}

func (m *Model) index(name string) (IndexDef, bool) {
	for _, ix := range m.Indexes {
		if ix.Name == name {
			return ix, true
		}
	}
	return IndexDef{}, false
}

// partitionKey derives the partition key string for t under mode, matching
// spec.md §4.4's Month/Quarter/Year partition modes.
func partitionKey(mode PartitionMode, t time.Time) string {
	switch mode {
	case PartitionMonth:
		return t.UTC().Format("2006-01")
	case PartitionQuarter:
		q := (int(t.UTC().Month())-1)/3 + 1
		return t.UTC().Format("2006") + "-Q" + itoa(q)
	case PartitionYear:
		return t.UTC().Format("2006")
	default:
		return "_"
	}
}

func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}
