// Package jobsched implements the Scheduler (spec.md §4.7): a persisted
// timed-job queue over pkg/db, worked by a ticker-driven loop and a fixed
// worker pool, grounded on pkg/scheduler/scheduler.go's loop shape
// (ticker + stopCh + mutex-guarded state) retargeted from "assign
// containers to nodes" to "pop due jobs and invoke a caller-supplied
// callback."
package jobsched

import (
	"time"

	"github.com/hatn-go/hatn/pkg/dataunit"
	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/db"
)

const modelID = "scheduler_jobs"

const (
	idxNextTime = "by_next_time"
	idxRef      = "by_ref"
	idxMaybeBusy = "by_maybe_busy"
	idxRefType  = "by_ref_type"
)

// jobSchema returns the DataUnit schema backing the scheduler_jobs model
// (spec.md §3 Scheduler Job: ref_id, ref_type, next_time, period,
// maybe_busy, topic, content).
func jobSchema() *dataunit.Schema {
	return dataunit.NewSchema("scheduler_job").
		AddField(dataunit.Field{ID: 1, Name: "object_id", Kind: dataunit.KObjectID}).
		AddField(dataunit.Field{ID: 2, Name: "created_at", Kind: dataunit.KDateTime}).
		AddField(dataunit.Field{ID: 3, Name: "updated_at", Kind: dataunit.KDateTime}).
		AddField(dataunit.Field{ID: 4, Name: "ref_id", Kind: dataunit.KString}).
		AddField(dataunit.Field{ID: 5, Name: "ref_type", Kind: dataunit.KString}).
		AddField(dataunit.Field{ID: 6, Name: "next_time", Kind: dataunit.KDateTime}).
		AddField(dataunit.Field{ID: 7, Name: "period", Kind: dataunit.KInt64}).
		AddField(dataunit.Field{ID: 8, Name: "maybe_busy", Kind: dataunit.KDateTime}).
		AddField(dataunit.Field{ID: 9, Name: "topic", Kind: dataunit.KString}).
		AddField(dataunit.Field{ID: 10, Name: "content", Kind: dataunit.KBytes})
}

// Model returns the pkg/db Model describing scheduler_jobs, ready to pass
// to (*db.Store).RegisterModel. Index layout matches spec.md §4.7's State
// paragraph: by next_time, unique by (ref_id, ref_type), by maybe_busy, by
// ref_type.
func Model() *db.Model {
	return &db.Model{
		ID:            modelID,
		Schema:        jobSchema(),
		PartitionMode: db.PartitionNone,
		Indexes: []db.IndexDef{
			{Name: idxNextTime, Fields: []string{"next_time"}},
			{Name: idxRef, Fields: []string{"ref_id", "ref_type"}, UniqueInPartition: true},
			{Name: idxMaybeBusy, Fields: []string{"maybe_busy"}},
			{Name: idxRefType, Fields: []string{"ref_type"}},
		},
	}
}

// Job is the Go-native view of one scheduler_jobs row.
type Job struct {
	ObjectID  value.ObjectID
	RefID     string
	RefType   string
	NextTime  time.Time
	Period    time.Duration
	MaybeBusy time.Time
	Topic     string
	Content   []byte
}

func jobFromUnit(u *dataunit.Unit) *Job {
	j := &Job{}
	if v, ok := u.Get("object_id"); ok {
		j.ObjectID = v.OID
	}
	if v, ok := u.Get("ref_id"); ok {
		j.RefID = v.Str
	}
	if v, ok := u.Get("ref_type"); ok {
		j.RefType = v.Str
	}
	if v, ok := u.Get("next_time"); ok {
		j.NextTime = v.DT
	}
	if v, ok := u.Get("period"); ok {
		j.Period = time.Duration(v.I64)
	}
	if v, ok := u.Get("maybe_busy"); ok {
		j.MaybeBusy = v.DT
	}
	if v, ok := u.Get("topic"); ok {
		j.Topic = v.Str
	}
	if v, ok := u.Get("content"); ok {
		j.Content = v.Blob
	}
	return j
}

func (j *Job) toUnit(schema *dataunit.Schema) *dataunit.Unit {
	u := dataunit.New(schema)
	if !j.ObjectID.IsZero() {
		u.Set("object_id", value.ObjectIDVal(j.ObjectID))
	}
	u.Set("ref_id", value.String(j.RefID))
	u.Set("ref_type", value.String(j.RefType))
	u.Set("next_time", value.DateTimeVal(j.NextTime))
	u.Set("period", value.Int64(int64(j.Period)))
	u.Set("maybe_busy", value.DateTimeVal(j.MaybeBusy))
	u.Set("topic", value.String(j.Topic))
	u.Set("content", value.Bytes(j.Content))
	return u
}
