package jobsched

import (
	"context"
	"time"

	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/db"
	"github.com/hatn-go/hatn/pkg/herr"
)

// PostMode selects how PostJob delivers a new job (spec.md §4.7).
type PostMode int

const (
	// Queued persists the job and also pushes it onto the worker queue
	// immediately, without waiting for the next dispatch cycle.
	Queued PostMode = iota
	// Schedule only persists the job; it is picked up on a later cycle.
	Schedule
	// Direct bypasses persistence entirely and hands the job straight to
	// a worker.
	Direct
)

// ConflictMode selects how PostJob handles a (ref_id, ref_type) collision
// with an already-persisted job (spec.md §4.7).
type ConflictMode int

const (
	// SkipNewJob leaves the existing job untouched and reports the
	// duplicate-key error to the caller (the default, matching the
	// source's JobConflictMode::SkipNewJob).
	SkipNewJob ConflictMode = iota
	// Replace deletes the existing job and inserts the new one in one
	// transaction.
	Replace
	// UpdateTime only advances next_time on the existing job to the new
	// job's next_time.
	UpdateTime
)

// PostJob enqueues or persists job per mode/conflictMode. When job.NextTime
// is zero it defaults to now+job.Period (periodic jobs) or
// now+cfg.DefaultRetryInterval (one-shot jobs), matching the source's
// postJob default-next_time rule.
func (s *Scheduler) PostJob(ctx context.Context, job *Job, mode PostMode, conflictMode ConflictMode) error {
	if job.Topic == "" {
		job.Topic = s.cfg.DefaultTopic
	}
	if job.NextTime.IsZero() {
		if job.Period > 0 {
			job.NextTime = time.Now().Add(job.Period)
		} else {
			job.NextTime = time.Now().Add(s.cfg.DefaultRetryInterval)
		}
	}

	if mode == Direct {
		return s.invoke(ctx, job)
	}

	unit := job.toUnit(s.model.Schema)
	oid, err := s.store.Create(job.Topic, s.model, unit)
	if err == nil {
		job.ObjectID = oid
		if mode == Queued {
			s.enqueueOrWake(job)
		}
		return nil
	}

	dup, ok := err.(*herr.Error)
	if !ok || dup.Code != herr.ErrDuplicateUniqueKey || conflictMode == SkipNewJob {
		return err
	}

	existing, findErr := s.findByRef(job.Topic, job.RefID, job.RefType)
	if findErr != nil {
		return findErr
	}

	switch conflictMode {
	case UpdateTime:
		updated := *existing
		updated.NextTime = job.NextTime
		if err := s.replace(job.Topic, existing, &updated); err != nil {
			return err
		}
		job.ObjectID = existing.ObjectID
	case Replace:
		job.ObjectID = existing.ObjectID
		if err := s.replace(job.Topic, existing, job); err != nil {
			return err
		}
	}

	if mode == Queued {
		s.enqueueOrWake(job)
	}
	return nil
}

func (s *Scheduler) enqueueOrWake(job *Job) {
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()
	if queue == nil {
		// Not started yet; the job is already persisted and a later
		// dispatch cycle will pick it up once Start runs.
		return
	}
	select {
	case queue <- job:
	default:
		// Queue momentarily full: wake the dispatch loop so a regular
		// cycle reclaims this job instead of blocking the caller.
		s.wakeUp()
	}
}

func (s *Scheduler) findByRef(topic, refID, refType string) (*Job, error) {
	q := &db.Query{
		Model:  s.model,
		Index:  idxRef,
		Topic:  topic,
		Equals: []value.Value{value.String(refID), value.String(refType)},
		Limit:  1,
	}
	units, err := q.Exec(s.store)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, herr.New(herr.Db, herr.ErrNotFound, "conflicting job vanished before conflict resolution")
	}
	return jobFromUnit(units[0]), nil
}
