package jobsched

import (
	"context"
	"sync"
	"time"

	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/db"
	"github.com/hatn-go/hatn/pkg/logctx"
)

// InvokeFunc executes one due job. It collapses the source's
// invoke(ctx, job, cb) async-completion-callback shape into a direct
// blocking error return, since Go's goroutine-per-worker model has no need
// for a separate completion callback (see DESIGN.md).
type InvokeFunc func(ctx context.Context, job *Job) error

// Config holds the Scheduler's tunables, named directly after spec.md
// §4.7's State/Loop paragraphs.
type Config struct {
	JobBucketSize        int
	JobQueueDepth         int
	WorkerCount           int
	DefaultRetryInterval  time.Duration
	HoldPeriod            time.Duration
	PollInterval          time.Duration
	DefaultTopic          string
}

// DefaultConfig matches the source's HDU defaults (job_bucket_size=32,
// job_retry_interval=300s, job_hold_period=900s, worker_count=1,
// job_queue_depth=64).
func DefaultConfig() Config {
	return Config{
		JobBucketSize:       32,
		JobQueueDepth:       64,
		WorkerCount:         1,
		DefaultRetryInterval: 300 * time.Second,
		HoldPeriod:          900 * time.Second,
		PollInterval:        5 * time.Second,
		DefaultTopic:        "default",
	}
}

// Scheduler owns the persisted job queue and a fixed worker pool, matching
// pkg/scheduler/scheduler.go's ticker+stopCh+mutex loop shape retargeted
// from container placement to timed-job dispatch.
type Scheduler struct {
	store  *db.Store
	model  *db.Model
	invoke InvokeFunc
	cfg    Config
	logger *logctx.Context

	mu      sync.Mutex
	stopCh  chan struct{}
	wakeCh  chan struct{}
	queue   chan *Job
	wg      sync.WaitGroup
	running bool
}

// New builds a Scheduler over store, registering the scheduler_jobs model.
// invoke is called once per due job by a worker goroutine.
func New(store *db.Store, cfg Config, invoke InvokeFunc, logger *logctx.Context) *Scheduler {
	m := Model()
	store.RegisterModel(m)
	return &Scheduler{
		store:  store,
		model:  m,
		invoke: invoke,
		cfg:    cfg,
		logger: logger,
		wakeCh: make(chan struct{}, 1),
	}
}

// Start launches the dispatch loop and worker pool.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.queue = make(chan *Job, s.cfg.JobQueueDepth)
	s.mu.Unlock()

	for i := 0; i < s.cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.wg.Add(1)
	go s.loop()
}

// Stop signals the loop and workers to exit and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()
	s.wg.Wait()
}

// wakeUp unblocks a sleeping loop iteration, matching spec.md §4.7 step 5
// ("sleeps until min(next_time) or until wakeUp() is called").
func (s *Scheduler) wakeUp() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			close(s.queue)
			return
		case <-ticker.C:
			s.dispatchCycle()
		case <-s.wakeCh:
			s.dispatchCycle()
		}
	}
}

// dispatchCycle implements spec.md §4.7 loop steps 1-3: read due jobs,
// claim each by advancing next_time/maybe_busy, push claimed jobs onto the
// worker queue.
func (s *Scheduler) dispatchCycle() {
	now := time.Now()
	q := &db.Query{
		Model:  s.model,
		Index:  idxNextTime,
		Topic:  s.cfg.DefaultTopic,
		Ranges: []value.Interval{{Low: value.First_(), High: value.ClosedAt(value.DateTimeVal(now))}},
		Limit:  s.cfg.JobBucketSize,
		Order:  db.Asc,
	}
	units, err := q.Exec(s.store)
	if err != nil {
		if s.logger != nil {
			logctx.LogError(logctx.Error, err, s.logger, "scheduler dispatch query failed", nil, "jobsched")
		}
		return
	}

	for _, u := range units {
		job := jobFromUnit(u)
		claimed, err := s.claim(job, now)
		if err != nil {
			// Concurrent claim or transient failure: leave the job for the
			// next cycle (spec.md §4.7 step 2, "skipped").
			continue
		}
		jobsClaimedTotal.Inc()
		select {
		case s.queue <- claimed:
			queueDepth.Set(float64(len(s.queue)))
		case <-s.stopCh:
			return
		}
	}
}

// claim advances next_time to now+period for periodic jobs (now+retry
// interval otherwise) and marks maybe_busy until now+hold period, in one
// transaction, so a second dispatcher sharing this store would see the
// updated row rather than reclaim it (spec.md §4.7 step 2).
func (s *Scheduler) claim(job *Job, now time.Time) (*Job, error) {
	retry := s.cfg.DefaultRetryInterval
	if job.Period > 0 {
		retry = job.Period
	}
	updated := *job
	updated.NextTime = now.Add(retry)
	updated.MaybeBusy = now.Add(s.cfg.HoldPeriod)

	if err := s.replace(job.Topic, job, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// replace overwrites oldJob's row with newJob's fields in one transaction,
// reusing oldJob's ObjectID. Delete-then-Create is used instead of a
// direct field update because pkg/db exposes no update primitive: Delete
// clears the old index rows (including the unique ref_id/ref_type entry)
// before Create re-establishes them, so the unique-index check does not
// spuriously reject the write.
func (s *Scheduler) replace(topic string, oldJob, newJob *Job) error {
	return s.store.Transaction(func(tx *db.Tx) error {
		oldUnit := oldJob.toUnit(s.model.Schema)
		if err := s.store.Delete(topic, s.model, oldJob.ObjectID, oldUnit, oldJob.NextTime); err != nil {
			return err
		}
		newJob.ObjectID = oldJob.ObjectID
		newUnit := newJob.toUnit(s.model.Schema)
		_, err := s.store.Create(topic, s.model, newUnit)
		return err
	})
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for job := range s.queue {
		s.runJob(job)
	}
}

// runJob calls invoke; on success the job is deleted, or re-armed by
// period for periodic jobs; on error next_time is left at the retry value
// claim already set (spec.md §4.7 step 4).
func (s *Scheduler) runJob(job *Job) {
	ctx := context.Background()
	err := s.invoke(ctx, job)
	if err != nil {
		jobsFailedTotal.Inc()
		if s.logger != nil {
			logctx.LogError(logctx.Error, err, s.logger, "scheduled job invocation failed", nil, "jobsched")
		}
		return
	}

	unit := job.toUnit(s.model.Schema)
	if job.Period > 0 {
		return
	}
	if delErr := s.store.Delete(job.Topic, s.model, job.ObjectID, unit, job.NextTime); delErr != nil {
		if s.logger != nil {
			logctx.LogError(logctx.Error, delErr, s.logger, "deleting completed job failed", nil, "jobsched")
		}
	}
}
