package jobsched

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hatn-go/hatn/pkg/db"
)

func openTestStore(t *testing.T) *db.Store {
	t.Helper()
	s, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 20 * time.Millisecond
	cfg.JobQueueDepth = 8
	return cfg
}

func TestPostJobQueuedRunsImmediately(t *testing.T) {
	store := openTestStore(t)

	var mu sync.Mutex
	var ran []string
	done := make(chan struct{}, 1)

	invoke := func(ctx context.Context, job *Job) error {
		mu.Lock()
		ran = append(ran, job.RefID)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	}

	sched := New(store, testConfig(), invoke, nil)
	sched.Start()
	defer sched.Stop()

	job := &Job{RefID: "order-1", RefType: "order", Topic: "default"}
	if err := sched.PostJob(context.Background(), job, Queued, SkipNewJob); err != nil {
		t.Fatalf("PostJob: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("job never ran")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 1 || ran[0] != "order-1" {
		t.Fatalf("got %v", ran)
	}
}

func TestPostJobDuplicateSkipNewJob(t *testing.T) {
	store := openTestStore(t)
	sched := New(store, testConfig(), func(context.Context, *Job) error { return nil }, nil)

	first := &Job{RefID: "ref-1", RefType: "t", Topic: "default", NextTime: time.Now().Add(time.Hour)}
	if err := sched.PostJob(context.Background(), first, Schedule, SkipNewJob); err != nil {
		t.Fatalf("first PostJob: %v", err)
	}

	second := &Job{RefID: "ref-1", RefType: "t", Topic: "default", NextTime: time.Now().Add(2 * time.Hour)}
	err := sched.PostJob(context.Background(), second, Schedule, SkipNewJob)
	if err == nil {
		t.Fatalf("expected duplicate-key error, got nil")
	}
}

func TestPostJobDuplicateReplace(t *testing.T) {
	store := openTestStore(t)
	sched := New(store, testConfig(), func(context.Context, *Job) error { return nil }, nil)

	first := &Job{RefID: "ref-2", RefType: "t", Topic: "default", NextTime: time.Now().Add(time.Hour), Content: []byte("v1")}
	if err := sched.PostJob(context.Background(), first, Schedule, SkipNewJob); err != nil {
		t.Fatalf("first PostJob: %v", err)
	}

	second := &Job{RefID: "ref-2", RefType: "t", Topic: "default", NextTime: time.Now().Add(2 * time.Hour), Content: []byte("v2")}
	if err := sched.PostJob(context.Background(), second, Schedule, Replace); err != nil {
		t.Fatalf("replace PostJob: %v", err)
	}

	got, err := sched.findByRef("default", "ref-2", "t")
	if err != nil {
		t.Fatalf("findByRef: %v", err)
	}
	if string(got.Content) != "v2" {
		t.Fatalf("got content %q, want v2", got.Content)
	}
}

func TestPostJobDuplicateUpdateTime(t *testing.T) {
	store := openTestStore(t)
	sched := New(store, testConfig(), func(context.Context, *Job) error { return nil }, nil)

	firstTime := time.Now().Add(time.Hour).Truncate(time.Second)
	first := &Job{RefID: "ref-3", RefType: "t", Topic: "default", NextTime: firstTime, Content: []byte("v1")}
	if err := sched.PostJob(context.Background(), first, Schedule, SkipNewJob); err != nil {
		t.Fatalf("first PostJob: %v", err)
	}

	newTime := time.Now().Add(3 * time.Hour).Truncate(time.Second)
	second := &Job{RefID: "ref-3", RefType: "t", Topic: "default", NextTime: newTime, Content: []byte("v2")}
	if err := sched.PostJob(context.Background(), second, Schedule, UpdateTime); err != nil {
		t.Fatalf("update-time PostJob: %v", err)
	}

	got, err := sched.findByRef("default", "ref-3", "t")
	if err != nil {
		t.Fatalf("findByRef: %v", err)
	}
	if !got.NextTime.Equal(newTime) {
		t.Fatalf("got next_time %v, want %v", got.NextTime, newTime)
	}
	if string(got.Content) != "v1" {
		t.Fatalf("UpdateTime must not touch content, got %q", got.Content)
	}
}

func TestPostJobDirectBypassesPersistence(t *testing.T) {
	store := openTestStore(t)
	var invoked bool
	sched := New(store, testConfig(), func(context.Context, *Job) error {
		invoked = true
		return nil
	}, nil)

	job := &Job{RefID: "ref-4", RefType: "t", Topic: "default"}
	if err := sched.PostJob(context.Background(), job, Direct, SkipNewJob); err != nil {
		t.Fatalf("PostJob direct: %v", err)
	}
	if !invoked {
		t.Fatalf("direct mode did not invoke the job")
	}
	if _, err := sched.findByRef("default", "ref-4", "t"); err == nil {
		t.Fatalf("direct mode must not persist the job")
	}
}

func TestDispatchCycleClaimsDueJobs(t *testing.T) {
	store := openTestStore(t)
	var mu sync.Mutex
	var ran []string

	invoke := func(ctx context.Context, job *Job) error {
		mu.Lock()
		ran = append(ran, job.RefID)
		mu.Unlock()
		return nil
	}

	sched := New(store, testConfig(), invoke, nil)

	past := &Job{RefID: "due-1", RefType: "t", Topic: "default", NextTime: time.Now().Add(-time.Minute)}
	if err := sched.PostJob(context.Background(), past, Schedule, SkipNewJob); err != nil {
		t.Fatalf("PostJob: %v", err)
	}

	sched.Start()
	defer sched.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(ran)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("due job was never dispatched")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPeriodicJobSurvivesSuccess(t *testing.T) {
	store := openTestStore(t)
	runs := make(chan struct{}, 4)
	invoke := func(ctx context.Context, job *Job) error {
		runs <- struct{}{}
		return nil
	}

	sched := New(store, testConfig(), invoke, nil)

	job := &Job{RefID: "periodic-1", RefType: "t", Topic: "default", Period: 50 * time.Millisecond, NextTime: time.Now().Add(-time.Millisecond)}
	if err := sched.PostJob(context.Background(), job, Schedule, SkipNewJob); err != nil {
		t.Fatalf("PostJob: %v", err)
	}

	sched.Start()
	defer sched.Stop()

	select {
	case <-runs:
	case <-time.After(2 * time.Second):
		t.Fatalf("periodic job never ran once")
	}
	select {
	case <-runs:
	case <-time.After(2 * time.Second):
		t.Fatalf("periodic job never re-ran")
	}

	if _, err := sched.findByRef("default", "periodic-1", "t"); err != nil {
		t.Fatalf("periodic job row should still exist: %v", err)
	}
}
