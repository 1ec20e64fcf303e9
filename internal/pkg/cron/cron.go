package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// JobStatus is the last known state of a job.
type JobStatus string

const (
	StatusIdle    JobStatus = "idle"    // never run so far
	StatusRunning JobStatus = "running" // currently executing
	StatusFulfill JobStatus = "fulfill" // last run succeeded
	StatusReject  JobStatus = "reject"  // last run returned an error
)

// Job is a named background task with a fixed run interval.
type Job struct {
	Name        string
	Description string
	Every       time.Duration                   // delay between runs
	Do          func(ctx context.Context) error // runs on the job's goroutine
}

// jobState tracks one registered job. Its mutex guards everything below the
// embedded Job, which is immutable after Register.
type jobState struct {
	Job
	mu        sync.Mutex
	Status    JobStatus
	Message   string
	LastRunAt *time.Time
	NextRunAt time.Time
}

// ListItem is the JSON shape of one job in admin listings.
type ListItem struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      JobStatus  `json:"status"`
	NextDate    *time.Time `json:"nextDate"`
	LastRunAt   *time.Time `json:"lastRunAt,omitempty"` // nil until the first run finishes
}

// TaskResult reports one job's latest outcome to polling callers.
type TaskResult struct {
	Status  JobStatus `json:"status"`
	Message string    `json:"message,omitempty"` // last error text, empty on success
}

// Scheduler owns the registered jobs and their run loops.
type Scheduler struct {
	mu   sync.RWMutex
	jobs map[string]*jobState
}

// New returns a Scheduler with no jobs.
func New() *Scheduler {
	return &Scheduler{jobs: make(map[string]*jobState)}
}

// Register adds a job. Call it before Start; jobs added later never get a
// run loop.
func (s *Scheduler) Register(j Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.Name] = &jobState{
		Job:       j,
		Status:    StatusIdle,
		NextRunAt: time.Now().Add(j.Every),
	}
}

// Start launches every registered job in its own goroutine. The goroutines
// exit when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.jobs {
		go s.runLoop(ctx, st)
	}
}

func (s *Scheduler) runLoop(ctx context.Context, st *jobState) {
	for {
		timer := time.NewTimer(st.untilNext())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.execute(ctx, st)
			st.reschedule()
		}
	}
}

func (st *jobState) untilNext() time.Duration {
	st.mu.Lock()
	defer st.mu.Unlock()
	if wait := time.Until(st.NextRunAt); wait > 0 {
		return wait
	}
	return 0
}

func (st *jobState) reschedule() {
	st.mu.Lock()
	st.NextRunAt = time.Now().Add(st.Every)
	st.mu.Unlock()
}

// begin claims the job for one run. Overlapping triggers are dropped.
func (st *jobState) begin() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.Status == StatusRunning {
		return false
	}
	st.Status = StatusRunning
	return true
}

func (st *jobState) finish(startedAt time.Time, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.LastRunAt = &startedAt
	if err != nil {
		st.Status = StatusReject
		st.Message = err.Error()
		return
	}
	st.Status = StatusFulfill
	st.Message = ""
}

func (s *Scheduler) execute(ctx context.Context, st *jobState) {
	if !st.begin() {
		return
	}
	startedAt := time.Now()
	st.finish(startedAt, st.Do(ctx))
}

func (s *Scheduler) lookup(jobName string) (*jobState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.jobs[jobName]
	if !ok {
		return nil, fmt.Errorf("job %q not found", jobName)
	}
	return st, nil
}

// Run manually triggers a job by name (non-blocking).
func (s *Scheduler) Run(ctx context.Context, jobName string) error {
	st, err := s.lookup(jobName)
	if err != nil {
		return err
	}
	go s.execute(ctx, st)
	return nil
}

// GetTask reports the current execution state of a job.
func (s *Scheduler) GetTask(jobName string) (*TaskResult, error) {
	st, err := s.lookup(jobName)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return &TaskResult{Status: st.Status, Message: st.Message}, nil
}

func (st *jobState) snapshot() ListItem {
	st.mu.Lock()
	defer st.mu.Unlock()
	next := st.NextRunAt
	return ListItem{
		Name:        st.Name,
		Description: st.Description,
		Status:      st.Status,
		NextDate:    &next,
		LastRunAt:   st.LastRunAt,
	}
}

// List returns a summary of all registered jobs, ordered by name.
func (s *Scheduler) List() []ListItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ListItem, 0, len(s.jobs))
	for _, st := range s.jobs {
		out = append(out, st.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
