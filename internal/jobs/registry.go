package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/art0007i/bonk-sticks-map-converter/internal/logging"
)

// Step is the stage an in-flight job has reached.
type Step int

const (
	FetchingMetadata Step = iota
	Downloading
	Parsing
	Persisting
	Done
)

func (s Step) String() string {
	switch s {
	case FetchingMetadata:
		return "fetching_metadata"
	case Downloading:
		return "downloading"
	case Parsing:
		return "parsing"
	case Persisting:
		return "persisting"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Outcome tells an Acquire caller what to do next.
type Outcome int

const (
	// Owner means the caller created the job and must Release it.
	Owner Outcome = iota
	// Recheck means a job finished while the caller waited; the cache may
	// now hold the entry.
	Recheck
	// ReadCache means no job is running and the entry is cached.
	ReadCache
)

func (o Outcome) String() string {
	switch o {
	case Owner:
		return "owner"
	case Recheck:
		return "recheck"
	case ReadCache:
		return "read_cache"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// CacheChecker reports whether a complete cache entry exists.
type CacheChecker interface {
	Exists(id string) bool
}

// Ticket is the result of Acquire. For Recheck, Result and Err carry what
// the finished owner produced. Abandoned is set when the owner gave up
// because its own caller went away, so Err says nothing about the map.
type Ticket struct {
	Outcome   Outcome
	Job       *Job
	Result    []byte
	Err       error
	Abandoned bool
}

// Status is a point-in-time view of an in-flight job.
type Status struct {
	ID            string    `json:"id"`
	Step          string    `json:"step"`
	StartedAt     time.Time `json:"started_at"`
	CorrelationID string    `json:"correlation_id"`
	Waiters       int       `json:"waiters"`
}

// Job is one in-flight conversion.
type Job struct {
	id            string
	correlationID string
	startedAt     time.Time
	logger        *slog.Logger

	mu        sync.Mutex
	step      Step
	result    []byte
	err       error
	abandoned bool

	waiters atomic.Int32
	done    chan struct{}
	once    sync.Once
}

// ID returns the map identifier.
func (j *Job) ID() string { return j.id }

// CorrelationID returns the identifier attached to this job's log lines.
func (j *Job) CorrelationID() string { return j.correlationID }

// StartedAt returns when the job was created.
func (j *Job) StartedAt() time.Time { return j.startedAt }

// Step returns the current step.
func (j *Job) Step() Step {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.step
}

// Advance moves the job to step. Steps only move forward.
func (j *Job) Advance(ctx context.Context, step Step) {
	j.mu.Lock()
	if step <= j.step || step >= Done {
		j.mu.Unlock()
		return
	}
	prev := j.step
	j.step = step
	j.mu.Unlock()

	logging.WithContext(logging.WithStep(ctx, step.String()), j.logger).DebugContext(ctx, "job advanced",
		logging.String("from", prev.String()),
	)
}

// Context annotates ctx with the job's level and correlation identifiers.
func (j *Job) Context(ctx context.Context) context.Context {
	return logging.WithRequestID(logging.WithLevelID(ctx, j.id), j.correlationID)
}

func (j *Job) finish(result []byte, err error, abandoned bool) bool {
	finished := false
	j.once.Do(func() {
		j.mu.Lock()
		j.step = Done
		j.result = result
		j.err = err
		j.abandoned = abandoned
		j.mu.Unlock()
		close(j.done)
		finished = true
	})
	return finished
}

func (j *Job) outcome() (result []byte, abandoned bool, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.abandoned, j.err
}

// Registry is the per-identifier lock table.
type Registry struct {
	cache  CacheChecker
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[string]*Job
	// released counts Release calls so Acquire can tell whether an entry
	// may have been persisted while it checked the cache unlocked.
	released uint64
}

// maxUnlockedChecks bounds how often Acquire retries its unlocked cache check
// before checking under the lock.
const maxUnlockedChecks = 3

// NewRegistry builds a registry consulting cache for ReadCache decisions.
func NewRegistry(cache CacheChecker, logger *slog.Logger) *Registry {
	return &Registry{
		cache:  cache,
		logger: logging.NewComponentLogger(logger, "jobs"),
		jobs:   make(map[string]*Job),
	}
}

// Acquire resolves what the caller should do for id. When another job is in
// flight it blocks until that job is released or ctx is done.
func (r *Registry) Acquire(ctx context.Context, id string) (Ticket, error) {
	for attempt := 0; ; attempt++ {
		r.mu.Lock()
		if job, ok := r.jobs[id]; ok {
			r.mu.Unlock()
			return r.wait(ctx, job)
		}
		if r.cache == nil || attempt >= maxUnlockedChecks {
			defer r.mu.Unlock()
			if r.cache != nil && r.cache.Exists(id) {
				return Ticket{Outcome: ReadCache}, nil
			}
			return Ticket{Outcome: Owner, Job: r.create(ctx, id)}, nil
		}
		generation := r.released
		r.mu.Unlock()

		cached := r.cache.Exists(id)

		r.mu.Lock()
		if _, ok := r.jobs[id]; ok || r.released != generation {
			// A job started or finished meanwhile; the check may be stale.
			r.mu.Unlock()
			continue
		}
		if cached {
			r.mu.Unlock()
			return Ticket{Outcome: ReadCache}, nil
		}
		job := r.create(ctx, id)
		r.mu.Unlock()
		return Ticket{Outcome: Owner, Job: job}, nil
	}
}

func (r *Registry) wait(ctx context.Context, job *Job) (Ticket, error) {
	job.waiters.Add(1)
	defer job.waiters.Add(-1)
	select {
	case <-job.done:
		result, abandoned, err := job.outcome()
		return Ticket{Outcome: Recheck, Job: job, Result: result, Err: err, Abandoned: abandoned}, nil
	case <-ctx.Done():
		return Ticket{}, ctx.Err()
	}
}

// create registers a new job for id. r.mu must be held.
func (r *Registry) create(ctx context.Context, id string) *Job {
	job := &Job{
		id:            id,
		correlationID: uuid.NewString(),
		startedAt:     time.Now().UTC(),
		step:          FetchingMetadata,
		done:          make(chan struct{}),
	}
	job.logger = r.logger.With(
		logging.String(logging.FieldLevelID, id),
		logging.String(logging.FieldCorrelationID, job.correlationID),
	)
	r.jobs[id] = job
	job.logger.DebugContext(ctx, "job created")
	return job
}

// Release finishes job, removes it from the registry, and wakes waiters with
// result and err. Releasing an already released job is a no-op.
func (r *Registry) Release(job *Job, result []byte, err error) {
	r.release(job, result, err, false)
}

// Abandon releases job because its owner's caller went away. Waiters see
// Ticket.Abandoned and may take over instead of reporting err.
func (r *Registry) Abandon(job *Job, err error) {
	r.release(job, nil, err, true)
}

func (r *Registry) release(job *Job, result []byte, err error, abandoned bool) {
	if job == nil {
		return
	}
	r.mu.Lock()
	if current, ok := r.jobs[job.id]; ok && current == job {
		delete(r.jobs, job.id)
	}
	r.released++
	r.mu.Unlock()

	if !job.finish(result, err, abandoned) {
		return
	}
	attrs := []logging.Attr{
		logging.Duration("elapsed", time.Since(job.startedAt)),
		logging.Bool("abandoned", abandoned),
	}
	if err != nil && !abandoned {
		attrs = append(attrs, logging.Error(err))
	}
	job.logger.Debug("job released", logging.Args(attrs...)...)
}

// Wait blocks while a job for id is in flight and returns its error. It
// returns nil immediately when nothing is running.
func (r *Registry) Wait(ctx context.Context, id string) error {
	r.mu.Lock()
	job, ok := r.jobs[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-job.done:
		_, _, err := job.outcome()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports whether a job for id is in flight.
func (r *Registry) Pending(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[id]
	return ok
}

// Snapshot lists in-flight jobs, oldest first.
func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	r.mu.Unlock()

	statuses := make([]Status, 0, len(jobs))
	for _, job := range jobs {
		statuses = append(statuses, Status{
			ID:            job.id,
			Step:          job.Step().String(),
			StartedAt:     job.startedAt,
			CorrelationID: job.correlationID,
			Waiters:       int(job.waiters.Load()),
		})
	}
	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].StartedAt.Equal(statuses[j].StartedAt) {
			return statuses[i].ID < statuses[j].ID
		}
		return statuses[i].StartedAt.Before(statuses[j].StartedAt)
	})
	return statuses
}
