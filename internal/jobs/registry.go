package jobs

import (
	"cmp"
	"context"
	"fmt"
	"payslip-scraper/internal/components/assert"
	"payslip-scraper/internal/components/chrono"
	"payslip-scraper/internal/components/telemetry"
	"payslip-scraper/internal/scrapers/payslip"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("payslip-scraper/jobs")

const (
	report_registry_process = "registry.process"
	report_registry_jobs    = "registry.jobs"
)

// DefaultRetention is how long a job is kept after its last update.
const DefaultRetention = 30 * time.Minute

// Processor does the work of a job. It may call update any number of times
// to report progress; the job becomes completed or error based on what
// Process returns.
type Processor interface {
	Process(ctx context.Context, req ScrapeRequest, update func(Patch)) (Result, error)
}

type ProcessorFunc func(ctx context.Context, req ScrapeRequest, update func(Patch)) (Result, error)

func (f ProcessorFunc) Process(ctx context.Context, req ScrapeRequest, update func(Patch)) (Result, error) {
	return f(ctx, req, update)
}

// Registry maps job ids to jobs and runs each job in its own goroutine.
type Registry struct {
	ctx       context.Context
	processor Processor
	clock     chrono.API
	tel       telemetry.API

	mu      sync.RWMutex
	jobs    map[string]*Job
	running sync.WaitGroup
}

// NewRegistry creates an empty registry. Jobs run with ctx, so cancelling it
// aborts every job still in progress.
func NewRegistry(ctx context.Context, processor Processor, clock chrono.API, tel telemetry.API) *Registry {
	assert.NotNil(processor, "processor")
	assert.NotNil(clock, "clock")
	assert.NotNil(tel, "telemetry")

	return &Registry{
		ctx:       ctx,
		processor: processor,
		clock:     clock,
		tel:       telemetry.NewScopedAPI("jobs", tel),
		jobs:      map[string]*Job{},
	}
}

// Create stores a new pending job and starts processing it in the
// background. It returns without waiting for any network activity.
func (r *Registry) Create(req ScrapeRequest) Job {
	now := r.clock.Now()
	job := &Job{
		Id:          uuid.NewString(),
		Status:      StatusPending,
		Message:     "queued",
		TotalMonths: len(req.Years) * len(req.Months),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.mu.Lock()
	r.jobs[job.Id] = job
	snapshot := job.snapshot()
	count := len(r.jobs)
	r.mu.Unlock()

	r.tel.ReportCount(report_registry_jobs, int64(count))

	r.running.Add(1)
	go r.run(job.Id, req)

	return snapshot
}

// Get returns a snapshot of the job. Transactions are only included once the
// job is completed.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.snapshot(), true
}

// List returns snapshots of every job, newest first.
func (r *Registry) List() []Job {
	r.mu.RLock()
	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.snapshot())
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Job) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Id, b.Id)
	})
	return out
}

// Update merges patch into the job and bumps its update time. Unknown ids
// and finished jobs are ignored.
func (r *Registry) Update(id string, patch Patch) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Status.Terminal() {
		return
	}
	patch.apply(job)
	job.UpdatedAt = r.clock.Now()
}

// EvictStale removes every job that was last updated more than maxAge ago
// and returns how many were removed.
func (r *Registry) EvictStale(maxAge time.Duration) int {
	now := r.clock.Now()

	r.mu.Lock()
	removed := 0
	for id, job := range r.jobs {
		if now.Sub(job.UpdatedAt) > maxAge {
			delete(r.jobs, id)
			removed++
		}
	}
	count := len(r.jobs)
	r.mu.Unlock()

	if removed > 0 {
		r.tel.ReportCount(report_registry_jobs, int64(count))
	}
	return removed
}

// Wait blocks until every job started so far has finished.
func (r *Registry) Wait() {
	r.running.Wait()
}

func (r *Registry) run(id string, req ScrapeRequest) {
	defer r.running.Done()

	ctx, span := tracer.Start(r.ctx, "registry:process")
	defer span.End()
	span.SetAttributes(
		attribute.String("job_id", id),
		attribute.Int("periods", len(req.Years)*len(req.Months)),
	)

	result, err := r.process(ctx, id, req)
	if err != nil {
		r.tel.ReportWarning(report_registry_process, id, err)
		span.SetStatus(codes.Error, err.Error())
		r.finish(id, func(job *Job) {
			job.Status = StatusError
			job.Error = err.Error()
			job.Message = err.Error()
		})
		return
	}

	summary := payslip.Summarize(result.Transactions)
	r.finish(id, func(job *Job) {
		job.Status = StatusCompleted
		job.ProcessedMonths = job.TotalMonths
		job.Transactions = result.Transactions
		job.Summary = &summary
		job.Message = result.Message
		if job.Message == "" {
			job.Message = fmt.Sprintf("collected %d transactions", summary.Count)
		}
	})
}

func (r *Registry) process(ctx context.Context, id string, req ScrapeRequest) (result Result, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.tel.ReportBroken(report_registry_process, id, recovered)
			err = fmt.Errorf("job crashed: %v", recovered)
		}
	}()
	return r.processor.Process(ctx, req, func(patch Patch) {
		r.Update(id, patch)
	})
}

func (r *Registry) finish(id string, set func(job *Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Status.Terminal() {
		return
	}
	set(job)
	job.UpdatedAt = r.clock.Now()
}
