package service

import (
	"errors"
	"payslip-scraper/internal/components/assert"
	"payslip-scraper/internal/components/telemetry"
	"payslip-scraper/internal/jobs"
	"strings"
	"time"
)

const (
	report_service_submit = "service.submit"
	report_service_evict  = "service.evict"
)

var ErrJobNotFound = errors.New("job not found")

// Service is the surface callers use to start scrapes and follow them.
type Service struct {
	registry  *jobs.Registry
	retention time.Duration
	tel       telemetry.API
}

type Options struct {
	// Retention is how long a job is kept after its last update. Defaults
	// to jobs.DefaultRetention.
	Retention time.Duration
}

func NewService(registry *jobs.Registry, opts Options, tel telemetry.API) Service {
	assert.NotNil(registry, "registry")
	assert.NotNil(tel, "telemetry")

	if opts.Retention <= 0 {
		opts.Retention = jobs.DefaultRetention
	}
	return Service{
		registry:  registry,
		retention: opts.Retention,
		tel:       telemetry.NewScopedAPI("service", tel),
	}
}

// Submit validates the input and starts a job for it. Invalid input wraps
// jobs.ErrInvalidRequest and creates nothing.
func (s Service) Submit(in jobs.SubmitInput) (jobs.Job, error) {
	req, err := jobs.ParseRequest(in)
	if err != nil {
		s.tel.ReportDebug(report_service_submit, err.Error())
		return jobs.Job{}, err
	}
	job := s.registry.Create(req)
	s.tel.ReportDebug(
		report_service_submit,
		job.Id,
		len(req.Years)*len(req.Months),
	)
	return job, nil
}

// Poll returns the current state of a job. Expired jobs are evicted first,
// so a job past its retention is reported as not found.
func (s Service) Poll(id string) (jobs.Job, error) {
	s.evict()
	job, ok := s.registry.Get(strings.TrimSpace(id))
	if !ok {
		return jobs.Job{}, ErrJobNotFound
	}
	return job, nil
}

// List returns every live job, newest first. Transactions are only filled
// in for completed jobs.
func (s Service) List() []jobs.Job {
	s.evict()
	return s.registry.List()
}

func (s Service) evict() {
	removed := s.registry.EvictStale(s.retention)
	if removed > 0 {
		s.tel.ReportDebug(report_service_evict, removed)
	}
}
