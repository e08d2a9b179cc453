// Package jobs runs scrape requests in the background and keeps their
// progress where a caller can poll it.
package jobs

import (
	"payslip-scraper/internal/scrapers/payslip"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAuthWait  Status = "auth_wait"
	StatusFetching  Status = "fetching"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether a job in this status will never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// rank orders the statuses along the lifecycle. A job never moves to a
// status of lower rank.
func (s Status) rank() int {
	switch s {
	case StatusAuthWait:
		return 1
	case StatusFetching:
		return 2
	case StatusCompleted, StatusError:
		return 3
	default:
		return 0
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAuthWait, StatusFetching, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Job is the state of one scrape. Values handed out by the Registry are
// snapshots; mutating them has no effect on the stored job.
type Job struct {
	Id              string                `json:"id"`
	Status          Status                `json:"status"`
	Message         string                `json:"message"`
	TotalMonths     int                   `json:"totalMonths"`
	ProcessedMonths int                   `json:"processedMonths"`
	Transactions    []payslip.Transaction `json:"transactions"`
	Summary         *payslip.Summary      `json:"summary,omitempty"`
	Warnings        []string              `json:"warnings,omitempty"`
	Error           string                `json:"error,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

func (j *Job) snapshot() Job {
	out := *j
	out.Warnings = append([]string(nil), j.Warnings...)
	if j.Status == StatusCompleted {
		out.Transactions = append([]payslip.Transaction{}, j.Transactions...)
	} else {
		out.Transactions = []payslip.Transaction{}
	}
	if j.Summary != nil {
		summary := *j.Summary
		out.Summary = &summary
	}
	return out
}

// Patch is a partial update of a running job. Nil fields are left as they
// are. Terminal statuses cannot be set through a Patch, and a status earlier
// in the lifecycle than the current one is ignored.
type Patch struct {
	Status          *Status
	Message         *string
	ProcessedMonths *int
	// Warning is appended to the job's warnings.
	Warning *string
}

func (p Patch) apply(j *Job) {
	if p.Status != nil && p.Status.Valid() && !p.Status.Terminal() && p.Status.rank() >= j.Status.rank() {
		j.Status = *p.Status
	}
	if p.Message != nil {
		j.Message = *p.Message
	}
	if p.ProcessedMonths != nil {
		// progress only moves forward and never past the total
		processed := min(*p.ProcessedMonths, j.TotalMonths)
		if processed > j.ProcessedMonths {
			j.ProcessedMonths = processed
		}
	}
	if p.Warning != nil {
		j.Warnings = append(j.Warnings, *p.Warning)
	}
}

func ptr[T any](value T) *T {
	return &value
}

// Result is what a Processor hands back once every period was attempted.
type Result struct {
	Transactions []payslip.Transaction
	Message      string
}
