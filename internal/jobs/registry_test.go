package jobs

import (
	"context"
	"errors"
	"payslip-scraper/internal/components/chrono"
	"payslip-scraper/internal/components/telemetry"
	"payslip-scraper/internal/scrapers/payslip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

var testRequest = ScrapeRequest{
	Credentials: payslip.Credentials{Identity: "emp1", Secret: "pw"},
	Subject:     "emp1",
	Years:       []int{2023},
	Months:      []int{1, 2, 3},
}

func newTestRegistry(processor Processor) (*Registry, *chrono.Fake) {
	clock := chrono.NewFake(testStart)
	return NewRegistry(context.Background(), processor, clock, telemetry.Discard{}), clock
}

func immediate(result Result, err error) ProcessorFunc {
	return func(context.Context, ScrapeRequest, func(Patch)) (Result, error) {
		return result, err
	}
}

func TestRegistryLifecycle(t *testing.T) {
	reached := make(chan struct{})
	release := make(chan struct{})

	registry, _ := newTestRegistry(ProcessorFunc(func(ctx context.Context, req ScrapeRequest, update func(Patch)) (Result, error) {
		update(Patch{Status: ptr(StatusAuthWait), Message: ptr("waiting")})
		close(reached)
		<-release
		update(Patch{Status: ptr(StatusFetching), ProcessedMonths: ptr(1)})
		return Result{
			Transactions: []payslip.Transaction{
				{Year: 2023, Gross: 100, Deductions: 20, Net: 80},
				{Year: 2023, Gross: 50, Deductions: 5, Net: 45},
			},
		}, nil
	}))

	created := registry.Create(testRequest)
	require.NotEmpty(t, created.Id)
	require.Equal(t, StatusPending, created.Status)
	require.Equal(t, 3, created.TotalMonths)
	require.Zero(t, created.ProcessedMonths)
	require.Empty(t, created.Transactions)
	require.Nil(t, created.Summary)

	<-reached
	job, ok := registry.Get(created.Id)
	require.True(t, ok)
	require.Equal(t, StatusAuthWait, job.Status)
	require.Equal(t, "waiting", job.Message)
	require.Nil(t, job.Summary)

	close(release)
	registry.Wait()

	job, ok = registry.Get(created.Id)
	require.True(t, ok)
	require.Equal(t, StatusCompleted, job.Status)
	require.Equal(t, 3, job.ProcessedMonths)
	require.Len(t, job.Transactions, 2)
	require.Equal(t, &payslip.Summary{Gross: 150, Deductions: 25, Net: 125, Count: 2}, job.Summary)
	require.Empty(t, job.Error)
	require.Equal(t, "collected 2 transactions", job.Message)
}

func TestRegistryProcessorError(t *testing.T) {
	registry, _ := newTestRegistry(immediate(Result{}, errors.New("approval timed out")))

	created := registry.Create(testRequest)
	registry.Wait()

	job, ok := registry.Get(created.Id)
	require.True(t, ok)
	require.Equal(t, StatusError, job.Status)
	require.Equal(t, "approval timed out", job.Error)
	require.Nil(t, job.Summary)
	require.Empty(t, job.Transactions)
}

func TestRegistryRecoversPanic(t *testing.T) {
	registry, _ := newTestRegistry(ProcessorFunc(func(context.Context, ScrapeRequest, func(Patch)) (Result, error) {
		panic("boom")
	}))

	created := registry.Create(testRequest)
	registry.Wait()

	job, _ := registry.Get(created.Id)
	require.Equal(t, StatusError, job.Status)
	require.Contains(t, job.Error, "boom")
}

func TestRegistryTerminalJobsAreFrozen(t *testing.T) {
	registry, clock := newTestRegistry(immediate(Result{Message: "done"}, nil))

	created := registry.Create(testRequest)
	registry.Wait()
	before, _ := registry.Get(created.Id)

	clock.Advance(time.Minute)
	registry.Update(created.Id, Patch{
		Status:  ptr(StatusFetching),
		Message: ptr("late update"),
	})

	after, _ := registry.Get(created.Id)
	require.Equal(t, before, after)
	require.Equal(t, StatusCompleted, after.Status)
	require.Equal(t, "done", after.Message)
}

func TestRegistryUpdateUnknownJob(t *testing.T) {
	registry, _ := newTestRegistry(immediate(Result{}, nil))

	registry.Update("missing", Patch{Message: ptr("hello")})

	_, ok := registry.Get("missing")
	require.False(t, ok)
	require.Empty(t, registry.List())
}

func TestRegistryPatchCannotFinishJob(t *testing.T) {
	reached := make(chan struct{})
	release := make(chan struct{})
	registry, _ := newTestRegistry(ProcessorFunc(func(ctx context.Context, req ScrapeRequest, update func(Patch)) (Result, error) {
		update(Patch{Status: ptr(StatusCompleted)})
		close(reached)
		<-release
		return Result{}, nil
	}))

	created := registry.Create(testRequest)
	<-reached
	job, _ := registry.Get(created.Id)
	require.Equal(t, StatusPending, job.Status)

	close(release)
	registry.Wait()
}

func TestRegistryPatchCannotMoveJobBackwards(t *testing.T) {
	reached := make(chan struct{})
	release := make(chan struct{})
	registry, _ := newTestRegistry(ProcessorFunc(func(ctx context.Context, req ScrapeRequest, update func(Patch)) (Result, error) {
		update(Patch{Status: ptr(StatusFetching)})
		update(Patch{Status: ptr(StatusPending), Message: ptr("restarting")})
		update(Patch{Status: ptr(StatusAuthWait)})
		close(reached)
		<-release
		return Result{}, nil
	}))

	created := registry.Create(testRequest)
	<-reached
	job, _ := registry.Get(created.Id)
	require.Equal(t, StatusFetching, job.Status)
	require.Equal(t, "restarting", job.Message)

	close(release)
	registry.Wait()
}

func TestPatchStatusOnlyMovesForward(t *testing.T) {
	job := &Job{Status: StatusPending}

	observed := []Status{}
	for _, status := range []Status{StatusAuthWait, StatusPending, StatusFetching, StatusAuthWait, StatusFetching, Status("bogus")} {
		Patch{Status: ptr(status)}.apply(job)
		observed = append(observed, job.Status)
	}
	require.Equal(t, []Status{StatusAuthWait, StatusAuthWait, StatusFetching, StatusFetching, StatusFetching, StatusFetching}, observed)
}

func TestPatchProgressIsMonotonic(t *testing.T) {
	job := &Job{TotalMonths: 3}

	observed := []int{}
	for _, processed := range []int{1, 2, 1, 0, 5, 2} {
		Patch{ProcessedMonths: ptr(processed)}.apply(job)
		observed = append(observed, job.ProcessedMonths)
	}
	require.Equal(t, []int{1, 2, 2, 2, 3, 3}, observed)
}

func TestPatchAppendsWarnings(t *testing.T) {
	job := &Job{}
	Patch{Warning: ptr("2024-01 failed")}.apply(job)
	Patch{Warning: ptr("2024-02 failed")}.apply(job)
	require.Equal(t, []string{"2024-01 failed", "2024-02 failed"}, job.Warnings)
}

func TestRegistryEvictStale(t *testing.T) {
	registry, clock := newTestRegistry(immediate(Result{}, nil))

	old := registry.Create(testRequest)
	registry.Wait()

	clock.Advance(2 * time.Minute)
	recent := registry.Create(testRequest)
	registry.Wait()

	clock.Advance(29 * time.Minute)
	removed := registry.EvictStale(DefaultRetention)
	require.Equal(t, 1, removed)

	_, ok := registry.Get(old.Id)
	require.False(t, ok, "job updated 31 minutes ago is evicted")
	_, ok = registry.Get(recent.Id)
	require.True(t, ok, "job updated 29 minutes ago is kept")

	require.Zero(t, registry.EvictStale(DefaultRetention))
}

func TestRegistryList(t *testing.T) {
	registry, clock := newTestRegistry(immediate(Result{}, nil))

	first := registry.Create(testRequest)
	clock.Advance(time.Second)
	second := registry.Create(testRequest)
	registry.Wait()

	jobs := registry.List()
	require.Len(t, jobs, 2)
	require.Equal(t, second.Id, jobs[0].Id)
	require.Equal(t, first.Id, jobs[1].Id)
}

func TestRegistryUniqueIds(t *testing.T) {
	registry, _ := newTestRegistry(immediate(Result{}, nil))

	seen := map[string]bool{}
	for range 50 {
		job := registry.Create(testRequest)
		require.False(t, seen[job.Id])
		seen[job.Id] = true
	}
	registry.Wait()
	require.Len(t, registry.List(), 50)
}
