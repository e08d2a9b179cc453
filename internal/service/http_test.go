package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"payslip-scraper/internal/components/chrono"
	"payslip-scraper/internal/components/telemetry"
	"payslip-scraper/internal/jobs"
	"payslip-scraper/internal/scrapers/payslip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fixture struct {
	server   *httptest.Server
	registry *jobs.Registry
	clock    *chrono.Fake

	mu       sync.Mutex
	requests []jobs.ScrapeRequest
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{clock: chrono.NewFake(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))}

	processor := jobs.ProcessorFunc(func(ctx context.Context, req jobs.ScrapeRequest, update func(jobs.Patch)) (jobs.Result, error) {
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()
		return jobs.Result{
			Transactions: []payslip.Transaction{{Year: 2023, Month: 1, Gross: 100, Net: 100}},
		}, nil
	})
	f.registry = jobs.NewRegistry(context.Background(), processor, f.clock, telemetry.Discard{})
	svc := NewService(f.registry, Options{}, telemetry.Discard{})
	f.server = httptest.NewServer(svc.Handler())
	t.Cleanup(f.server.Close)
	return f
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	defer res.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

func (f *fixture) postJson(t *testing.T, body string) *http.Response {
	t.Helper()
	res, err := http.Post(f.server.URL+"/api/scrape", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return res
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	res, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	return res
}

func TestSubmitAndPoll(t *testing.T) {
	f := newFixture(t)

	res := f.postJson(t, `{"identity":"emp1","secret":"pw","years":"2023","months":[1,2]}`)
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	created := decode[jobs.Job](t, res)
	require.NotEmpty(t, created.Id)
	require.Equal(t, jobs.StatusPending, created.Status)
	require.Equal(t, 2, created.TotalMonths)

	f.registry.Wait()

	res = f.get(t, "/api/scrape/"+created.Id)
	require.Equal(t, http.StatusOK, res.StatusCode)
	job := decode[jobs.Job](t, res)
	require.Equal(t, jobs.StatusCompleted, job.Status)
	require.Len(t, job.Transactions, 1)
	require.Equal(t, &payslip.Summary{Gross: 100, Net: 100, Count: 1}, job.Summary)

	require.Len(t, f.requests, 1)
	require.Equal(t, "emp1", f.requests[0].Subject)
	require.Equal(t, 60*time.Second, f.requests[0].ApprovalTimeout)
}

func TestSubmitForm(t *testing.T) {
	f := newFixture(t)

	form := url.Values{
		"identity":            {"emp1"},
		"secret":              {"pw"},
		"subject":             {"E001"},
		"years":               {"2023-2025"},
		"months":              {"11-12"},
		"waitAuthSeconds":     {"120"},
		"pollIntervalSeconds": {"3"},
	}
	res, err := http.PostForm(f.server.URL+"/api/scrape", form)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	created := decode[jobs.Job](t, res)
	require.Equal(t, 6, created.TotalMonths)

	f.registry.Wait()
	require.Len(t, f.requests, 1)
	req := f.requests[0]
	require.Equal(t, []int{2023, 2024, 2025}, req.Years)
	require.Equal(t, []int{11, 12}, req.Months)
	require.Equal(t, "E001", req.Subject)
	require.Equal(t, 120*time.Second, req.ApprovalTimeout)
	require.Equal(t, 3*time.Second, req.PollInterval)
}

func TestSubmitRejects(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "missing secret", body: `{"identity":"emp1","years":"2024"}`},
		{name: "no years", body: `{"identity":"emp1","secret":"pw"}`},
		{name: "reversed range", body: `{"identity":"emp1","secret":"pw","years":"2025-2023"}`},
		{name: "malformed json", body: `{"identity":`},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t)
			res := f.postJson(t, test.body)
			require.Equal(t, http.StatusBadRequest, res.StatusCode)
			body := decode[errorBody](t, res)
			require.NotEmpty(t, body.Error)
			require.Empty(t, f.registry.List())
		})
	}
}

func TestSubmitRejectsBadFormNumber(t *testing.T) {
	f := newFixture(t)

	res, err := http.PostForm(f.server.URL+"/api/scrape", url.Values{
		"identity":        {"emp1"},
		"secret":          {"pw"},
		"years":           {"2024"},
		"waitAuthSeconds": {"soon"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	body := decode[errorBody](t, res)
	require.Contains(t, body.Error, "waitAuthSeconds")
}

func TestPollUnknownJob(t *testing.T) {
	f := newFixture(t)

	res := f.get(t, "/api/scrape/does-not-exist")
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	body := decode[errorBody](t, res)
	require.Equal(t, ErrJobNotFound.Error(), body.Error)
}

func TestPollEvictsExpiredJobs(t *testing.T) {
	f := newFixture(t)

	res := f.postJson(t, `{"identity":"emp1","secret":"pw","years":2024}`)
	created := decode[jobs.Job](t, res)
	f.registry.Wait()

	f.clock.Advance(29 * time.Minute)
	res = f.get(t, "/api/scrape/"+created.Id)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	f.clock.Advance(2 * time.Minute)
	res = f.get(t, "/api/scrape/"+created.Id)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	res.Body.Close()
}

func TestListJobs(t *testing.T) {
	f := newFixture(t)

	first := decode[jobs.Job](t, f.postJson(t, `{"identity":"emp1","secret":"pw","years":2023}`))
	f.clock.Advance(time.Second)
	second := decode[jobs.Job](t, f.postJson(t, `{"identity":"emp2","secret":"pw","years":2024}`))
	f.registry.Wait()

	res := f.get(t, "/api/jobs")
	require.Equal(t, http.StatusOK, res.StatusCode)
	list := decode[[]jobs.Job](t, res)
	require.Len(t, list, 2)
	require.Equal(t, second.Id, list[0].Id)
	require.Equal(t, first.Id, list[1].Id)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	res := f.get(t, "/healthz")
	require.Equal(t, http.StatusOK, res.StatusCode)
	body := decode[map[string]string](t, res)
	require.Equal(t, "ok", body["status"])
}
