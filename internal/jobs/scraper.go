package jobs

import (
	"context"
	"fmt"
	"payslip-scraper/internal/components/telemetry"
	"payslip-scraper/internal/scrapers/payslip"
	"time"
)

const (
	report_scraper_auth   = "scraper.auth"
	report_scraper_period = "scraper.period"
)

const defaultPeriodDelay = 200 * time.Millisecond

type ScraperOptions struct {
	Session payslip.Options
	// PeriodDelay is the pause between two period fetches. Defaults to 200ms.
	PeriodDelay time.Duration
}

// Scraper is the Processor that logs into the portal, waits for the mobile
// approval and collects every requested period with a fresh Session.
type Scraper struct {
	opts ScraperOptions
	tel  telemetry.API
}

func NewScraper(opts ScraperOptions, tel telemetry.API) Scraper {
	if opts.PeriodDelay <= 0 {
		opts.PeriodDelay = defaultPeriodDelay
	}
	return Scraper{
		opts: opts,
		tel:  telemetry.NewScopedAPI("jobs", tel),
	}
}

func (s Scraper) Process(ctx context.Context, req ScrapeRequest, update func(Patch)) (Result, error) {
	session, err := payslip.NewSession(s.opts.Session, s.tel)
	if err != nil {
		return Result{}, err
	}

	update(Patch{
		Status:  ptr(StatusAuthWait),
		Message: ptr("logging in"),
	})
	err = session.Login(ctx, req.Credentials)
	if err != nil {
		s.tel.ReportWarning(report_scraper_auth, err)
		return Result{}, fmt.Errorf("login: %w", err)
	}

	update(Patch{Message: ptr("waiting for mobile approval")})
	err = session.WaitForApproval(ctx, req.ApprovalTimeout, req.PollInterval)
	if err != nil {
		s.tel.ReportWarning(report_scraper_auth, err)
		return Result{}, fmt.Errorf("approval: %w", err)
	}

	periods := req.Periods()
	update(Patch{
		Status:  ptr(StatusFetching),
		Message: ptr(fmt.Sprintf("approved, fetching %d periods", len(periods))),
	})

	var transactions []payslip.Transaction
	failed := 0
	for i, period := range periods {
		update(Patch{
			ProcessedMonths: ptr(i + 1),
			Message:         ptr(fmt.Sprintf("fetching %s (%d/%d)", period, i+1, len(periods))),
		})

		found, err := session.FetchPeriod(ctx, req.Subject, period.Year, period.Month)
		if err != nil {
			failed++
			s.tel.ReportWarning(report_scraper_period, period.String(), err)
			warning := fmt.Sprintf("%s failed: %s", period, err.Error())
			update(Patch{Message: &warning, Warning: &warning})
		} else {
			transactions = append(transactions, found...)
		}

		if i == len(periods)-1 {
			break
		}
		timer := time.NewTimer(s.opts.PeriodDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	message := fmt.Sprintf("collected %d transactions from %d periods", len(transactions), len(periods))
	if failed > 0 {
		message += fmt.Sprintf(", %d failed", failed)
	}
	return Result{
		Transactions: transactions,
		Message:      message,
	}, nil
}
