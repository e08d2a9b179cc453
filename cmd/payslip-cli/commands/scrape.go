package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"payslip-scraper/internal/components/chrono"
	"payslip-scraper/internal/components/telemetry"
	"payslip-scraper/internal/jobs"
	"payslip-scraper/internal/scrapers/payslip"
	"payslip-scraper/lib/configutil"
	"payslip-scraper/lib/util/restyutil"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// Config holds defaults for the scrape flags. Secrets belong here or in the
// environment (PAYSLIP_SECRET), never on the command line.
type Config struct {
	BaseUrl          string `json:"base_url"          env:"BASE_URL"`
	BypassCloudflare bool   `json:"bypass_cloudflare" env:"BYPASS_CLOUDFLARE"`
	Identity         string `json:"identity"          env:"IDENTITY"`
	Secret           string `json:"secret"            env:"SECRET"`
	Subject          string `json:"subject"           env:"SUBJECT"`
}

var scrapeFlags struct {
	config   string
	baseUrl  string
	identity string
	subject  string
	years    string
	months   string
	wait     int
	poll     int
	dump     string
	asJson   bool
}

func init() {
	flags := scrapeCmd.Flags()
	flags.StringVar(&scrapeFlags.config, "config", "payslip-cli.json5", "Config file, searched for upwards from the working directory.")
	flags.StringVar(&scrapeFlags.baseUrl, "base-url", "", "Portal base url, overrides the config.")
	flags.StringVar(&scrapeFlags.identity, "identity", "", "Login id, overrides the config.")
	flags.StringVar(&scrapeFlags.subject, "subject", "", "Employee number to fetch, defaults to the login id.")
	flags.StringVar(&scrapeFlags.years, "years", fmt.Sprint(time.Now().Year()), `Years to fetch, e.g. "2023-2025" or "2022,2024".`)
	flags.StringVar(&scrapeFlags.months, "months", "", "Months to fetch, defaults to all twelve.")
	flags.IntVar(&scrapeFlags.wait, "wait", 60, "Seconds to wait for the mobile approval.")
	flags.IntVar(&scrapeFlags.poll, "poll", 2, "Seconds between approval probes.")
	flags.StringVar(&scrapeFlags.dump, "dump", "", "Directory to dump every portal exchange to.")
	flags.BoolVar(&scrapeFlags.asJson, "json", false, "Print the finished job as JSON instead of tables.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--years 2023-2025] [--months 1-6]",
	Short: "Logs in, waits for the mobile approval and prints the requested payslips.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := configutil.Load[Config](scrapeFlags.config, "PAYSLIP_")
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if scrapeFlags.baseUrl != "" {
			cfg.BaseUrl = scrapeFlags.baseUrl
		}
		if scrapeFlags.identity != "" {
			cfg.Identity = scrapeFlags.identity
		}
		if scrapeFlags.subject != "" {
			cfg.Subject = scrapeFlags.subject
		}
		if cfg.BaseUrl == "" {
			return errors.New("no portal base url, set base_url or pass --base-url")
		}

		req, err := jobs.ParseRequest(jobs.SubmitInput{
			Identity:            cfg.Identity,
			Secret:              cfg.Secret,
			Subject:             cfg.Subject,
			Years:               jobs.Selection(scrapeFlags.years),
			Months:              jobs.Selection(scrapeFlags.months),
			WaitAuthSeconds:     scrapeFlags.wait,
			PollIntervalSeconds: scrapeFlags.poll,
		})
		if err != nil {
			return err
		}

		opts := payslip.ClientOptions{
			BaseUrl:          cfg.BaseUrl,
			BypassCloudflare: cfg.BypassCloudflare,
		}
		if scrapeFlags.dump != "" {
			dump, err := restyutil.NewFilesystemOutput(scrapeFlags.dump)
			if err != nil {
				return err
			}
			opts.Dump = &dump
		}

		job, err := runScrape(cmd.Context(), req, opts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if scrapeFlags.asJson {
			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(job)
		}
		renderJob(out, job)
		if job.Status == jobs.StatusError {
			return errors.New(job.Error)
		}
		return nil
	},
}

// runScrape runs one job in-process and reports every progress change on
// stderr until the job finishes.
func runScrape(ctx context.Context, req jobs.ScrapeRequest, opts payslip.ClientOptions) (jobs.Job, error) {
	clock, err := chrono.NewStandardImpl()
	if err != nil {
		slog.Warn("portal timezone unavailable, timestamps use local time", "err", err)
	}
	tel := telemetry.SlogAPI{}

	registry := jobs.NewRegistry(
		ctx,
		jobs.NewScraper(jobs.ScraperOptions{
			Session: payslip.Options{Client: opts},
		}, tel),
		clock,
		tel,
	)
	created := registry.Create(req)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	lastMessage := ""
	for {
		job, ok := registry.Get(created.Id)
		if !ok {
			return jobs.Job{}, fmt.Errorf("job %s disappeared", created.Id)
		}
		if job.Message != lastMessage {
			lastMessage = job.Message
			slog.Info(
				"progress",
				"status", job.Status,
				"processed", fmt.Sprintf("%d/%d", job.ProcessedMonths, job.TotalMonths),
				"message", job.Message,
			)
		}
		if job.Status.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return jobs.Job{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func renderJob(out io.Writer, job jobs.Job) {
	if job.Status != jobs.StatusCompleted {
		fmt.Fprintf(out, "job %s ended with status %s: %s\n", job.Id, job.Status, job.Error)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Date", "Category", "Group", "Gross", "Deductions", "Net", "Currency"})
	for _, tx := range job.Transactions {
		t.AppendRow(table.Row{tx.Date, tx.Category, tx.Group, tx.Gross, tx.Deductions, tx.Net, tx.Currency})
	}
	if job.Summary != nil {
		t.AppendFooter(table.Row{
			"", fmt.Sprintf("%d items", job.Summary.Count), "",
			job.Summary.Gross, job.Summary.Deductions, job.Summary.Net, "",
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 5, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 6, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	t.SetStyle(table.StyleRounded)
	t.Render()

	for _, warning := range job.Warnings {
		fmt.Fprintf(out, "warning: %s\n", warning)
	}
	fmt.Fprintln(out, job.Message)
}
