package main

import (
	"flag"
	"log/slog"
	"payslip-scraper/internal/components/chrono"
	"payslip-scraper/internal/components/telemetry"
	"payslip-scraper/internal/jobs"
	"payslip-scraper/internal/scrapers/payslip"
	"payslip-scraper/internal/service"
	"payslip-scraper/lib/util/serviceutil"

	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "payslipd.json5", "Config file, searched for upwards from the working directory.")
	verbose := flag.Bool("v", false, "Enable verbose logging and dump every portal exchange to .dev/resty.")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	cfg.Verbose = cfg.Verbose || *verbose
	if cfg.Portal.BaseUrl == "" {
		serviceutil.Fatal("read config", errMissingBaseUrl)
	}

	ctx := serviceutil.SignalContext()
	dump := InitTelemetry(ctx, cfg)

	clock, err := chrono.NewStandardImpl()
	if err != nil {
		serviceutil.Fatal("load timezone", err)
	}
	tel := telemetry.NewMeterAPI("payslipd", telemetry.SlogAPI{})

	group, ctx := errgroup.WithContext(ctx)

	scraper := jobs.NewScraper(jobs.ScraperOptions{
		Session: payslip.Options{
			Client: payslip.ClientOptions{
				BaseUrl:          cfg.Portal.BaseUrl,
				BypassCloudflare: cfg.Portal.BypassCloudflare,
				Dump:             dump,
			},
			Endpoints: cfg.Portal.Endpoints,
		},
	}, tel)
	registry := jobs.NewRegistry(ctx, scraper, clock, tel)
	svc := service.NewService(registry, service.Options{Retention: cfg.Retention()}, tel)

	group.Go(func() error {
		return serviceutil.ServeHttp(ctx, cfg.Port, svc.Handler())
	})
	group.Go(func() error {
		<-ctx.Done()
		registry.Wait()
		return nil
	})

	err = group.Wait()
	if err != nil {
		serviceutil.Fatal("payslipd stopped", err)
	}
	slog.Info("payslipd stopped")
}
