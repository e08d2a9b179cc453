package main

import (
	"context"
	"log/slog"
	"payslip-scraper/lib/telemetry"
	"payslip-scraper/lib/util/restyutil"
	"payslip-scraper/lib/util/serviceutil"
	"time"
)

// InitTelemetry sets up logging and otel export. When verbose, it also
// returns an output that every portal exchange is dumped to.
func InitTelemetry(ctx context.Context, cfg Config) *restyutil.FilesystemOutput {
	telemetry.InitSlog(cfg.Verbose)

	tel, err := telemetry.Setup(ctx, "payslipd", cfg.Telemetry)
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := tel.Shutdown(shutdownCtx)
		if err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	telemetry.InstrumentPerfStats(ctx, time.Duration(cfg.PerfStatsSeconds)*time.Second)

	if !cfg.Verbose {
		return nil
	}
	slog.DebugContext(ctx, "verbose logging enabled")

	dump, err := restyutil.NewFilesystemOutput(".dev/resty/payslip")
	if err != nil {
		serviceutil.Fatal("create resty dump directory", err)
	}
	return &dump
}
