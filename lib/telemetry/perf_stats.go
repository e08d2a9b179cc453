package telemetry

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel"
)

// InstrumentPerfStats records process gauges every interval until ctx is
// done. Gauges are created lazily so they bind to the meter provider
// installed by Setup.
func InstrumentPerfStats(ctx context.Context, interval time.Duration) {
	meter := otel.Meter("payslip-scraper/perf_stats")
	cpuGauge, _ := meter.Float64Gauge("cpu_usage")
	rssGauge, _ := meter.Int64Gauge("rss_mb")
	allocGauge, _ := meter.Int64Gauge("allocated_mb")
	goroutineGauge, _ := meter.Int64Gauge("goroutine_count")

	self, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		slog.Warn("failed to inspect own process", "err", err)
	}

	go func() {
		var memStats runtime.MemStats
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				// cpu.Percent with a zero interval compares against the previous call
				cpuUsage, err := cpu.PercentWithContext(ctx, 0, false)
				if err == nil && len(cpuUsage) > 0 {
					cpuGauge.Record(ctx, cpuUsage[0])
				} else if err != nil {
					slog.Debug("failed to read cpu usage", "err", err)
				}

				if self != nil {
					mem, err := self.MemoryInfoWithContext(ctx)
					if err == nil {
						rssGauge.Record(ctx, int64(mem.RSS/1_000_000))
					}
				}

				runtime.ReadMemStats(&memStats)
				allocGauge.Record(ctx, int64(memStats.Alloc/1_000_000))
				goroutineGauge.Record(ctx, int64(runtime.NumGoroutine()))
			case <-ctx.Done():
				return
			}
		}
	}()
}
