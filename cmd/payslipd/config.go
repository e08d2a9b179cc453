package main

import (
	"errors"
	"payslip-scraper/internal/scrapers/payslip"
	"payslip-scraper/lib/configutil"
	"payslip-scraper/lib/telemetry"
	"time"
)

var errMissingBaseUrl = errors.New("portal.base_url is required")

type PortalConfig struct {
	BaseUrl          string            `json:"base_url"          env:"BASE_URL"`
	BypassCloudflare bool              `json:"bypass_cloudflare" env:"BYPASS_CLOUDFLARE"`
	Endpoints        payslip.Endpoints `json:"endpoints"`
}

type Config struct {
	Port    int  `json:"port"    env:"PORT"`
	Verbose bool `json:"verbose" env:"VERBOSE"`
	// RetentionMinutes is how long a job stays pollable after its last update.
	RetentionMinutes int              `json:"retention_minutes"  env:"RETENTION_MINUTES"`
	PerfStatsSeconds int              `json:"perf_stats_seconds" env:"PERF_STATS_SECONDS"`
	Portal           PortalConfig     `json:"portal"             envPrefix:"PORTAL_"`
	Telemetry        telemetry.Config `json:"telemetry"          envPrefix:"TELEMETRY_"`
}

func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionMinutes) * time.Minute
}

func LoadConfig(name string) (Config, error) {
	cfg, err := configutil.Load[Config](name, "PAYSLIPD_")
	if err != nil {
		return Config{}, err
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.RetentionMinutes <= 0 {
		cfg.RetentionMinutes = 30
	}
	if cfg.PerfStatsSeconds <= 0 {
		cfg.PerfStatsSeconds = 30
	}
	return cfg, nil
}
