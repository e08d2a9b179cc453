package telemetry

import (
	"context"
	"payslip-scraper/internal/components/assert"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// MeterAPI forwards every report to inner and additionally records counts
// as otel gauges, one gauge per id.
type MeterAPI struct {
	API
	meter metric.Meter

	mu     sync.Mutex
	gauges map[string]metric.Int64Gauge
}

func NewMeterAPI(meterName string, inner API) *MeterAPI {
	assert.NotEmptyStr(meterName, "meter name")
	assert.NotNil(inner, "inner")

	return &MeterAPI{
		API:    inner,
		meter:  otel.Meter(meterName),
		gauges: map[string]metric.Int64Gauge{},
	}
}

// gauge names only allow a limited alphabet
var gaugeNameReplacer = strings.NewReplacer(": ", ".", " ", "_", "-", "_")

func (m *MeterAPI) gauge(id string) (metric.Int64Gauge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gauge, ok := m.gauges[id]
	if ok {
		return gauge, nil
	}
	gauge, err := m.meter.Int64Gauge(gaugeNameReplacer.Replace(id))
	if err != nil {
		return nil, err
	}
	m.gauges[id] = gauge
	return gauge, nil
}

func (m *MeterAPI) ReportCount(id string, count int64) {
	m.API.ReportCount(id, count)

	gauge, err := m.gauge(id)
	if err != nil {
		m.API.ReportBroken("telemetry.gauge", id, err)
		return
	}
	gauge.Record(context.Background(), count)
}
