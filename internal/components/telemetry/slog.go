package telemetry

import (
	"fmt"
	"log/slog"
)

// SlogAPI implements API on top of the default slog logger.
type SlogAPI struct{}

func (SlogAPI) formatParams(out *[]any, params []any) {
	for i, p := range params {
		*out = append(*out, fmt.Sprintf("params.%d", i), p)
	}
}

func (s SlogAPI) ReportBroken(id string, params ...any) {
	attrs := []any{"id", id}
	s.formatParams(&attrs, params)
	slog.Error("broken component", attrs...)
}

func (s SlogAPI) ReportWarning(id string, params ...any) {
	attrs := []any{"id", id}
	s.formatParams(&attrs, params)
	slog.Warn("warning", attrs...)
}

func (s SlogAPI) ReportDebug(msg string, params ...any) {
	attrs := []any{}
	s.formatParams(&attrs, params)
	slog.Debug(msg, attrs...)
}

func (s SlogAPI) ReportCount(id string, count int64) {
	slog.Info("count", "id", id, "n", count)
}
