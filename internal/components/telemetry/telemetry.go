package telemetry

import (
	"fmt"
)

// API is the reporting surface every component logs through. Keeping it an
// interface lets tests capture reports instead of reading log output.
type API interface {
	// ReportBroken reports a component failure that should be looked at.
	//
	// `id` names the component and method that broke, e.g. `session.login`,
	// not the individual statement. Extra context (wrapped errors, urls,
	// periods) goes into params. Ids are lowercase, underscores separate
	// words of a component, dashes separate words of a method.
	ReportBroken(id string, params ...any)

	// ReportWarning reports an expected but noteworthy failure, such as a
	// stale session that was recovered or a period that was skipped.
	ReportWarning(id string, params ...any)

	// ReportDebug reports information that is only useful while developing.
	ReportDebug(msg string, params ...any)

	// ReportCount reports a gauge value (current number of something) at
	// the current time.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with a namespace before forwarding it.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}

// Discard drops every report.
type Discard struct{}

func (Discard) ReportBroken(string, ...any)  {}
func (Discard) ReportWarning(string, ...any) {}
func (Discard) ReportDebug(string, ...any)   {}
func (Discard) ReportCount(string, int64)    {}
