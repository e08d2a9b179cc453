package payslip

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// FetchPeriod downloads and normalizes the payroll detail of one month. If
// the portal answers with an HTML page instead of JSON, the token is
// refreshed and the request is retried exactly once; a second HTML answer
// returns ErrStaleSession.
func (s *Session) FetchPeriod(ctx context.Context, subject string, year, month int) ([]Transaction, error) {
	ctx, span := tracer.Start(ctx, "session:FetchPeriod")
	defer span.End()
	span.SetAttributes(attribute.Int("year", year), attribute.Int("month", month))

	res, err := s.postDetail(ctx, subject, year, month)
	if err != nil {
		span.SetStatus(codes.Error, "detail request failed")
		return nil, err
	}

	if looksLikeHtml(res.Body) {
		s.tel.ReportWarning(report_session_fetch_period, "stale session, refreshing token", year, month)

		err = s.refreshToken(ctx)
		if err != nil {
			span.SetStatus(codes.Error, "token refresh failed")
			return nil, fmt.Errorf("%w: %w", ErrStaleSession, err)
		}
		res, err = s.postDetail(ctx, subject, year, month)
		if err != nil {
			span.SetStatus(codes.Error, "detail retry failed")
			return nil, err
		}
		if looksLikeHtml(res.Body) {
			span.SetStatus(codes.Error, "stale session after retry")
			return nil, fmt.Errorf("%w: %04d-%02d still answered with html", ErrStaleSession, year, month)
		}
	}

	records, err := s.detailRecords(res.Body)
	if err != nil {
		s.tel.ReportBroken(report_session_fetch_period, err, year, month)
		span.SetStatus(codes.Error, "failed to decode detail response")
		return nil, err
	}
	span.SetAttributes(attribute.Int("records", len(records)))

	return Normalize(year, month, records), nil
}

func (s *Session) postDetail(ctx context.Context, subject string, year, month int) (Response, error) {
	res, err := s.client.Post(
		ctx,
		s.endpoints.PayslipDetail,
		map[string]string{
			s.tokenHeader:      s.token,
			"X-Requested-With": "XMLHttpRequest",
			"Accept":           "application/json, text/javascript, */*; q=0.01",
		},
		map[string]string{
			"scopeCd": s.endpoints.ScopeCode,
			"empNo":   subject,
			"payYy":   strconv.Itoa(year),
			"payMm":   fmt.Sprintf("%02d", month),
			"_csrf":   s.token,
		},
	)
	if err != nil {
		return Response{}, fmt.Errorf("fetch %04d-%02d: %w", year, month, err)
	}
	return res, nil
}

func (s *Session) refreshToken(ctx context.Context) error {
	res, err := s.client.Get(ctx, s.endpoints.PayslipInit, nil)
	if err != nil {
		s.tel.ReportWarning(report_session_refresh_token, err)
		return fmt.Errorf("refresh token: %w", err)
	}
	token, header := ExtractTokenAndHeaderName(res.Body)
	if token == "" {
		s.tel.ReportWarning(report_session_refresh_token, "init page carried no token", res.Status)
		return fmt.Errorf("refresh token: init page answered %d without a token", res.Status)
	}
	s.setToken(token, header)
	return nil
}

// looksLikeHtml reports whether the first KiB of body is an HTML document,
// which the portal serves in place of JSON once the session is gone.
func looksLikeHtml(body string) bool {
	head := body
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = strings.ToLower(strings.TrimSpace(head))
	return strings.HasPrefix(head, "<!doctype html") || strings.Contains(head, "<html")
}

func (s *Session) detailRecords(body string) ([]Record, error) {
	decoder := json.NewDecoder(strings.NewReader(body))
	decoder.UseNumber()
	var data any
	err := decoder.Decode(&data)
	if err != nil {
		return nil, fmt.Errorf("decode detail response: %w", err)
	}

	found, err := jmespath.Search(s.detailPath, data)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", s.detailPath, err)
	}

	switch value := found.(type) {
	case []any:
		records := make([]Record, 0, len(value))
		for _, item := range value {
			row, ok := item.(map[string]any)
			if !ok {
				continue
			}
			records = append(records, Record(row))
		}
		return records, nil
	case map[string]any:
		return []Record{Record(value)}, nil
	default:
		return nil, nil
	}
}
