package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"payslip-scraper/internal/scrapers/payslip"
	"slices"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidRequest = errors.New("invalid scrape request")

const (
	DefaultApprovalTimeout = 60 * time.Second
	DefaultPollInterval    = 2 * time.Second

	maxRangeSpan = 120
	minYear      = 1900
	maxYear      = 9999
)

// ScrapeRequest is a validated request. Years and Months are sorted and
// deduplicated and never empty.
type ScrapeRequest struct {
	Credentials     payslip.Credentials
	Subject         string
	Years           []int
	Months          []int
	ApprovalTimeout time.Duration
	PollInterval    time.Duration
}

type Period struct {
	Year  int
	Month int
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Periods lists every requested (year, month) pair, year first.
func (r ScrapeRequest) Periods() []Period {
	periods := make([]Period, 0, len(r.Years)*len(r.Months))
	for _, year := range r.Years {
		for _, month := range r.Months {
			periods = append(periods, Period{Year: year, Month: month})
		}
	}
	return periods
}

// Selection is a list of integers written as a string of comma-separated
// values and inclusive ranges, e.g. "2021,2023-2025". In JSON it may also be
// a number or an array of numbers and strings.
type Selection string

func (s *Selection) UnmarshalJSON(data []byte) error {
	var raw any
	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}
	switch value := raw.(type) {
	case nil:
		*s = ""
	case string:
		*s = Selection(value)
	case float64:
		*s = Selection(strconv.FormatFloat(value, 'f', -1, 64))
	case []any:
		parts := make([]string, 0, len(value))
		for _, item := range value {
			switch item := item.(type) {
			case string:
				parts = append(parts, item)
			case float64:
				parts = append(parts, strconv.FormatFloat(item, 'f', -1, 64))
			default:
				return fmt.Errorf("unsupported selection item %v", item)
			}
		}
		*s = Selection(strings.Join(parts, ","))
	default:
		return fmt.Errorf("unsupported selection %s", string(data))
	}
	return nil
}

// SubmitInput is a scrape request as a caller sends it.
type SubmitInput struct {
	Identity            string    `json:"identity"`
	Secret              string    `json:"secret"`
	Subject             string    `json:"subject"`
	Years               Selection `json:"years"`
	Months              Selection `json:"months"`
	WaitAuthSeconds     int       `json:"waitAuthSeconds"`
	PollIntervalSeconds int       `json:"pollIntervalSeconds"`
}

// ParseRequest validates the input and fills in defaults. Every returned
// error wraps ErrInvalidRequest.
func ParseRequest(in SubmitInput) (ScrapeRequest, error) {
	identity := strings.TrimSpace(in.Identity)
	if identity == "" || in.Secret == "" {
		return ScrapeRequest{}, fmt.Errorf("%w: identity and secret are required", ErrInvalidRequest)
	}

	years, err := ExpandSelection(string(in.Years))
	if err != nil {
		return ScrapeRequest{}, fmt.Errorf("%w: years: %w", ErrInvalidRequest, err)
	}
	if len(years) == 0 {
		return ScrapeRequest{}, fmt.Errorf("%w: no years selected", ErrInvalidRequest)
	}
	for _, year := range years {
		if year < minYear || year > maxYear {
			return ScrapeRequest{}, fmt.Errorf("%w: year %d out of range", ErrInvalidRequest, year)
		}
	}

	months, err := ExpandSelection(string(in.Months))
	if err != nil {
		return ScrapeRequest{}, fmt.Errorf("%w: months: %w", ErrInvalidRequest, err)
	}
	if len(months) == 0 {
		months = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	}
	for _, month := range months {
		if month < 1 || month > 12 {
			return ScrapeRequest{}, fmt.Errorf("%w: month %d out of range", ErrInvalidRequest, month)
		}
	}

	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		subject = identity
	}

	timeout := DefaultApprovalTimeout
	if in.WaitAuthSeconds > 0 {
		timeout = time.Duration(in.WaitAuthSeconds) * time.Second
	}
	interval := DefaultPollInterval
	if in.PollIntervalSeconds > 0 {
		interval = time.Duration(in.PollIntervalSeconds) * time.Second
	}

	return ScrapeRequest{
		Credentials:     payslip.Credentials{Identity: identity, Secret: in.Secret},
		Subject:         subject,
		Years:           years,
		Months:          months,
		ApprovalTimeout: timeout,
		PollInterval:    interval,
	}, nil
}

// ExpandSelection turns "2023-2025,2020" into [2020 2023 2024 2025]. Blank
// input yields an empty list.
func ExpandSelection(text string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		start, end, isRange := strings.Cut(part, "-")
		if !isRange {
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("%q is not a number", part)
			}
			out = append(out, n)
			continue
		}

		from, err := strconv.Atoi(strings.TrimSpace(start))
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid range", part)
		}
		to, err := strconv.Atoi(strings.TrimSpace(end))
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid range", part)
		}
		if from > to {
			return nil, fmt.Errorf("range %q is reversed", part)
		}
		if to-from >= maxRangeSpan {
			return nil, fmt.Errorf("range %q is too wide", part)
		}
		for n := from; n <= to; n++ {
			out = append(out, n)
		}
	}

	slices.Sort(out)
	return slices.Compact(out), nil
}
