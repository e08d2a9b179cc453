package payslip

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"payslip-scraper/internal/components/assert"
	"payslip-scraper/internal/components/telemetry"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("payslip-scraper/scrapers/payslip")

const (
	report_session_login         = "session.login"
	report_session_wait_approval = "session.wait-approval"
	report_session_fetch_period  = "session.fetch-period"
	report_session_refresh_token = "session.refresh-token"
)

const defaultMinPollInterval = 500 * time.Millisecond

var (
	ErrMissingToken    = errors.New("login page did not carry an anti-forgery token")
	ErrLoginFailed     = errors.New("portal rejected the credentials")
	ErrApprovalTimeout = errors.New("mobile approval was not completed in time")
	ErrStaleSession    = errors.New("session expired and could not be refreshed")
)

// failure phrases shown by the portal on a rejected login
var loginFailurePhrases = []string{
	"로그인에 실패",
	"아이디가 일치하지",
	"비밀번호가 일치하지",
	"login failed",
	"incorrect password",
}

type Credentials struct {
	Identity string
	Secret   string
}

type Options struct {
	Client    ClientOptions
	Endpoints Endpoints
	// MinPollInterval is the floor for the delay between approval probe
	// cycles. Defaults to 500ms.
	MinPollInterval time.Duration
}

// Session is one authenticated conversation with the portal: a private
// cookie jar plus the current anti-forgery token. A Session belongs to a
// single job and must not be shared.
type Session struct {
	client          *Client
	endpoints       Endpoints
	detailPath      string
	minPollInterval time.Duration
	tel             telemetry.API

	token       string
	tokenHeader string
}

func NewSession(opts Options, tel telemetry.API) (*Session, error) {
	assert.NotNil(tel, "telemetry")
	tel = telemetry.NewScopedAPI("payslip_scraper", tel)

	endpoints := opts.Endpoints.withDefaults()
	_, err := jmespath.Compile(endpoints.DetailPath)
	if err != nil {
		return nil, fmt.Errorf("compile detail path %q: %w", endpoints.DetailPath, err)
	}

	client, err := NewClient(opts.Client, tel)
	if err != nil {
		return nil, err
	}

	minPoll := opts.MinPollInterval
	if minPoll <= 0 {
		minPoll = defaultMinPollInterval
	}

	return &Session{
		client:          client,
		endpoints:       endpoints,
		detailPath:      endpoints.DetailPath,
		minPollInterval: minPoll,
		tel:             tel,
		tokenHeader:     DefaultTokenHeader,
	}, nil
}

// Token returns the current anti-forgery token and the header it is sent under.
func (s *Session) Token() (token string, header string) {
	return s.token, s.tokenHeader
}

func (s *Session) setToken(token, header string) {
	if header == "" {
		header = DefaultTokenHeader
	}
	s.token = token
	s.tokenHeader = header
}

// Login submits the credentials. It does not wait for mobile approval, see
// WaitForApproval.
func (s *Session) Login(ctx context.Context, creds Credentials) error {
	ctx, span := tracer.Start(ctx, "session:Login")
	defer span.End()

	res, err := s.client.Get(ctx, s.endpoints.LoginPage, nil)
	if err != nil {
		s.tel.ReportBroken(report_session_login, fmt.Errorf("login page: %w", err))
		span.SetStatus(codes.Error, "failed to fetch login page")
		return fmt.Errorf("fetch login page: %w", err)
	}
	token, header := ExtractTokenAndHeaderName(res.Body)
	if token == "" {
		s.tel.ReportBroken(report_session_login, ErrMissingToken, res.Status)
		span.SetStatus(codes.Error, "no token on login page")
		return ErrMissingToken
	}
	s.setToken(token, header)

	res, err = s.client.Post(
		ctx,
		s.endpoints.LoginSubmit,
		map[string]string{s.tokenHeader: s.token},
		map[string]string{
			"userId":     base64.StdEncoding.EncodeToString([]byte(creds.Identity)),
			"userPw":     base64.StdEncoding.EncodeToString([]byte(creds.Secret)),
			"loginType":  "FIDO",
			"deviceType": "PC",
			"_csrf":      s.token,
		},
	)
	if err != nil {
		s.tel.ReportBroken(report_session_login, fmt.Errorf("submit: %w", err))
		span.SetStatus(codes.Error, "failed to submit credentials")
		return fmt.Errorf("submit credentials: %w", err)
	}
	if phrase := matchLoginFailure(res.Body); phrase != "" {
		span.SetStatus(codes.Error, ErrLoginFailed.Error())
		return fmt.Errorf("%w: portal answered %q", ErrLoginFailed, phrase)
	}
	if res.Status >= 400 {
		span.SetStatus(codes.Error, "login submit rejected")
		return fmt.Errorf("%w: login submit returned status %d", ErrLoginFailed, res.Status)
	}

	return nil
}

func matchLoginFailure(body string) string {
	lowered := strings.ToLower(body)
	for _, phrase := range loginFailurePhrases {
		if strings.Contains(lowered, phrase) {
			return phrase
		}
	}
	return ""
}

// WaitForApproval polls the portal until a page hands out a fresh token,
// which only happens after the user approved the login on their phone. Probe
// errors do not end the wait; they are kept for the timeout message.
func (s *Session) WaitForApproval(ctx context.Context, timeout, interval time.Duration) error {
	ctx, span := tracer.Start(ctx, "session:WaitForApproval")
	defer span.End()

	deadline := time.Now().Add(timeout)
	interval = max(interval, s.minPollInterval)

	probes := s.endpoints.approvalProbes()
	lastSeen := make([]string, len(probes))
	for i, endpoint := range probes {
		lastSeen[i] = fmt.Sprintf("%s -> not probed", endpoint)
	}

	for cycle := 1; ; cycle++ {
		for i, endpoint := range probes {
			res, err := s.client.Get(ctx, endpoint, nil)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				lastSeen[i] = fmt.Sprintf("%s -> error: %s", endpoint, err.Error())
				continue
			}
			lastSeen[i] = fmt.Sprintf("%s -> %d", endpoint, res.Status)

			token, header := ExtractTokenAndHeaderName(res.Body)
			if token == "" {
				continue
			}
			s.setToken(token, header)
			span.SetAttributes(
				attribute.Int("cycles", cycle),
				attribute.String("endpoint", endpoint),
			)
			s.tel.ReportDebug(report_session_wait_approval, "approved", endpoint, cycle)
			return nil
		}

		if !time.Now().Before(deadline) {
			err := fmt.Errorf(
				"%w after %s (last probes: %s)",
				ErrApprovalTimeout, timeout, strings.Join(lastSeen, ", "),
			)
			s.tel.ReportWarning(report_session_wait_approval, err)
			span.SetStatus(codes.Error, "approval timed out")
			return err
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
