package payslip

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"payslip-scraper/internal/components/assert"
	"payslip-scraper/internal/components/telemetry"
	"payslip-scraper/lib/util/restyutil"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

const (
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	acceptLanguage = "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"
	requestTimeout = 30 * time.Second
)

type ClientOptions struct {
	BaseUrl string
	// BypassCloudflare wraps the transport so TLS fingerprint and default
	// headers look like a desktop browser.
	BypassCloudflare bool
	// Dump, when set, receives a copy of every exchange.
	Dump *restyutil.FilesystemOutput
}

// Response is a fully read HTTP response. Non-2xx statuses are not errors.
type Response struct {
	Status int
	Header http.Header
	Body   string
}

// Client is an HTTP client bound to its own cookie jar. Cookies set by the
// portal are replayed on every later request through the same Client and
// never leak to another Client.
type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client
}

func NewClient(opts ClientOptions, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel, "telemetry")

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	if opts.BypassCloudflare {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	httpClient.SetHeader("User-Agent", userAgent)
	httpClient.SetHeader("Accept-Language", acceptLanguage)
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	httpClient.SetTimeout(requestTimeout)

	telemetry.InstrumentResty(httpClient, "payslip/http", tel)
	if opts.Dump != nil {
		opts.Dump.Attach(httpClient)
	}

	return &Client{
		BaseUrl: baseUrl,
		Http:    httpClient,
	}, nil
}

func (c *Client) Get(ctx context.Context, endpoint string, headers map[string]string) (Response, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		SetHeaders(headers).
		Get(endpoint)
	if err != nil {
		return Response{}, fmt.Errorf("GET %s: %w", endpoint, err)
	}
	return toResponse(res), nil
}

func (c *Client) Post(ctx context.Context, endpoint string, headers map[string]string, form map[string]string) (Response, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetFormData(form).
		Post(endpoint)
	if err != nil {
		return Response{}, fmt.Errorf("POST %s: %w", endpoint, err)
	}
	return toResponse(res), nil
}

func toResponse(res *resty.Response) Response {
	return Response{
		Status: res.StatusCode(),
		Header: res.Header(),
		Body:   res.String(),
	}
}
