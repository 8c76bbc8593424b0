package silverfin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the production Silverfin host.
const DefaultBaseURL = "https://live.getsilverfin.com"

// Client defines the firm-scoped Silverfin API operations used by the exporter.
type Client interface {
	ListCompanies(ctx context.Context, page, perPage int) ([]Company, error)
	ListPeriods(ctx context.Context, companyID int64, perPage int) ([]Period, error)
	CreateExport(ctx context.Context, companyID, periodID int64, req CreateExportRequest) (*ExportInstance, error)
	GetExport(ctx context.Context, companyID, periodID, instanceID int64) (*ExportInstance, error)
	Download(ctx context.Context, locator string) ([]byte, error)
}

// RequestError is returned for any failed request: network failure or a
// non-2xx status. StatusCode is 0 when no response was received.
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("silverfin: %s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("silverfin: %s %s: %s", e.Method, e.URL, e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the response status, or 0 if none was received.
func (e *RequestError) HTTPStatus() int {
	return e.StatusCode
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the platform host (scheme + host, no path).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit throttles outgoing requests to rps per second. Zero disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	firmID  string
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client scoped to firmID and authenticated with a bearer token.
func NewClient(firmID, token string, opts ...Option) Client {
	c := &httpClient{
		firmID:  firmID,
		token:   token,
		baseURL: DefaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 50,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiBase is the firm-scoped API root.
func (c *httpClient) apiBase() string {
	return fmt.Sprintf("%s/api/v4/f/%s", c.baseURL, url.PathEscape(c.firmID))
}

func (c *httpClient) ListCompanies(ctx context.Context, page, perPage int) ([]Company, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	var out []Company
	if err := c.get(ctx, "/companies", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *httpClient) ListPeriods(ctx context.Context, companyID int64, perPage int) ([]Period, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(perPage))

	var out []Period
	if err := c.get(ctx, fmt.Sprintf("/companies/%d/periods", companyID), q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *httpClient) CreateExport(ctx context.Context, companyID, periodID int64, req CreateExportRequest) (*ExportInstance, error) {
	var out ExportInstance
	path := fmt.Sprintf("/companies/%d/periods/%d/export_pdf_instances", companyID, periodID)
	if err := c.post(ctx, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) GetExport(ctx context.Context, companyID, periodID, instanceID int64) (*ExportInstance, error) {
	var out ExportInstance
	path := fmt.Sprintf("/companies/%d/periods/%d/export_pdf_instances/%d", companyID, periodID, instanceID)
	if err := c.get(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download fetches binary content. Root-relative locators are resolved
// against the platform host; the bearer token is only sent to that host.
func (c *httpClient) Download(ctx context.Context, locator string) ([]byte, error) {
	target, err := ResolveLocator(c.baseURL, locator)
	if err != nil {
		return nil, &RequestError{Method: http.MethodGet, URL: locator, Message: "invalid download locator", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &RequestError{Method: http.MethodGet, URL: target, Message: "create request", Err: err}
	}
	if sameHost(c.baseURL, target) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.do(req)
}

// ResolveLocator turns an absolute or root-relative download locator into an
// absolute URL on base.
func ResolveLocator(base, locator string) (string, error) {
	if strings.TrimSpace(locator) == "" {
		return "", eris.New("empty locator")
	}
	ref, err := url.Parse(locator)
	if err != nil {
		return "", eris.Wrap(err, "parse locator")
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", eris.Wrap(err, "parse base url")
	}
	return b.ResolveReference(ref).String(), nil
}

func sameHost(base, target string) bool {
	b, err := url.Parse(base)
	if err != nil {
		return false
	}
	t, err := url.Parse(target)
	if err != nil {
		return false
	}
	return strings.EqualFold(b.Host, t.Host)
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	target := c.apiBase() + path
	buf, err := json.Marshal(body)
	if err != nil {
		return &RequestError{Method: http.MethodPost, URL: target, Message: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(buf))
	if err != nil {
		return &RequestError{Method: http.MethodPost, URL: target, Message: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.doJSON(req, out)
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values, out any) error {
	target := c.apiBase() + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &RequestError{Method: http.MethodGet, URL: target, Message: "create request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.doJSON(req, out)
}

func (c *httpClient) doJSON(req *http.Request, out any) error {
	data, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &RequestError{Method: req.Method, URL: req.URL.String(), Message: "decode response", Err: err}
	}
	return nil
}

func (c *httpClient) do(req *http.Request) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, &RequestError{Method: req.Method, URL: req.URL.String(), Message: "rate limiter", Err: err}
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RequestError{Method: req.Method, URL: req.URL.String(), Message: "execute request", Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Method: req.Method, URL: req.URL.String(), StatusCode: resp.StatusCode, Message: "read response body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 500 {
			msg = msg[:500]
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &RequestError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	}

	return data, nil
}
