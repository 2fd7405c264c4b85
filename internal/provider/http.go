package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/angeloszaimis/fetch-orchestrator/internal/engine"
	"github.com/angeloszaimis/fetch-orchestrator/internal/failure"
	"github.com/angeloszaimis/fetch-orchestrator/internal/telemetry"
)

const defaultMaxBodyBytes = 4 << 20

// Vendor error envelopes that arrive with a 2xx status.
var noteKeys = []string{"error", "Error Message", "Note", "Information"}

// HTTPConfig describes a REST market-data vendor.
type HTTPConfig struct {
	ID           string
	BaseURL      string
	APIKey       string
	APIKeyParam  string
	APIKeyHeader string
	// Endpoints maps an engine to a path template containing {symbol}.
	Endpoints    map[engine.Engine]string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// HTTPProvider fetches JSON payloads from a REST vendor.
type HTTPProvider struct {
	id        string
	baseURL   *url.URL
	apiKey    string
	keyParam  string
	keyHeader string
	endpoints map[engine.Engine]string
	maxBody   int64
	client    *http.Client
}

func NewHTTPProvider(cfg HTTPConfig) (*HTTPProvider, error) {
	if cfg.ID == "" {
		return nil, errors.New("provider id is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("provider %s: parse base url: %w", cfg.ID, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("provider %s: base url must use http or https", cfg.ID)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	endpoints := make(map[engine.Engine]string, len(cfg.Endpoints))
	for e, tmpl := range cfg.Endpoints {
		endpoints[e] = tmpl
	}

	return &HTTPProvider{
		id:        cfg.ID,
		baseURL:   base,
		apiKey:    cfg.APIKey,
		keyParam:  cfg.APIKeyParam,
		keyHeader: cfg.APIKeyHeader,
		endpoints: endpoints,
		maxBody:   cfg.MaxBodyBytes,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

func (p *HTTPProvider) ID() string {
	return p.id
}

// Supports reports whether the provider has an endpoint for e.
func (p *HTTPProvider) Supports(e engine.Engine) bool {
	_, ok := p.endpoints[e]
	return ok
}

func (p *HTTPProvider) Fetch(ctx context.Context, req Request) (*Response, error) {
	tmpl, ok := p.endpoints[req.Engine]
	if !ok {
		return nil, &Error{
			Category: failure.EntitlementDenied,
			Err:      fmt.Errorf("provider %s has no endpoint for engine %s", p.id, req.Engine),
		}
	}

	endpoint := strings.ReplaceAll(tmpl, "{symbol}", url.PathEscape(req.Symbol))
	target, err := p.baseURL.Parse(endpoint)
	if err != nil {
		return nil, &Error{Category: failure.EntitlementDenied, Endpoint: endpoint, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.authorize(target).String(), nil)
	if err != nil {
		return nil, &Error{Category: failure.NetworkError, Endpoint: endpoint, Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	if p.keyHeader != "" && p.apiKey != "" {
		httpReq.Header.Set(p.keyHeader, p.apiKey)
	}

	res, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Category: Classify(err), Endpoint: endpoint, Err: redact(err, target)}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, p.maxBody+1))
	if err != nil {
		return nil, &Error{Category: Classify(err), StatusCode: res.StatusCode, Endpoint: endpoint, Err: err}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &Error{
			Category:   ClassifyStatus(res.StatusCode),
			StatusCode: res.StatusCode,
			Endpoint:   endpoint,
			BodyPrefix: telemetry.TruncateBody(body),
			Bytes:      len(body),
			Err:        fmt.Errorf("unexpected status %d", res.StatusCode),
		}
	}

	if int64(len(body)) > p.maxBody {
		return nil, p.bodyError(failure.DecodingError, res.StatusCode, endpoint, body,
			fmt.Errorf("response exceeds %d bytes", p.maxBody))
	}

	if !json.Valid(body) {
		return nil, p.bodyError(failure.DecodingError, res.StatusCode, endpoint, body,
			errors.New("response is not valid JSON"))
	}

	if note, ok := vendorNote(body); ok {
		category := ClassifyBody([]byte(note))
		if category == "" {
			category = failure.EntitlementDenied
		}
		return nil, p.bodyError(category, res.StatusCode, endpoint, body, fmt.Errorf("vendor note: %s", note))
	}

	return &Response{
		Endpoint:   endpoint,
		StatusCode: res.StatusCode,
		Bytes:      len(body),
		Payload:    json.RawMessage(body),
	}, nil
}

func (p *HTTPProvider) authorize(u *url.URL) *url.URL {
	if p.keyParam == "" || p.apiKey == "" {
		return u
	}
	out := *u
	q := out.Query()
	q.Set(p.keyParam, p.apiKey)
	out.RawQuery = q.Encode()
	return &out
}

// redact replaces the request URL in transport errors with the key-free
// target so the API key never reaches traces.
func redact(err error, target *url.URL) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	clean := *uerr
	clean.URL = target.String()
	return &clean
}

func (p *HTTPProvider) bodyError(c failure.Category, status int, endpoint string, body []byte, err error) *Error {
	return &Error{
		Category:   c,
		StatusCode: status,
		Endpoint:   endpoint,
		BodyPrefix: telemetry.TruncateBody(body),
		Bytes:      len(body),
		Err:        err,
	}
}

func vendorNote(body []byte) (string, bool) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", false
	}
	for _, k := range noteKeys {
		raw, ok := envelope[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, true
		}
		return string(raw), true
	}
	return "", false
}
