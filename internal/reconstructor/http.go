package reconstructor

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/itinerary-cli/internal/resilience"
)

// maxResponseBytes bounds how much of a service reply is read.
const maxResponseBytes = 8 << 20

// HTTPOptions configures the HTTP service client.
type HTTPOptions struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
}

// HTTPService calls a remote reconstruction endpoint at <BaseURL>/reconstruct.
type HTTPService struct {
	client  *http.Client
	url     string
	apiKey  string
	limiter *rate.Limiter
}

// NewHTTPService creates an HTTPService.
func NewHTTPService(opts HTTPOptions) *HTTPService {
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &HTTPService{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		url:     strings.TrimRight(opts.BaseURL, "/") + "/reconstruct",
		apiKey:  opts.APIKey,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
	}
}

// Reconstruct POSTs the request and validates the reply. 408, 429 and 5xx
// replies come back as resilience.TransientError.
func (s *HTTPService) Reconstruct(ctx context.Context, req Request) (*Response, error) {
	body, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "reconstructor: rate limit wait")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "reconstructor: build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "reconstructor: post")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, eris.Wrap(err, "reconstructor: read body")
	}

	zap.L().Debug("reconstructor: http reply",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("reconstructor: http status %d: %s", resp.StatusCode, snippet(data))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}
	return DecodeResponse(data)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
