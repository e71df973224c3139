// ABOUTME: HTTP client for the mirror node REST API and inscription CDN
// ABOUTME: Wraps every request in a rate limiter and a gobreaker circuit breaker

package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/2389/coven-hcs10/internal/hcs"
)

// Default client settings.
const (
	DefaultPageLimit      = 100
	DefaultMaxPages       = 50
	DefaultRequestsPerSec = 10
	DefaultBurst          = 5
	DefaultTimeout        = 15 * time.Second

	defaultCBMaxFailures uint32 = 5
	defaultCBTimeout            = 30 * time.Second
	defaultCBInterval           = 60 * time.Second

	maxBodyBytes = 8 << 20
)

// Options configures a Client.
type Options struct {
	// BaseURL is the mirror node root, e.g. https://testnet.mirrornode.hedera.com.
	BaseURL string
	// CDNURL serves inscribed content for hcs:// pointers.
	CDNURL  string
	Network string

	HTTPClient     *http.Client
	RequestsPerSec float64
	Burst          int
	PageLimit      int
	MaxPages       int

	// BreakerFailures consecutive failures open the circuit for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	Logger *slog.Logger
}

// Client reads topics, profiles and inscriptions over HTTP.
type Client struct {
	baseURL   string
	cdnURL    string
	network   string
	http      *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[[]byte]
	pageLimit int
	maxPages  int
	logger    *slog.Logger
}

// New creates a Client. Zero-valued options take defaults.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("mirror base url is required: %w", hcs.ErrNotInitialized)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mirror")

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	rps := opts.RequestsPerSec
	if rps <= 0 {
		rps = DefaultRequestsPerSec
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = DefaultBurst
	}
	pageLimit := opts.PageLimit
	if pageLimit <= 0 {
		pageLimit = DefaultPageLimit
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	maxFailures := opts.BreakerFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	cbTimeout := opts.BreakerTimeout
	if cbTimeout == 0 {
		cbTimeout = defaultCBTimeout
	}

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "mirror:" + opts.BaseURL,
		MaxRequests: 1,
		Interval:    defaultCBInterval,
		Timeout:     cbTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// A missing entity is an answer, not a sign the node is unhealthy.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, hcs.ErrNotFound)
		},
	})

	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		cdnURL:    strings.TrimRight(opts.CDNURL, "/"),
		network:   opts.Network,
		http:      httpClient,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		breaker:   cb,
		pageLimit: pageLimit,
		maxPages:  maxPages,
		logger:    logger,
	}, nil
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Unwrap maps 404 onto hcs.ErrNotFound.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return hcs.ErrNotFound
	}
	return nil
}

// get fetches url and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet := string(body)
			if len(snippet) > 200 {
				snippet = snippet[:200]
			}
			return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Body: snippet}
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("mirror node circuit open: %w", err)
		}
		return nil, err
	}
	return body, nil
}
