// Package httpclient provides the HTTP fetcher used to retrieve playlists,
// encryption keys, and segments over HTTP(S).
//
// Two profiles are exposed: an on-demand fetcher that retries a fixed number
// of times with a fixed delay between attempts, and a simple fetcher that
// makes a single attempt. Both transparently decompress gzip, deflate, and
// brotli response bodies.
package httpclient

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// ErrNetworkExhausted is returned once every retry attempt has failed.
var ErrNetworkExhausted = errors.New("network: retries exhausted")

// HTTP header constants.
const (
	HeaderAcceptEncoding  = "Accept-Encoding"
	HeaderContentEncoding = "Content-Encoding"
	HeaderUserAgent       = "User-Agent"

	EncodingGzip    = "gzip"
	EncodingDeflate = "deflate"
	EncodingBrotli  = "br"

	acceptEncodingHeader = "gzip, deflate, br"
)

// Config holds the configuration for a Fetcher.
type Config struct {
	// Timeout is the per-attempt timeout.
	Timeout time.Duration
	// RetryAttempts is the maximum number of attempts (0 means a single attempt, no retries).
	RetryAttempts int
	// RetryDelay is the fixed delay between attempts.
	RetryDelay time.Duration
	// UserAgent is the User-Agent header sent with requests.
	UserAgent string
	// Logger receives a warn-level entry for every failed attempt.
	Logger *slog.Logger
	// BaseClient is the underlying http.Client to use. If nil, one is created from Timeout.
	BaseClient *http.Client
}

// Fetcher performs HTTP GET requests with the configured retry policy and
// transparent response decompression.
type Fetcher struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// NewOnDemand returns a Fetcher configured for on-demand playlist/segment
// fetches: up to 20 attempts, 250ms fixed delay, 30s per-attempt timeout,
// matching the resilience budget of the pipeline's on-demand mode.
func NewOnDemand(logger *slog.Logger) *Fetcher {
	return New(Config{
		Timeout:       30 * time.Second,
		RetryAttempts: 20,
		RetryDelay:    250 * time.Millisecond,
		UserAgent:     "odieux/1.0",
		Logger:        logger,
	})
}

// NewSimple returns a Fetcher that makes a single attempt with a 10s timeout,
// for lookups (such as the CLI's catalog requests) where a long retry budget
// would stall the caller.
func NewSimple(logger *slog.Logger) *Fetcher {
	return New(Config{
		Timeout:       10 * time.Second,
		RetryAttempts: 0,
		UserAgent:     "odieux/1.0",
		Logger:        logger,
	})
}

// New creates a Fetcher from an explicit Config.
func New(cfg Config) *Fetcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	baseClient := cfg.BaseClient
	if baseClient == nil {
		baseClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Fetcher{
		config: cfg,
		client: baseClient,
		logger: cfg.Logger,
	}
}

// Get fetches the given URL, retrying per the fetcher's configured policy.
// A non-2xx response status is treated as a failure subject to retry.
// The returned body is fully read, decompressed if needed, and closed.
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error

	attempts := f.config.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			f.logger.WarnContext(ctx, "retrying fetch",
				slog.Int("attempt", attempt),
				slog.Duration("delay", f.config.RetryDelay),
				slog.String("url", obfuscateURL(rawURL)),
				slog.String("cause", lastErr.Error()),
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.config.RetryDelay):
			}
		}

		body, err := f.attempt(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %s: %v", ErrNetworkExhausted, obfuscateURL(rawURL), lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if f.config.UserAgent != "" {
		req.Header.Set(HeaderUserAgent, f.config.UserAgent)
	}
	req.Header.Set(HeaderAcceptEncoding, acceptEncodingHeader)

	start := time.Now()
	resp, err := f.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		f.logger.Warn("fetch failed",
			slog.String("url", obfuscateURL(rawURL)),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Warn("fetch returned non-2xx status",
			slog.String("url", obfuscateURL(rawURL)),
			slog.Int("status", resp.StatusCode),
			slog.Duration("duration", duration),
		)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	reader, err := decompress(resp)
	if err != nil {
		return nil, fmt.Errorf("decompressing response: %w", err)
	}
	defer reader.Close()

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	f.logger.Debug("fetch completed",
		slog.String("url", obfuscateURL(rawURL)),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", duration),
		slog.Int("bytes", len(body)),
	)

	return body, nil
}

// decompress wraps the response body with a decompressing reader if the
// response carries a recognized Content-Encoding.
func decompress(resp *http.Response) (io.ReadCloser, error) {
	encoding := strings.ToLower(resp.Header.Get(HeaderContentEncoding))
	switch encoding {
	case "":
		return io.NopCloser(resp.Body), nil
	case EncodingGzip:
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		return gz, nil
	case EncodingDeflate:
		return flate.NewReader(resp.Body), nil
	case EncodingBrotli:
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	default:
		return io.NopCloser(resp.Body), nil
	}
}

// obfuscateURL returns a URL string with sensitive query parameters masked,
// since segment/key URLs frequently carry signed-access tokens.
func obfuscateURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	query := u.Query()
	for _, param := range []string{"token", "signature", "sig", "key", "auth", "password", "secret"} {
		if query.Has(param) {
			query.Set(param, "***")
		}
	}
	u.RawQuery = query.Encode()
	return u.String()
}
