package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/sentinel-hub/classification-app-backend/internal/model"
	"github.com/sentinel-hub/classification-app-backend/internal/observability"
)

// ClientConfig bounds the shared outbound fetch path.
type ClientConfig struct {
	Retries       int
	RetryInterval time.Duration
	RateLimit     float64
	RateBurst     int
	Timeout       time.Duration
}

// Client is the outbound HTTP path shared by all adapter variants: one pooled
// transport, a token-bucket limiter, a circuit breaker per client and a
// bounded retry policy applied to transient failures only.
type Client struct {
	http    *http.Client
	logger  zerolog.Logger
	breaker *gobreaker.CircuitBreaker[[]byte]
	limiter *rate.Limiter
	retries int
	backoff time.Duration
}

func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   128,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = int(cfg.RateLimit)
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "upstream",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 8
		},
	})

	retryInterval := cfg.RetryInterval
	if retryInterval <= 0 {
		retryInterval = 200 * time.Millisecond
	}

	return &Client{
		http:    &http.Client{Transport: transport, Timeout: timeout},
		logger:  logger,
		breaker: breaker,
		limiter: limiter,
		retries: cfg.Retries,
		backoff: retryInterval,
	}
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.code, e.body)
}

// GetRaster fetches a PNG payload and decodes it into a raster of the given
// pixel dimensions. Timeouts, connection failures and 5xx responses are
// retried with exponential backoff up to the configured bound; 4xx responses,
// undecodable payloads and wrongly sized images are not.
func (c *Client) GetRaster(ctx context.Context, upstream, url string, width, height int) (*model.Raster, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	operation := func() ([]byte, error) {
		body, err := c.breaker.Execute(func() ([]byte, error) {
			return c.fetchOnce(ctx, upstream, url)
		})
		if err == nil {
			return body, nil
		}
		if !transient(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.backoff

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(c.retries)+1))
	if err != nil {
		return nil, err
	}

	raster, err := decodePNG(body)
	if err != nil {
		c.logger.Debug().Err(err).Str("upstream", upstream).Msg("undecodable raster payload")
		return nil, fmt.Errorf("decode raster payload: %w", err)
	}
	if raster.Width != width || raster.Height != height {
		c.logger.Debug().Str("upstream", upstream).
			Int("width", raster.Width).Int("height", raster.Height).
			Msg("raster size does not match request")
		return nil, fmt.Errorf("raster is %dx%d, requested %dx%d", raster.Width, raster.Height, width, height)
	}
	return raster, nil
}

func (c *Client) fetchOnce(ctx context.Context, upstream, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "image/png")

	start := time.Now()
	resp, err := c.http.Do(req)
	observability.ObserveUpstreamLatency(upstream, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, &statusError{code: resp.StatusCode, body: string(b)}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return b, nil
}

// transient decides whether a fetch error is worth retrying: server-side
// statuses and network/timeout failures are, client errors and breaker
// rejections are not.
func transient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	return true
}

func decodePNG(data []byte) (*model.Raster, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return rasterFromImage(img), nil
}

func rasterFromImage(img image.Image) *model.Raster {
	b := img.Bounds()
	out := &model.Raster{
		Width:  b.Dx(),
		Height: b.Dy(),
		Pixels: make([]model.RGB, b.Dx()*b.Dy()),
	}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out.Pixels[i] = model.RGB{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8)}
			i++
		}
	}
	return out
}
