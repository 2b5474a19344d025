// Package collyfetcher implements tracker.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/priceloom/priceloom/internal/ratelimit"
	"github.com/priceloom/priceloom/internal/tracker"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements tracker.Fetcher using the Colly collector. It does a
// single GET per call: no retries, no link following. All failures,
// network or non-2xx, surface as tracker.ErrFetchFailed.
type Fetcher struct {
	cfg           Config
	limiter       *ratelimit.Limiter
	baseCollector *colly.Collector
}

// New builds a Fetcher. The limiter is optional; when nil, fetches are not
// paced.
func New(cfg Config, limiter *ratelimit.Limiter) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &Fetcher{
		cfg:           cfg,
		limiter:       limiter,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET and returns the raw body.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, url); err != nil {
			return nil, fmt.Errorf("%w: %v", tracker.ErrFetchFailed, err)
		}
	}

	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: fetch canceled: %v", tracker.ErrFetchFailed, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: visit %s: %v", tracker.ErrFetchFailed, url, err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("%w: %s: %v", tracker.ErrFetchFailed, url, *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
