// Package api exposes the HTTP interface for the price tracker service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/priceloom/priceloom/internal/config"
	"github.com/priceloom/priceloom/internal/crawler"
	"github.com/priceloom/priceloom/internal/metrics"
	"github.com/priceloom/priceloom/internal/tracker"
	"github.com/priceloom/priceloom/internal/worker"
)

// Server wires HTTP handlers to the crawler, the scrape worker and the
// read-side stores.
type Server struct {
	router    chi.Router
	crawler   *crawler.Crawler
	worker    *worker.Worker
	products  tracker.ProductStore
	prices    tracker.PriceStore
	discounts tracker.DiscountStore
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	cr *crawler.Crawler,
	wk *worker.Worker,
	products tracker.ProductStore,
	prices tracker.PriceStore,
	discounts tracker.DiscountStore,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		crawler:   cr,
		worker:    wk,
		products:  products,
		prices:    prices,
		discounts: discounts,
		cfg:       cfg,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(120 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(cronSecretMiddleware(cfg.Auth.Secret))
		r.Post("/crawl", s.crawlAll)
		r.Post("/scrape", s.scrapeOne)
		r.Post("/scrape/all", s.scrapeAll)
		r.Get("/products", s.listProducts)
		r.Get("/products/{product_id}/options", s.listOptions)
		r.Get("/options/{option_id}/prices", s.listPrices)
		r.Get("/discounts/active", s.activeDiscount)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) crawlAll(w http.ResponseWriter, r *http.Request) {
	result, err := s.crawler.CrawlAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"categories_crawled": result.CategoriesCrawled,
		"categories_failed":  result.CategoriesFailed,
		"urls_discovered":    result.Discovered,
	})
}

func (s *Server) scrapeOne(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url query parameter required")
		return
	}
	result, err := s.worker.ScrapeURL(r.Context(), url)
	if err != nil {
		writeError(w, scrapeErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scrapeResponse(result))
}

func (s *Server) scrapeAll(w http.ResponseWriter, r *http.Request) {
	result, err := s.worker.ScrapeAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"attempted": result.Attempted,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	})
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	refs, err := s.products.ListProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if refs == nil {
		refs = []tracker.ProductRef{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": refs})
}

func (s *Server) listOptions(w http.ResponseWriter, r *http.Request) {
	productID, err := int64Param(r, "product_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts, err := s.products.ListOptions(r.Context(), productID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if opts == nil {
		opts = []tracker.Option{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"options": opts})
}

func (s *Server) listPrices(w http.ResponseWriter, r *http.Request) {
	optionID, err := int64Param(r, "option_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, to, err := timeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	points, err := s.prices.ListPrices(r.Context(), optionID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if points == nil {
		points = []tracker.PricePoint{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": points})
}

func (s *Server) activeDiscount(w http.ResponseWriter, r *http.Request) {
	disc, err := s.discounts.ActiveDiscount(r.Context())
	if errors.Is(err, tracker.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no active discount")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"event_name": disc.EventName,
		"percentage": disc.Percentage,
	})
}

func scrapeResponse(res tracker.ScrapeResult) map[string]any {
	return map[string]any{
		"product":  res.Product,
		"options":  res.Options,
		"prices":   res.Prices,
		"discount": res.Discount,
	}
}

func scrapeErrorStatus(err error) int {
	switch {
	case errors.Is(err, tracker.ErrFetchFailed):
		return http.StatusBadGateway
	case errors.Is(err, tracker.ErrTitleMissing),
		errors.Is(err, tracker.ErrSchemaMissing),
		errors.Is(err, tracker.ErrNoEventName):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func int64Param(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// timeRange parses optional from/to query params (RFC 3339). Absent
// bounds default to the whole history up to now.
func timeRange(r *http.Request) (time.Time, time.Time, error) {
	from := time.Unix(0, 0).UTC()
	to := time.Now().UTC()

	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from: %w", err)
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to: %w", err)
		}
		to = t
	}
	return from, to, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unknown"
		}
		metrics.ObserveHTTPRequest(r.Method, route, time.Since(start))
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

// cronSecretMiddleware gates the /v1 surface behind the shared secret
// carried by the scheduler in the X-Cron-Secret header.
func cronSecretMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := r.Header.Get("X-Cron-Secret")
			if secret == "" {
				secret = r.URL.Query().Get("secret")
			}
			if secret != expected {
				writeError(w, http.StatusForbidden, tracker.ErrUnauthorized.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
