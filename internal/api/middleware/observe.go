package middleware

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cloo-solutions/reposcout/internal/metrics"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type accessLogEntry struct {
	Timestamp       string `json:"ts"`
	Method          string `json:"method"`
	Route           string `json:"route"`
	Path            string `json:"path"`
	Status          int    `json:"status"`
	Bytes           int    `json:"bytes"`
	DurationMS      int64  `json:"duration_ms"`
	RequestID       string `json:"request_id,omitempty"`
	SearchRequestID string `json:"search_request_id,omitempty"`
	ClientID        string `json:"client_id,omitempty"`
	RemoteAddr      string `json:"remote_addr,omitempty"`
}

// Observe runs every request inside a Sentry transaction, counts it in
// Prometheus and writes one JSON access log line. Requests are named by
// their chi route pattern, so it must be mounted on the root router.
func Observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub().Clone()
		}
		options := []sentry.SpanOption{
			sentry.WithOpName("http.server"),
			sentry.WithTransactionSource(sentry.SourceRoute),
		}
		if trace := r.Header.Get("sentry-trace"); trace != "" {
			options = append(options, sentry.ContinueFromHeaders(trace, r.Header.Get("baggage")))
		}
		tx := sentry.StartTransaction(r.Context(), r.Method+" "+r.URL.Path, options...)
		r = r.WithContext(sentry.SetHubOnContext(tx.Context(), hub))

		requestID := chimw.GetReqID(r.Context())
		if requestID != "" {
			hub.Scope().SetTag("request_id", requestID)
			tx.SetTag("request_id", requestID)
		}

		defer func() {
			if rec := recover(); rec != nil {
				tx.Status = sentry.SpanStatusInternalError
				tx.Finish()
				hub.RecoverWithContext(r.Context(), rec)
				panic(rec)
			}
		}()

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
			if isUpgrade(r) {
				status = http.StatusSwitchingProtocols
			}
		}
		route := routePattern(r)
		searchID := searchRequestID(r)

		tx.Name = r.Method + " " + route
		tx.Status = spanStatus(status)
		tx.SetData("http.response.status_code", status)
		if searchID != "" {
			tx.SetTag("search_request_id", searchID)
		}
		if status >= 500 {
			hub.CaptureMessage(fmt.Sprintf("HTTP %d: %s %s", status, r.Method, route))
		}
		tx.Finish()

		elapsed := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		payload, err := json.Marshal(accessLogEntry{
			Timestamp:       start.UTC().Format(time.RFC3339Nano),
			Method:          r.Method,
			Route:           route,
			Path:            r.URL.Path,
			Status:          status,
			Bytes:           ww.BytesWritten(),
			DurationMS:      elapsed.Milliseconds(),
			RequestID:       requestID,
			SearchRequestID: searchID,
			ClientID:        r.Header.Get("X-Client-ID"),
			RemoteAddr:      r.RemoteAddr,
		})
		if err != nil {
			log.Printf("access log: marshal: %v", err)
			return
		}
		log.Println(string(payload))
	})
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unmatched"
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return "unmatched"
}

// searchRequestID picks the search request a route is scoped to, if any.
func searchRequestID(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	if id := rctx.URLParam("requestId"); id != "" {
		return id
	}
	if strings.HasPrefix(rctx.RoutePattern(), "/requests/") || strings.HasPrefix(rctx.RoutePattern(), "/ws/requests/") {
		return rctx.URLParam("id")
	}
	return ""
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func spanStatus(status int) sentry.SpanStatus {
	switch {
	case status < 400:
		return sentry.SpanStatusOK
	case status == http.StatusUnauthorized:
		return sentry.SpanStatusUnauthenticated
	case status == http.StatusNotFound:
		return sentry.SpanStatusNotFound
	case status == http.StatusConflict:
		return sentry.SpanStatusAlreadyExists
	case status == http.StatusRequestEntityTooLarge:
		return sentry.SpanStatusResourceExhausted
	case status < 500:
		return sentry.SpanStatusInvalidArgument
	case status == http.StatusServiceUnavailable:
		return sentry.SpanStatusUnavailable
	default:
		return sentry.SpanStatusInternalError
	}
}
