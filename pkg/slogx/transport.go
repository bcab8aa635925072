package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/emstore/pkg/idx"
)

// redacted lists request headers whose values never reach the log.
var redacted = []string{"Authorization", "Cookie", "X-CSRFToken"}

// Transport is the client-side counterpart of HTTPMiddleware. It stamps each
// outbound request with a request ID and logs one line per round trip.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{Base: base, Logger: logger}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(RequestIDHeader) == "" {
		// RoundTrippers must not modify the caller's request.
		req = req.Clone(req.Context())
		req.Header.Set(RequestIDHeader, idx.New().String())
	}

	log := t.Logger.With(
		"req_id", req.Header.Get(RequestIDHeader),
		"method", req.Method,
		"path", req.URL.Path,
	)
	if log.Enabled(req.Context(), slog.LevelDebug) {
		log.Debug("http_client_headers", "headers", redactHeaders(req.Header))
	}

	start := time.Now()
	resp, err := t.Base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		log.Warn("http_client_request", "duration_ms", duration, "err", err)
		return nil, err
	}

	log.Info("http_client_request", "status", resp.StatusCode, "duration_ms", duration)
	return resp, nil
}

func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	for _, k := range redacted {
		if _, ok := out[http.CanonicalHeaderKey(k)]; ok {
			out[http.CanonicalHeaderKey(k)] = "[redacted]"
		}
	}
	return out
}
