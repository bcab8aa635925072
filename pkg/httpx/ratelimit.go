package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/emstore/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig is a token bucket: RequestsPerWindow refill over Window,
// with at most Burst available at once.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

func (c RateLimitConfig) limit() rate.Limit {
	if c.Window <= 0 || c.RequestsPerWindow <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(c.RequestsPerWindow) / c.Window.Seconds())
}

// Route profiles. Each can be overridden with RATELIMIT_{NAME}_REQUESTS,
// RATELIMIT_{NAME}_WINDOW_SEC and RATELIMIT_{NAME}_BURST.
var (
	// StrictLimit guards credential endpoints: 5 per minute.
	StrictLimit = RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}
	// ModerateLimit covers authenticated writes: 20 per minute.
	ModerateLimit = RateLimitConfig{RequestsPerWindow: 20, Window: time.Minute, Burst: 20}
	// LenientLimit covers authenticated reads: 100 per minute.
	LenientLimit = RateLimitConfig{RequestsPerWindow: 100, Window: time.Minute, Burst: 100}
	// PublicLimit covers health, docs and token bootstrap: 1000 per minute.
	PublicLimit = RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}
)

func init() {
	for name, cfg := range map[string]*RateLimitConfig{
		"STRICT":   &StrictLimit,
		"MODERATE": &ModerateLimit,
		"LENIENT":  &LenientLimit,
		"PUBLIC":   &PublicLimit,
	} {
		*cfg = ParseRateLimitFromEnv(name, *cfg)
	}
}

// ParseRateLimitFromEnv applies RATELIMIT_{prefix}_* overrides to def.
// Unparseable or non-positive values are ignored.
func ParseRateLimitFromEnv(prefix string, def RateLimitConfig) RateLimitConfig {
	cfg := def
	if n, ok := positiveEnv("RATELIMIT_" + prefix + "_REQUESTS"); ok {
		cfg.RequestsPerWindow = n
	}
	if n, ok := positiveEnv("RATELIMIT_" + prefix + "_WINDOW_SEC"); ok {
		cfg.Window = time.Duration(n) * time.Second
	}
	if n, ok := positiveEnv("RATELIMIT_" + prefix + "_BURST"); ok {
		cfg.Burst = n
	}
	return cfg
}

func positiveEnv(key string) (int, bool) {
	n, err := strconv.Atoi(os.Getenv(key))
	return n, err == nil && n > 0
}

// KeyExtractor groups requests into buckets. An empty key bypasses limiting.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor returns the client address, preferring the first
// X-Forwarded-For hop and then X-Real-IP over the socket address.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// UserIDKeyExtractor keys by the authenticated user, or "" for anonymous
// callers.
func UserIDKeyExtractor(r *http.Request) string {
	return UserIDFromContext(r.Context())
}

// CompositeKeyExtractor joins the non-empty keys of several extractors.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(extractors))
		for _, extract := range extractors {
			if key := extract(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// maxKeyBody caps how much of a JSON body is read to extract a key.
const maxKeyBody = 64 << 10

// JSONFieldKeyExtractor keys by a top-level string field of a JSON body,
// e.g. the username of a login attempt. The body is restored for the next
// handler.
func JSONFieldKeyExtractor(fieldName string) KeyExtractor {
	return func(r *http.Request) string {
		if r.Body == nil {
			return ""
		}
		data, err := io.ReadAll(io.LimitReader(r.Body, maxKeyBody))
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(data))
		if err != nil {
			return ""
		}

		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			return ""
		}
		v, _ := fields[fieldName].(string)
		return strings.ToLower(strings.TrimSpace(v))
	}
}

// sweepEvery bounds how often idle buckets are dropped.
const sweepEvery = time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// buckets holds one limiter per key and forgets keys idle for longer than
// the time a bucket takes to refill completely.
type buckets struct {
	cfg  RateLimitConfig
	idle time.Duration

	mu        sync.Mutex
	byKey     map[string]*bucket
	lastSweep time.Time
}

func newBuckets(cfg RateLimitConfig) *buckets {
	return &buckets{
		cfg:       cfg,
		idle:      max(cfg.Window, 5*time.Minute),
		byKey:     make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

func (b *buckets) get(key string, now time.Time) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastSweep) >= sweepEvery {
		for k, e := range b.byKey {
			if now.Sub(e.lastSeen) > b.idle {
				delete(b.byKey, k)
			}
		}
		b.lastSweep = now
	}

	e, ok := b.byKey[key]
	if !ok {
		e = &bucket{limiter: rate.NewLimiter(b.cfg.limit(), b.cfg.Burst)}
		b.byKey[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// RateLimitMiddleware rejects requests beyond cfg per key with 429 and a
// Retry-After header.
func RateLimitMiddleware(cfg RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	b := newBuckets(cfg)
	limitHeader := strconv.Itoa(cfg.RequestsPerWindow)
	windowHeader := cfg.Window.String()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			key := keyExtractor(r)
			if key == "" {
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			res := b.get(key, now).ReserveN(now, 1)
			if delay := res.DelayFrom(now); !res.OK() || delay > 0 {
				res.CancelAt(now)
				if !res.OK() {
					delay = cfg.Window
				}
				retryAfter := max(int(math.Ceil(delay.Seconds())), 1)

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("X-RateLimit-Limit", limitHeader)
				w.Header().Set("X-RateLimit-Window", windowHeader)

				log.Warn("rate limit exceeded",
					"key", key,
					"endpoint", r.URL.Path,
					"retry_after", retryAfter,
				)
				WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP limits by client address.
func RateLimitByIP(cfg RateLimitConfig) Middleware {
	return RateLimitMiddleware(cfg, IPKeyExtractor)
}

// RateLimitByUser limits by authenticated user and address together.
func RateLimitByUser(cfg RateLimitConfig) Middleware {
	return RateLimitMiddleware(cfg, CompositeKeyExtractor(":",
		UserIDKeyExtractor,
		IPKeyExtractor,
	))
}

// RateLimitByIPAndField limits by IP plus a JSON body field. Login uses it
// with "username" so one address cannot spray passwords at many accounts
// under a single budget.
func RateLimitByIPAndField(cfg RateLimitConfig, fieldName string) Middleware {
	return RateLimitMiddleware(cfg, CompositeKeyExtractor(":",
		IPKeyExtractor,
		JSONFieldKeyExtractor(fieldName),
	))
}
