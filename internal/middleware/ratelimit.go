package middleware

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	apperrors "profileapi/internal/errors"
)

// RateLimiter throttles sensitive license endpoints per client IP
type RateLimiter struct {
	rps    rate.Limit
	burst  int
	logger *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter creates a per-IP rate limiter
func NewRateLimiter(rps float64, burst int, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		logger:   logger.With(slog.String("component", "rate_limiter")),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Handler returns the middleware handler
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.limiterFor(ip).Allow() {
			reqID := middleware.GetReqID(r.Context())
			rl.logger.WarnContext(r.Context(), "request rate limited",
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", ip))
			render.Render(w, r, apperrors.NewProblemDetails(
				http.StatusTooManyRequests,
				"/errors/rate-limited",
				"Too Many Requests",
				"Too many license operations. Please try again later",
				instance(r, reqID),
			))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limiterFor returns the limiter for an IP, creating it on first use
func (rl *RateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[ip] = limiter
	}
	return limiter
}
