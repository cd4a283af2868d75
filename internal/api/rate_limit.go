package api

import (
	"net/http"
	"strconv"
	"time"
)

// allow spends cost tokens for subject and writes a 429 when the bucket is
// empty. Limiter errors fail open.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, subject string, cost int) bool {
	if s.rateLimiter == nil {
		return true
	}
	if subject == "" {
		subject = "anonymous"
	}

	decision, err := s.rateLimiter.Allow(r.Context(), subject, cost)
	if err != nil {
		s.logger.Warn("rate limiter check failed", "subject", subject, "err", err)
		return true
	}

	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
	if decision.Allowed {
		return true
	}

	retryAfter := max(int(decision.RetryAfter.Round(time.Second).Seconds()), 1)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	s.metrics.rateLimitRejected.WithLabelValues(routeLabel(r.URL.Path)).Inc()
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}
