package middleware

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/errors"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/metrics"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/ratelimit"
)

// RateLimit checks the limiter keyed by the caller's user id, falling back to
// the client IP before authentication. Limiter failures reject the request.
func RateLimit(limiter ratelimit.Limiter, backend string, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if p := Principal(c); p != nil {
			key = "user:" + p.UserID
		}

		decision, err := limiter.CheckLimit(c.Request.Context(), key)
		if err != nil {
			abort(c, errors.DependencyUnavailable("rate limiter", err))
			return
		}
		if !decision.Allowed {
			m.RateLimitRejections.WithLabelValues(backend).Inc()
			if decision.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
			}
			abort(c, errors.RateLimited())
			return
		}
		c.Next()
	}
}
