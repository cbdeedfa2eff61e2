package httpmiddleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"elnksync.local/internal/platform/ratelimit"
)

// RateLimit 按客户端 IP 限流。redis 故障时放行：限流是保护措施，
// 不能因为保护措施挂了把正常流量一起拒掉。
func RateLimit(limiter *ratelimit.Limiter, scope string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := fmt.Sprintf("ratelimit:%s:%s", scope, ClientIP(r))
			allowed, retryAfter, err := limiter.Allow(r.Context(), key, limit, window, uuid.NewString())
			if err != nil {
				slog.Warn("rate limiter unavailable, allowing request", "scope", scope, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
