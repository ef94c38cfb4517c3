package middleware

import (
	"net/http"
	"time"

	"github.com/directchat/internal/logger"
)

// RequestLog logs slow requests with method and path. Logging is async.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer logger.DeferLogDuration("http "+r.Method+" "+r.URL.Path, start)()
		next.ServeHTTP(w, r)
	})
}
