package api

import (
	"net/http"
	"time"

	"github.com/SunilRudraKumar/Easy/internal/auth"
	"github.com/SunilRudraKumar/Easy/internal/observability/metrics"
	"github.com/SunilRudraKumar/Easy/pkg/logger"
)

// HeaderUserID 携带调用方声明的用户 ID，请求体中的 userId 优先。
const HeaderUserID = "X-User-Id"

// instrument 记录指标与审计日志，并把调用方用户 ID 放入上下文。
func instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		ctx := auth.WithUserID(r.Context(), r.Header.Get(HeaderUserID))
		next.ServeHTTP(sw, r.WithContext(ctx))

		elapsed := time.Since(start)
		metrics.ObserveHTTPRequest(name, r.Method, sw.status, elapsed)
		logger.Audit().Info("api_request",
			"event", name,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", elapsed.Milliseconds(),
			"user", auth.UserIDFromContext(ctx),
		)
	})
}

// statusWriter 捕获响应状态码。
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}
