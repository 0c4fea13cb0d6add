package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
)

// logFormatter writes chi request logs through logr.
type logFormatter struct {
	logger logr.Logger
}

type logEntry struct {
	logger logr.Logger
}

func (f logFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &logEntry{logger: f.logger.WithValues(
		"request_id", middleware.GetReqID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"remote", r.RemoteAddr,
	)}
}

func (e *logEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	e.logger.V(1).Info("http request", "status", status, "bytes", bytes, "elapsed", elapsed.String())
}

func (e *logEntry) Panic(v interface{}, stack []byte) {
	e.logger.Error(nil, "http handler panic", "panic", v, "stack", string(stack))
}

func loggerMiddleware(l logr.Logger) func(next http.Handler) http.Handler {
	return middleware.RequestLogger(logFormatter{logger: l})
}
