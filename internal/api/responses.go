package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	logx "nightingale/pkg/logx"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"-"`
	TraceID string `json:"trace_id,omitempty"`
}

// CancelResponse is the body of DELETE /api/tasks/{id}.
type CancelResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// QueueFullResponse is returned with 429 when admission is refused.
type QueueFullResponse struct {
	Error        string `json:"error"`
	QueueSize    int    `json:"queue_size"`
	MaxQueueSize int    `json:"max_queue_size"`
	TraceID      string `json:"trace_id,omitempty"`
}

func traceID(r *http.Request) string { return middleware.GetReqID(r.Context()) }

func (a *API) respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.log.Error("failed to encode JSON response",
			logx.String("path", r.URL.Path),
			logx.String("trace_id", traceID(r)),
			logx.Err(err),
		)
	}
}

// respondError writes an ErrorResponse. err is logged, never sent.
// 5xx is logged at error, 429 at warn and other 4xx at debug.
func (a *API) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	tid := traceID(r)
	fields := []logx.Field{
		logx.String("trace_id", tid),
		logx.String("method", r.Method),
		logx.String("path", r.URL.Path),
		logx.Int("status", status),
		logx.String("user_message", message),
	}
	if err != nil {
		fields = append(fields, logx.Err(err), logx.String("error_type", fmt.Sprintf("%T", err)))
	}
	level := logx.LevelDebug
	switch {
	case status >= http.StatusInternalServerError:
		level = logx.LevelError
	case status == http.StatusTooManyRequests:
		level = logx.LevelWarn
	}
	a.log.Log(level, "api error response", fields...)

	a.respondJSON(w, r, status, ErrorResponse{Error: message, Code: status, TraceID: tid})
}
