package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"

	"nightingale/internal/task/engine"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateTaskRequest is the body of POST /api/tasks. Priority accepts a
// name ("high") or a number (1..4).
type CreateTaskRequest struct {
	Type     string         `json:"type" validate:"required,max=64"`
	Payload  map[string]any `json:"payload"`
	Priority any            `json:"priority,omitempty"`
}

// TaskListResponse is the body of GET /api/tasks.
type TaskListResponse struct {
	Tasks []engine.Snapshot `json:"tasks"`
}

func (a *API) createTask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.state().opts.MaxBodyBytes)

	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		a.respondError(w, r, http.StatusBadRequest, validationMessage(err), err)
		return
	}

	typ, err := engine.ParseType(req.Type)
	if err != nil {
		a.respondError(w, r, http.StatusBadRequest, "Unknown task type: "+req.Type, err)
		return
	}
	prio, err := parsePriority(req.Priority)
	if err != nil {
		a.respondError(w, r, http.StatusBadRequest, "Invalid priority", err)
		return
	}

	res, err := a.sched.Submit(r.Context(), engine.SubmitRequest{
		Type:     typ,
		Payload:  req.Payload,
		OwnerID:  UserID(r.Context()),
		Priority: prio,
	})
	if err != nil {
		var capErr *engine.CapacityError
		switch {
		case errors.As(err, &capErr):
			a.respondJSON(w, r, http.StatusTooManyRequests, QueueFullResponse{
				Error:        "Queue is full. Please try again later.",
				QueueSize:    capErr.QueueSize,
				MaxQueueSize: capErr.MaxQueueSize,
				TraceID:      traceID(r),
			})
		case errors.Is(err, engine.ErrUnknownType), errors.Is(err, engine.ErrInvalidPriority):
			a.respondError(w, r, http.StatusBadRequest, err.Error(), err)
		case errors.Is(err, engine.ErrStopped):
			a.respondError(w, r, http.StatusServiceUnavailable, "Service is shutting down", err)
		default:
			a.respondError(w, r, http.StatusInternalServerError, "Internal server error", err)
		}
		return
	}
	a.respondJSON(w, r, http.StatusAccepted, res)
}

func (a *API) getTask(w http.ResponseWriter, r *http.Request) {
	snap, err := a.sched.Status(r.Context(), chi.URLParam(r, "taskID"), UserID(r.Context()))
	if err != nil {
		status, msg := lookupError(err)
		a.respondError(w, r, status, msg, err)
		return
	}
	a.respondJSON(w, r, http.StatusOK, snap)
}

func (a *API) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks := a.sched.ListUserTasks(r.Context(), UserID(r.Context()))
	a.respondJSON(w, r, http.StatusOK, TaskListResponse{Tasks: tasks})
}

func (a *API) cancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	msg, err := a.sched.Cancel(r.Context(), id, UserID(r.Context()))
	if err != nil {
		status, text := lookupError(err)
		var term *engine.AlreadyTerminalError
		if errors.As(err, &term) {
			status, text = http.StatusConflict, fmt.Sprintf("Task is already %s", term.Status)
		}
		a.respondJSON(w, r, status, CancelResponse{Success: false, Error: text, TraceID: traceID(r)})
		return
	}
	a.respondJSON(w, r, http.StatusOK, CancelResponse{Success: true, Message: msg})
}

func (a *API) queueStats(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, r, http.StatusOK, a.sched.Stats(r.Context()))
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	diag := a.sched.Diagnostics()
	body := map[string]any{
		"status": "ok",
		"time":   a.now().UTC().Format(time.RFC3339),
		"engine": diag,
	}
	status := http.StatusOK
	if !diag.Running {
		body["status"] = "stopped"
		status = http.StatusServiceUnavailable
	}
	if a.health != nil {
		for k, v := range a.health() {
			if _, taken := body[k]; !taken {
				body[k] = v
			}
		}
	}
	a.respondJSON(w, r, status, body)
}

// lookupError maps Status/Cancel errors to a status code and a safe message.
func lookupError(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound, "Task not found"
	case errors.Is(err, engine.ErrAccessDenied):
		return http.StatusForbidden, "Access denied"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func parsePriority(v any) (engine.Priority, error) {
	if v == nil {
		return engine.PriorityNormal, nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", engine.ErrInvalidPriority, v)
	}
	return engine.ParsePriority(s)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		default:
			parts = append(parts, fmt.Sprintf("%s failed %q", field, fe.Tag()))
		}
	}
	return "Invalid request: " + strings.Join(parts, ", ")
}
