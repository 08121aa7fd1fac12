package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	logx "nightingale/pkg/logx"
)

// Routes builds the chi router.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(a.cors)

	r.Get("/health", a.healthz)
	r.Mount("/debug", a.profiler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/queue/stats", a.queueStats)

		r.Group(func(r chi.Router) {
			r.Use(a.identity)
			r.With(a.rateLimit).Post("/tasks", a.createTask)
			r.Get("/tasks", a.listTasks)
			r.Get("/tasks/{taskID}", a.getTask)
			r.Delete("/tasks/{taskID}", a.cancelTask)
		})
	})
	return r
}

// accessLog writes one line per request. Health checks go to debug.
func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := logx.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = logx.LevelError
			case r.URL.Path == "/health":
				level = logx.LevelDebug
			}
			a.log.Log(level, "http request",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", status),
				logx.Int("bytes", ww.BytesWritten()),
				logx.Duration("took", time.Since(start)),
				logx.String("remote", r.RemoteAddr),
				logx.String("trace_id", traceID(r)),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

// cors delegates to the middleware built by the last Apply.
func (a *API) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mw := a.state().cors
		if mw == nil || r.Header.Get("Origin") == "" {
			next.ServeHTTP(w, r)
			return
		}
		mw(next).ServeHTTP(w, r)
	})
}

// profiler serves chi's pprof routes while Options.Profiler is on. A set
// ProfilerToken is required as a bearer token or ?token= query value.
func (a *API) profiler() http.Handler {
	prof := middleware.Profiler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		opts := a.state().opts
		if !opts.Profiler {
			http.NotFound(w, r)
			return
		}
		if tok := strings.TrimSpace(opts.ProfilerToken); tok != "" && !tokenMatches(r, tok) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			a.respondError(w, r, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}
		prof.ServeHTTP(w, r)
	})
}

func tokenMatches(r *http.Request, tok string) bool {
	if got := r.URL.Query().Get("token"); got != "" {
		return equalToken(got, tok)
	}
	const p = "Bearer "
	ah := r.Header.Get("Authorization")
	return strings.HasPrefix(ah, p) && equalToken(strings.TrimSpace(strings.TrimPrefix(ah, p)), tok)
}

func equalToken(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
