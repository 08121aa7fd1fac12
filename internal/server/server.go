// Package server hosts the HTTP API listener. The serve loop runs under a
// supervisor so an unexpected exit rebinds instead of killing the process.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	rtsup "nightingale/internal/runtime/supervisor"
	logx "nightingale/pkg/logx"
)

const (
	DefaultAddr            = ":8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Config controls the listener and the runtime profiling rates.
// Negative profiling rates leave the runtime untouched.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	MutexProfileFraction int
	BlockProfileRate     int
}

func (c Config) withDefaults() Config {
	c.Addr = strings.TrimSpace(c.Addr)
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return c
}

type Service struct {
	mu      sync.Mutex
	log     logx.Logger
	cfg     Config
	handler http.Handler

	pending  net.Listener // bound by Start, consumed by the first serve
	ln       net.Listener
	srv      *http.Server
	sup      *rtsup.Supervisor
	addr     string
	stopDone chan struct{}
}

func New(cfg Config, handler http.Handler, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg.withDefaults(), handler: handler, log: log}
}

// Supervisor returns the serve loop supervisor (nil if not started).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Addr returns the bound address, or "" when not listening.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Reconfigure applies cfg and rebinds the listener when the address or a
// timeout changed. Profiling rates apply immediately.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) error {
	cfg = cfg.withDefaults()
	applyRuntimeRates(cfg)

	s.mu.Lock()
	prev := s.cfg
	running := s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	if !running || !needsRestart(prev, cfg) {
		return nil
	}
	s.log.Info("http listener rebinding", logx.String("from", prev.Addr), logx.String("to", cfg.Addr))
	s.Stop(ctx)
	return s.Start(ctx)
}

func needsRestart(a, b Config) bool {
	return a.Addr != b.Addr ||
		a.ReadTimeout != b.ReadTimeout ||
		a.WriteTimeout != b.WriteTimeout ||
		a.IdleTimeout != b.IdleTimeout
}

func applyRuntimeRates(cfg Config) {
	if cfg.MutexProfileFraction >= 0 {
		runtime.SetMutexProfileFraction(cfg.MutexProfileFraction)
	}
	if cfg.BlockProfileRate >= 0 {
		runtime.SetBlockProfileRate(cfg.BlockProfileRate)
	}
}

// Start binds the listener and launches the serve loop. A bind failure is
// returned; later serve failures are retried with backoff. Start is
// idempotent.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		s.mu.Lock()
		if s.stopDone != nil {
			done := s.stopDone
			s.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		if s.sup != nil {
			s.mu.Unlock()
			return nil
		}
		cfg := s.cfg
		s.mu.Unlock()

		applyRuntimeRates(cfg)
		ln, err := net.Listen("tcp", cfg.Addr)
		if err != nil {
			return fmt.Errorf("http listen %s: %w", cfg.Addr, err)
		}

		s.mu.Lock()
		if s.sup != nil || s.stopDone != nil {
			s.mu.Unlock()
			_ = ln.Close()
			continue
		}
		s.pending = ln
		s.addr = ln.Addr().String()
		s.sup = rtsup.New(ctx,
			rtsup.WithLogger(s.log),
			rtsup.WithCancelOnError(false),
		)
		sup := s.sup
		s.mu.Unlock()

		sup.GoRestart("http.serve", s.serveOnce,
			rtsup.WithPublishFirstError(true),
			rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		)
		return nil
	}
}

// Stop shuts the server down gracefully, bounded by ctx and
// Config.ShutdownTimeout.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.sup == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	srv, ln, pending, sup := s.srv, s.ln, s.pending, s.sup
	timeout := s.cfg.ShutdownTimeout
	s.mu.Unlock()

	go func() {
		defer close(done)

		if srv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), timeout)
			if err := srv.Shutdown(sctx); err != nil {
				s.log.Warn("http shutdown incomplete", logx.Err(err))
			}
			cancel()
			_ = srv.Close()
		}
		if ln != nil {
			_ = ln.Close()
		}
		if pending != nil {
			_ = pending.Close()
		}
		sup.Cancel()
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.ln, s.srv, s.pending, s.sup = nil, nil, nil, nil
		s.addr = ""
		s.stopDone = nil
		s.mu.Unlock()
		s.log.Info("http server stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	ln := s.pending
	s.pending = nil
	s.mu.Unlock()

	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", cfg.Addr)
		if err != nil {
			s.log.Error("http listen failed", logx.String("addr", cfg.Addr), logx.Err(err))
			if ctx.Err() != nil {
				return context.Canceled
			}
			return err
		}
	}
	defer func() { _ = ln.Close() }()

	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	defer func() { _ = srv.Close() }()

	s.mu.Lock()
	s.ln = ln
	s.srv = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("http server listening", logx.String("addr", ln.Addr().String()))
	err := srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.srv = nil
		s.ln = nil
	}
	stopping := s.stopDone != nil
	s.mu.Unlock()

	if stopping || ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("http server exited unexpectedly")
	}
	return err
}
