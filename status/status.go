package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/wippyai/tickhost/scheduler"
)

// Provider exposes scheduler statistics.
type Provider interface {
	Stats() scheduler.Stats
}

// Info describes the hosted module.
type Info struct {
	Source  string   `json:"source"`
	Exports []string `json:"exports,omitempty"`
	Polling bool     `json:"polling"`
}

// Report is the /status response body.
type Report struct {
	StartedAt           time.Time `json:"startedAt,omitzero"`
	LastTick            time.Time `json:"lastTick,omitzero"`
	Module              *Info     `json:"module,omitempty"`
	State               string    `json:"state"`
	Period              string    `json:"period"`
	Uptime              string    `json:"uptime,omitempty"`
	Overlap             string    `json:"overlap"`
	OnFailure           string    `json:"onFailure"`
	LastError           string    `json:"lastError,omitempty"`
	Ticks               uint64    `json:"ticks"`
	Failures            uint64    `json:"failures"`
	ConsecutiveFailures uint64    `json:"consecutiveFailures"`
	Dropped             uint64    `json:"dropped"`
	Handle              uint64    `json:"handle"`
	Rate                float64   `json:"ticksPerSecond"`
	HasHandle           bool      `json:"hasHandle"`
}

// NewReport summarizes s as of now.
func NewReport(s scheduler.Stats, info *Info, now time.Time) Report {
	r := Report{
		StartedAt:           s.StartedAt,
		LastTick:            s.LastTick,
		Module:              info,
		State:               s.State.String(),
		Period:              s.Period.String(),
		Overlap:             s.Overlap,
		OnFailure:           s.OnFailure,
		LastError:           s.LastError,
		Ticks:               s.Ticks,
		Failures:            s.Failures,
		ConsecutiveFailures: s.ConsecutiveFailures,
		Dropped:             s.Dropped,
		Handle:              uint64(s.Handle),
		HasHandle:           s.HasHandle,
	}
	if !s.StartedAt.IsZero() {
		r.Uptime = now.Sub(s.StartedAt).Truncate(time.Millisecond).String()
	}
	if !s.ArmedAt.IsZero() && s.LastTick.After(s.ArmedAt) {
		r.Rate = float64(s.Ticks) / s.LastTick.Sub(s.ArmedAt).Seconds()
	}
	return r
}

// Healthy reports whether the scheduler is starting or ticking.
func Healthy(s scheduler.Stats) bool {
	return s.State == scheduler.StateStarting || s.State == scheduler.StateRunning
}

// NewRouter returns the status routes:
//
//	GET /healthz  200 while starting or running, 503 otherwise
//	GET /status   JSON Report
func NewRouter(p Provider, info *Info, logger *zap.Logger) chi.Router {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		stats := p.Stats()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !Healthy(stats) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintln(w, stats.State)
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, NewReport(p.Stats(), info, time.Now()))
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("status request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Duration("elapsed", time.Since(start)))
		})
	}
}

// Server serves the status routes on a TCP address.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *zap.Logger
	done   chan struct{}
}

// Listen binds addr and starts serving h in the background.
func Listen(addr string, h http.Handler, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server failed", zap.Error(err))
		}
	}()
	logger.Info("status server listening", zap.String("addr", ln.Addr().String()))
	return s, nil
}

// Addr is the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
