// internal/infrastructure/metrics/server.go
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"trading-session-guard/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthFunc проверка компонента; nil: здоров
type HealthFunc func(ctx context.Context) error

// Server служебный HTTP: /metrics и /healthz
type Server struct {
	srv    *http.Server
	checks map[string]HealthFunc
}

// NewServer создает сервер на порту port
func NewServer(port int, m *Metrics, checks map[string]HealthFunc) *Server {
	s := &Server{checks: checks}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", s.handleHealth)

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler корневой обработчик (для тестов)
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start слушает порт до Shutdown
func (s *Server) Start() error {
	logger.Info("📡 [HTTP] Метрики и healthz на %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Shutdown останавливает сервер
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	result := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			result[name] = err.Error()
			continue
		}
		result[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}
