// Package monitoring keeps in-process counters for the authorization
// server and serves them on /metrics and /health.
package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// Pinger is satisfied by the storage backends the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Metrics struct {
	mu                    sync.RWMutex
	StartTime             time.Time            `json:"start_time"`
	TotalRequests         int64                `json:"total_requests"`
	ActiveRequests        int64                `json:"active_requests"`
	CodesIssued           int64                `json:"authorization_codes_issued"`
	TokensIssued          int64                `json:"tokens_issued"`
	TokensRefreshed       int64                `json:"tokens_refreshed"`
	TokensRevoked         int64                `json:"tokens_revoked"`
	FailedExchanges       int64                `json:"failed_exchanges"`
	ResponseTimeHistogram map[string][]float64 `json:"response_time_histogram"`
}

type namedPinger struct {
	name   string
	pinger Pinger
}

type Service struct {
	metrics *Metrics
	pingers []namedPinger
}

func NewService() *Service {
	return &Service{
		metrics: &Metrics{
			StartTime:             time.Now(),
			ResponseTimeHistogram: make(map[string][]float64),
		},
	}
}

// RegisterPinger adds a backend to the health check probe list.
func (s *Service) RegisterPinger(name string, pinger Pinger) {
	s.pingers = append(s.pingers, namedPinger{name: name, pinger: pinger})
}

func (s *Service) IncrementRequests() {
	s.metrics.mu.Lock()
	defer s.metrics.mu.Unlock()
	s.metrics.TotalRequests++
}

func (s *Service) IncrementActiveRequests() {
	s.metrics.mu.Lock()
	defer s.metrics.mu.Unlock()
	s.metrics.ActiveRequests++
}

func (s *Service) DecrementActiveRequests() {
	s.metrics.mu.Lock()
	defer s.metrics.mu.Unlock()
	s.metrics.ActiveRequests--
}

func (s *Service) IncrementCodesIssued() {
	s.metrics.mu.Lock()
	defer s.metrics.mu.Unlock()
	s.metrics.CodesIssued++
}

func (s *Service) IncrementTokensIssued() {
	s.metrics.mu.Lock()
	defer s.metrics.mu.Unlock()
	s.metrics.TokensIssued++
}

func (s *Service) IncrementTokensRefreshed() {
	s.metrics.mu.Lock()
	defer s.metrics.mu.Unlock()
	s.metrics.TokensRefreshed++
}

func (s *Service) IncrementTokensRevoked() {
	s.metrics.mu.Lock()
	defer s.metrics.mu.Unlock()
	s.metrics.TokensRevoked++
}

func (s *Service) IncrementFailedExchanges() {
	s.metrics.mu.Lock()
	defer s.metrics.mu.Unlock()
	s.metrics.FailedExchanges++
}

func (s *Service) RecordResponseTime(endpoint string, duration time.Duration) {
	s.metrics.mu.Lock()
	defer s.metrics.mu.Unlock()

	durationMs := float64(duration.Nanoseconds()) / 1e6
	s.metrics.ResponseTimeHistogram[endpoint] = append(
		s.metrics.ResponseTimeHistogram[endpoint],
		durationMs,
	)

	// Keep the per-endpoint sample buffer bounded.
	if len(s.metrics.ResponseTimeHistogram[endpoint]) > 1000 {
		s.metrics.ResponseTimeHistogram[endpoint] = s.metrics.ResponseTimeHistogram[endpoint][100:]
	}
}

func (s *Service) GetMetrics() *Metrics {
	s.metrics.mu.RLock()
	defer s.metrics.mu.RUnlock()

	snapshot := &Metrics{
		StartTime:             s.metrics.StartTime,
		TotalRequests:         s.metrics.TotalRequests,
		ActiveRequests:        s.metrics.ActiveRequests,
		CodesIssued:           s.metrics.CodesIssued,
		TokensIssued:          s.metrics.TokensIssued,
		TokensRefreshed:       s.metrics.TokensRefreshed,
		TokensRevoked:         s.metrics.TokensRevoked,
		FailedExchanges:       s.metrics.FailedExchanges,
		ResponseTimeHistogram: make(map[string][]float64),
	}
	for k, v := range s.metrics.ResponseTimeHistogram {
		snapshot.ResponseTimeHistogram[k] = append([]float64{}, v...)
	}
	return snapshot
}

func (s *Service) GetSystemMetrics() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]interface{}{
		"uptime_seconds":  time.Since(s.metrics.StartTime).Seconds(),
		"memory_alloc_mb": float64(memStats.Alloc) / 1024 / 1024,
		"memory_sys_mb":   float64(memStats.Sys) / 1024 / 1024,
		"gc_runs":         memStats.NumGC,
		"goroutines":      runtime.NumGoroutine(),
		"go_version":      runtime.Version(),
	}
}

func (s *Service) ServeMetrics(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"oauth_metrics":  s.GetMetrics(),
		"system_metrics": s.GetSystemMetrics(),
		"timestamp":      time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// ServeHealthCheck probes the storage backends and reports degraded with
// a 503 when any of them is unreachable.
func (s *Service) ServeHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	checks := make(map[string]string)
	for _, np := range s.pingers {
		if err := np.pinger.Ping(ctx); err != nil {
			status = "degraded"
			checks[np.name] = "unreachable"
		} else {
			checks[np.name] = "ok"
		}
	}

	response := map[string]interface{}{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(s.metrics.StartTime).Seconds(),
	}

	statusCode := http.StatusOK
	if status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}
