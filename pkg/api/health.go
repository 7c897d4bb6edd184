package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/sdscompose/pkg/metrics"
	"github.com/cuemby/sdscompose/pkg/storage"
)

// HealthServer provides HTTP health check and metrics endpoints
type HealthServer struct {
	store   storage.Store
	version string
	mux     *http.ServeMux

	mu     sync.Mutex
	server *http.Server
}

// NewHealthServer creates a health server reporting on store. A nil store
// is never ready.
func NewHealthServer(store storage.Store, version string) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		store:   store,
		version: version,
		mux:     mux,
	}

	// Register endpoints
	mux.HandleFunc("/health", getOnly(hs.healthHandler))
	mux.HandleFunc("/ready", getOnly(hs.readyHandler))
	mux.Handle("/health/components", metrics.HealthHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start serves until Shutdown is called
func (hs *HealthServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	hs.mu.Lock()
	hs.server = server
	hs.mu.Unlock()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops a started server
func (hs *HealthServer) Shutdown(ctx context.Context) error {
	hs.mu.Lock()
	server := hs.server
	hs.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// getOnly rejects every method but GET
func getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// healthHandler reports that the process is serving
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   hs.version,
	})
}

// readyHandler reports ready when the registry is readable and every
// critical component is healthy
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}
	notReady := func(msg string) {
		if resp.Status == "ready" {
			resp.Status = "not ready"
			resp.Message = msg
		}
	}

	switch {
	case hs.store == nil:
		resp.Checks["storage"] = "not initialized"
		notReady("Storage not initialized")
	default:
		if _, err := hs.store.ListPools(); err != nil {
			resp.Checks["storage"] = fmt.Sprintf("error: %v", err)
			notReady("Storage not accessible")
		} else {
			resp.Checks["storage"] = "ok"
		}
	}

	readiness := metrics.GetReadiness()
	for name, status := range readiness.Components {
		resp.Checks[name] = status
	}
	if readiness.Status != metrics.StatusReady {
		notReady(readiness.Message)
	}

	code := http.StatusOK
	if resp.Status != "ready" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// GetHandler returns the HTTP handler for embedding in other servers
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}
