package observability

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
)

// HealthServer exposes /healthz and /readyz endpoints.
type HealthServer struct {
	ready atomic.Bool

	mu     sync.RWMutex
	status map[string]func() string
}

// NewHealthServer creates a new health server.
func NewHealthServer() *HealthServer {
	return &HealthServer{status: make(map[string]func() string)}
}

// SetReady marks the server as ready to receive traffic.
func (h *HealthServer) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Report adds a named status line to the /readyz body. It never affects
// readiness: a disconnected collector is reported, not fatal.
func (h *HealthServer) Report(name string, fn func() string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status[name] = fn
}

// Handler returns an http.Handler with health and readiness endpoints.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /readyz", h.handleReady)
	return mux
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	body := map[string]string{"status": "not ready"}
	code := http.StatusServiceUnavailable
	if h.ready.Load() {
		body["status"] = "ready"
		code = http.StatusOK
	}

	h.mu.RLock()
	for name, fn := range h.status {
		body[name] = fn()
	}
	h.mu.RUnlock()

	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
