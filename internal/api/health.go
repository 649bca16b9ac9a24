package api

import (
	"net/http"
	"time"

	"github.com/KushagraAgarwal525/racoon/internal/api/respond"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	isHealthy  func() bool
	components func() map[string]bool
}

// NewHealthHandler reports on the given service health functions. Either may be nil.
func NewHealthHandler(isHealthy func() bool, components func() map[string]bool) *HealthHandler {
	if isHealthy == nil {
		isHealthy = func() bool { return false }
	}
	return &HealthHandler{isHealthy: isHealthy, components: components}
}

// CheckHealth handles GET /api/health
// Always returns 200; body reports healthy/unhealthy. 500 indicates handler failure only.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	status := "unhealthy"
	if h.isHealthy() {
		status = "healthy"
	}
	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.components != nil {
		comps := make(map[string]string)
		for name, ok := range h.components() {
			if ok {
				comps[name] = "healthy"
			} else {
				comps[name] = "unhealthy"
			}
		}
		response["components"] = comps
	}
	respond.WriteJSON(w, http.StatusOK, response)
}
