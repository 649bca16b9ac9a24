package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KushagraAgarwal525/racoon/internal/api/ratelimit"
	"github.com/KushagraAgarwal525/racoon/internal/api/recovery"
	"github.com/KushagraAgarwal525/racoon/internal/services"
)

// Deps carries the services the router exposes.
type Deps struct {
	Updates     *services.ProductivityService
	Ingest      *services.IngestService
	History     *services.HistoryService
	Leaderboard *services.LeaderboardService
	Users       *services.UserService
	Limiter     *ratelimit.Limiter
	Health      *HealthHandler
}

// NewRouter creates a new HTTP router with all API routes
func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()

	// Global middlewares
	router.Use(recovery.Middleware)

	productivityHandler := NewProductivityHandler(d.Updates, d.Ingest, d.History, d.Leaderboard, d.Limiter)
	userHandler := NewUserHandler(d.Users)
	healthHandler := d.Health
	if healthHandler == nil {
		healthHandler = NewHealthHandler(nil, nil)
	}

	// Health and metrics
	router.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Productivity endpoints
	router.HandleFunc("/api/productivity/update", productivityHandler.Update).Methods("POST")
	router.HandleFunc("/api/productivity/samples", productivityHandler.Samples).Methods("POST")
	router.HandleFunc("/api/productivity/history", productivityHandler.History).Methods("GET")
	router.HandleFunc("/api/productivity/today", productivityHandler.Today).Methods("GET")
	router.HandleFunc("/api/productivity/report", productivityHandler.Report).Methods("GET")
	router.HandleFunc("/api/productivity/leaderboard", productivityHandler.Leaderboard).Methods("GET")

	// User endpoints; /check is registered before the {userId} route
	router.HandleFunc("/api/users", userHandler.CreateUser).Methods("POST")
	router.HandleFunc("/api/users/check", userHandler.CheckUser).Methods("GET")
	router.HandleFunc("/api/users/{userId}", userHandler.GetUser).Methods("GET")

	return router
}
