package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/etlfabric/etlfabric-api/internal/authz"
	"github.com/etlfabric/etlfabric-api/internal/handlers"
)

// NewRouter sets up the API routes. Everything under /api sits behind
// the org-scoping JWT middleware.
func NewRouter(
	auth *authz.Middleware,
	connections *handlers.ConnectionHandler,
	pipelines *handlers.PipelineHandler,
	runs *handlers.RunHandler,
	schedules *handlers.ScheduleHandler,
	catalog *handlers.CatalogHandler,
) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.Handler)

	api.HandleFunc("/connections", connections.Create).Methods(http.MethodPost)
	api.HandleFunc("/connections", connections.List).Methods(http.MethodGet)
	api.HandleFunc("/connections/{id}", connections.Get).Methods(http.MethodGet)
	api.HandleFunc("/connections/{id}", connections.Update).Methods(http.MethodPut)
	api.HandleFunc("/connections/{id}", connections.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/connections/{id}/catalog", catalog.ListByConnection).Methods(http.MethodGet)

	api.HandleFunc("/pipelines", pipelines.Create).Methods(http.MethodPost)
	api.HandleFunc("/pipelines", pipelines.List).Methods(http.MethodGet)
	api.HandleFunc("/pipelines/{id}", pipelines.Get).Methods(http.MethodGet)
	api.HandleFunc("/pipelines/{id}", pipelines.Update).Methods(http.MethodPut)
	api.HandleFunc("/pipelines/{id}", pipelines.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/pipelines/{id}/run", pipelines.Trigger).Methods(http.MethodPost)

	api.HandleFunc("/runs", runs.List).Methods(http.MethodGet)
	api.HandleFunc("/runs/stats", runs.Stats).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", runs.Get).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/cancel", runs.Cancel).Methods(http.MethodPost)

	api.HandleFunc("/schedules", schedules.Create).Methods(http.MethodPost)
	api.HandleFunc("/schedules", schedules.List).Methods(http.MethodGet)
	api.HandleFunc("/schedules/{id}", schedules.Get).Methods(http.MethodGet)
	api.HandleFunc("/schedules/{id}", schedules.Update).Methods(http.MethodPut)
	api.HandleFunc("/schedules/{id}", schedules.Delete).Methods(http.MethodDelete)

	return router
}
