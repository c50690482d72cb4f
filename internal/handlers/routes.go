package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Friends FriendService
	Users   UserDirectory
	Limiter RateLimiter
	// Authenticate resolves the caller for every /friends route.
	Authenticate mux.MiddlewareFunc
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// Instrument wraps every matched route when set.
	Instrument mux.MiddlewareFunc
	// Health probes backing services for GET /healthz.
	Health func(ctx context.Context) error
}

// RegisterRoutes wires HTTP handlers into the provided router.
func RegisterRoutes(router *mux.Router, deps Dependencies) {
	if deps.Instrument != nil {
		router.Use(deps.Instrument)
	}

	health := HealthHandler{Check: deps.Health}
	router.HandleFunc("/healthz", health.Handle).Methods(http.MethodGet)
	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics).Methods(http.MethodGet)
	}

	friends := FriendHandler{Friends: deps.Friends, Users: deps.Users, Limiter: deps.Limiter}

	api := router.PathPrefix("/friends").Subrouter()
	if deps.Authenticate != nil {
		api.Use(deps.Authenticate)
	}

	// Literal paths are registered before the {id} routes they would otherwise shadow.
	api.HandleFunc("", friends.List).Methods(http.MethodGet)
	api.HandleFunc("/requests/incoming", friends.Incoming).Methods(http.MethodGet)
	api.HandleFunc("/requests/outgoing", friends.Outgoing).Methods(http.MethodGet)
	api.HandleFunc("/blocked", friends.Blocked).Methods(http.MethodGet)

	api.HandleFunc("/accept/{id:[0-9]+}", friends.Accept).Methods(http.MethodPatch)
	api.HandleFunc("/reject/{id:[0-9]+}", friends.Reject).Methods(http.MethodPatch)
	api.HandleFunc("/cancel/{id:[0-9]+}", friends.Cancel).Methods(http.MethodDelete)
	api.HandleFunc("/block/{id:[0-9]+}", friends.Block).Methods(http.MethodPatch)
	api.HandleFunc("/unblock/{id:[0-9]+}", friends.Unblock).Methods(http.MethodPatch)
	api.HandleFunc("/delete/{id:[0-9]+}", friends.Delete).Methods(http.MethodDelete)

	api.HandleFunc("/{id:[0-9]+}", friends.Status).Methods(http.MethodGet)
	api.HandleFunc("/{id:[0-9]+}", friends.Send).Methods(http.MethodPost)
}
