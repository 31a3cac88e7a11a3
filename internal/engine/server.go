package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

type Server struct {
	engine            *Engine
	router            *mux.Router
	userHandler       *UserHandlers
	providerHandler   *ProviderHandlers
	connectionHandler *ConnectionHandlers
	syncHandler       *SyncHandlers
	middleware        *Middleware
}

func NewServer(engine *Engine) *Server {
	s := &Server{
		engine:            engine,
		router:            mux.NewRouter(),
		userHandler:       NewUserHandlers(engine),
		providerHandler:   NewProviderHandlers(engine),
		connectionHandler: NewConnectionHandlers(engine),
		syncHandler:       NewSyncHandlers(engine),
		middleware:        NewMiddleware(engine),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	// CORS middleware
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	s.router.Use(s.middleware.RequestIDMiddleware)
	s.router.Use(s.middleware.LoggingMiddleware)
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// User endpoints
	users := api.PathPrefix("/users").Subrouter()
	users.HandleFunc("", s.userHandler.ListUsers).Methods(http.MethodGet)
	users.HandleFunc("/lookup", s.userHandler.LookupUser).Methods(http.MethodGet)
	users.HandleFunc("/batch", s.userHandler.ListUsersByIDs).Methods(http.MethodGet)
	users.HandleFunc("/{user_id}", s.userHandler.ShowUser).Methods(http.MethodGet)
	users.HandleFunc("/{user_id}", s.userHandler.DeleteUser).Methods(http.MethodDelete)
	users.HandleFunc("/{user_id}/requests", s.connectionHandler.ListRequests).Methods(http.MethodGet)
	users.HandleFunc("/{user_id}/connections", s.connectionHandler.ListConnections).Methods(http.MethodGet)

	// Provider endpoints
	providers := api.PathPrefix("/providers").Subrouter()
	providers.HandleFunc("", s.providerHandler.ListProviders).Methods(http.MethodGet)
	providers.HandleFunc("/lookup", s.providerHandler.LookupProvider).Methods(http.MethodGet)
	providers.HandleFunc("/{provider_id}", s.providerHandler.ShowProvider).Methods(http.MethodGet)
	providers.HandleFunc("/{provider_id}", s.providerHandler.DeleteProvider).Methods(http.MethodDelete)

	// Connection request lifecycle
	requests := api.PathPrefix("/requests").Subrouter()
	requests.HandleFunc("", s.connectionHandler.CreateRequest).Methods(http.MethodPost)
	requests.HandleFunc("/{request_id}/accept", s.connectionHandler.AcceptRequest).Methods(http.MethodPost)
	requests.HandleFunc("/{request_id}/reject", s.connectionHandler.RejectRequest).Methods(http.MethodPost)
	requests.HandleFunc("/{request_id}/cancel", s.connectionHandler.CancelRequest).Methods(http.MethodPost)
	requests.HandleFunc("/{request_id}", s.connectionHandler.DeleteRequest).Methods(http.MethodDelete)

	// Connection endpoints
	connections := api.PathPrefix("/connections").Subrouter()
	connections.HandleFunc("/pair", s.connectionHandler.ShowConnectionByPair).Methods(http.MethodGet)
	connections.HandleFunc("/{connection_id}", s.connectionHandler.ShowConnection).Methods(http.MethodGet)
	connections.HandleFunc("/{connection_id}", s.connectionHandler.DeleteConnection).Methods(http.MethodDelete)

	// Directory sync triggers
	syncRoutes := api.PathPrefix("/sync").Subrouter()
	syncRoutes.HandleFunc("", s.syncHandler.SyncAll).Methods(http.MethodPost)
	syncRoutes.HandleFunc("/users", s.syncHandler.SyncUsers).Methods(http.MethodPost)
	syncRoutes.HandleFunc("/providers", s.syncHandler.SyncProviders).Methods(http.MethodPost)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.engine.CheckHealth(ctx); err != nil {
		writeErrorResponse(s.engine, w, http.StatusServiceUnavailable, "Service unhealthy", err.Error())
		return
	}

	version, err := s.engine.SchemaVersion(ctx)
	if err != nil {
		writeErrorResponse(s.engine, w, http.StatusServiceUnavailable, "Schema version unavailable", err.Error())
		return
	}

	writeJSONResponse(s.engine, w, http.StatusOK, HealthResponse{
		Status:        StatusHealthy,
		SchemaVersion: version,
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
