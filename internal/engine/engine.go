// Package engine hosts the HTTP facade: it owns the database connection,
// runs schema migrations on startup, composes the storage services, and
// serves the REST API over gorilla/mux.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/crosslink-io/crosslink/internal/services/connection"
	"github.com/crosslink-io/crosslink/internal/services/provider"
	"github.com/crosslink-io/crosslink/internal/services/schema"
	syncsvc "github.com/crosslink-io/crosslink/internal/services/sync"
	"github.com/crosslink-io/crosslink/internal/services/user"
	"github.com/crosslink-io/crosslink/pkg/config"
	"github.com/crosslink-io/crosslink/pkg/database"
	"github.com/crosslink-io/crosslink/pkg/logger"
)

// UserStore is the user surface the HTTP handlers need
type UserStore interface {
	Count(ctx context.Context, updatedAfter *int64) (int, error)
	List(ctx context.Context, updatedAfter *int64, limit, page int) ([]*user.User, error)
	GetByID(ctx context.Context, userID string) (*user.User, error)
	GetByIDs(ctx context.Context, userIDs []string) ([]*user.User, error)
	GetByUsername(ctx context.Context, username string) (*user.User, error)
	DeleteByID(ctx context.Context, userID string) error
}

// ProviderStore is the provider surface the HTTP handlers need
type ProviderStore interface {
	Count(ctx context.Context, updatedAfter *int64) (int, error)
	List(ctx context.Context, updatedAfter *int64, limit, page int) ([]*provider.Provider, error)
	GetByID(ctx context.Context, providerID string) (*provider.Provider, error)
	GetByProviderName(ctx context.Context, providerName string) (*provider.Provider, error)
	DeleteByID(ctx context.Context, providerID string) error
}

// ConnectionStore is the connection surface the HTTP handlers need
type ConnectionStore interface {
	CreateRequest(ctx context.Context, requesterID, receiverID string, greeting *string) (*connection.ConnectionRequest, error)
	CancelRequest(ctx context.Context, requestID int64, requesterID string) (*connection.ConnectionRequest, error)
	AcceptRequest(ctx context.Context, requestID int64, receiverID string) (*connection.ConnectionRequest, error)
	RejectRequest(ctx context.Context, requestID int64, receiverID string) (*connection.ConnectionRequest, error)
	GetRequestsByUserID(ctx context.Context, userID string) ([]*connection.ConnectionRequest, error)
	DeleteRequestByID(ctx context.Context, requestID int64) error
	GetConnectionByID(ctx context.Context, connectionID int64) (*connection.Connection, error)
	GetConnectionByPair(ctx context.Context, userID1, userID2 string) (*connection.Connection, error)
	GetConnectionsByUserID(ctx context.Context, userID string) ([]*connection.Connection, error)
	DeleteConnectionByID(ctx context.Context, connectionID int64) error
}

// SyncRunner triggers directory sync runs
type SyncRunner interface {
	SyncUsers(ctx context.Context) (int, error)
	SyncProviders(ctx context.Context) (int, error)
	SyncAll(ctx context.Context) (int, error)
}

type Engine struct {
	config        *config.Config
	logger        *logger.Logger
	db            *database.PostgreSQL
	redis         *database.Redis
	schemaService *schema.Service
	users         UserStore
	providers     ProviderStore
	connections   ConnectionStore
	syncer        SyncRunner
	directory     syncsvc.Directory
	server        *http.Server
	state         struct {
		sync.Mutex
		isRunning bool
	}
	metrics struct {
		requestsProcessed int64
		errors            int64
	}
}

func NewEngine(cfg *config.Config) *Engine {
	return &Engine{
		config: cfg,
	}
}

// SetLogger sets the logger for the engine
func (e *Engine) SetLogger(logger *logger.Logger) {
	e.logger = logger
}

// SetDirectory sets the external identity directory. Without one the sync
// endpoints respond 503.
func (e *Engine) SetDirectory(d syncsvc.Directory) {
	e.directory = d
}

// Start connects to storage, migrates the schema, composes the services
// and begins serving HTTP. It returns once the server is listening.
func (e *Engine) Start(ctx context.Context) error {
	e.state.Lock()
	if e.state.isRunning {
		e.state.Unlock()
		return fmt.Errorf("engine is already running")
	}
	e.state.isRunning = true
	e.state.Unlock()

	// A failed start must leave the engine stopped so it can be retried
	started := false
	defer func() {
		if started {
			return
		}
		if e.redis != nil {
			e.redis.Close()
			e.redis = nil
		}
		if e.db != nil {
			e.db.Close()
			e.db = nil
		}
		e.state.Lock()
		e.state.isRunning = false
		e.state.Unlock()
	}()

	if e.logger != nil {
		e.logger.Infof("Starting crosslink engine...")
	}

	db, err := database.New(ctx, database.FromGlobalConfig(e.config))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	e.db = db

	e.schemaService = schema.NewService(db, e.logger)
	if err := e.schemaService.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	userService := user.NewService(db, e.logger)
	providerService := provider.NewService(db, e.logger)

	e.users = userService
	e.providers = providerService

	// Read-through cache over user lookups when Redis is configured. The
	// cached store also fronts the sync write path so upserts invalidate
	// their entries instead of serving stale profiles until TTL.
	var syncUserStore syncsvc.UserStore = userService
	if e.config.Get("redis.enabled") == "true" {
		r, err := database.NewRedis(ctx, database.RedisFromGlobalConfig(e.config))
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		e.redis = r
		cached := newCachedUserStore(userService, r.Client(), e.config, e.logger)
		e.users = cached
		syncUserStore = cached
	}

	e.connections = connection.NewService(db, userService, e.logger)

	if e.directory != nil {
		pageSize, _ := strconv.Atoi(e.config.GetOrDefault("sync.page_size", "0"))
		e.syncer = syncsvc.NewSyncer(e.directory, syncUserStore, providerService, e.logger, pageSize)
	}

	portStr := e.config.GetOrDefault("services.api.http_port", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port configuration: %v", err)
	}

	e.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: NewServer(e),
	}

	if e.logger != nil {
		e.logger.Infof("Starting HTTP server on port: %d", port)
	}

	go func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if e.logger != nil {
				e.logger.Errorf("HTTP server error: %v", err)
			}
			atomic.AddInt64(&e.metrics.errors, 1)
		}
	}()

	if e.logger != nil {
		e.logger.Infof("Crosslink engine started successfully")
	}

	started = true
	return nil
}

// Stop shuts down the HTTP server and closes storage connections
func (e *Engine) Stop(ctx context.Context) error {
	e.state.Lock()
	if !e.state.isRunning {
		e.state.Unlock()
		return nil
	}
	e.state.isRunning = false
	e.state.Unlock()

	var shutdownErr error
	if e.server != nil {
		shutdownErr = e.server.Shutdown(ctx)
	}
	if e.redis != nil {
		e.redis.Close()
	}
	if e.db != nil {
		e.db.Close()
	}
	return shutdownErr
}

// CheckHealth verifies the engine is running and the database reachable
func (e *Engine) CheckHealth(ctx context.Context) error {
	e.state.Lock()
	running := e.state.isRunning
	e.state.Unlock()

	if !running {
		return fmt.Errorf("service not initialized")
	}
	if e.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return e.db.Ping(ctx)
}

// SchemaVersion reports the currently applied schema version
func (e *Engine) SchemaVersion(ctx context.Context) (int, error) {
	if e.schemaService == nil {
		return 0, fmt.Errorf("schema service not initialized")
	}
	return e.schemaService.Version(ctx)
}

func (e *Engine) GetMetrics() map[string]int64 {
	return map[string]int64{
		"requests_processed": atomic.LoadInt64(&e.metrics.requestsProcessed),
		"errors":             atomic.LoadInt64(&e.metrics.errors),
	}
}

func (e *Engine) TrackOperation() {
	atomic.AddInt64(&e.metrics.requestsProcessed, 1)
}

func (e *Engine) TrackError() {
	atomic.AddInt64(&e.metrics.errors, 1)
}
