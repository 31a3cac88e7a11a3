package engine

import (
	"context"
	"net/http"
	"time"
)

// SyncHandlers contains the directory sync trigger handlers
type SyncHandlers struct {
	engine *Engine
}

// NewSyncHandlers creates a new instance of SyncHandlers
func NewSyncHandlers(engine *Engine) *SyncHandlers {
	return &SyncHandlers{
		engine: engine,
	}
}

func (sh *SyncHandlers) run(w http.ResponseWriter, r *http.Request, fn func(context.Context) (int, error), what string) {
	sh.engine.TrackOperation()

	if sh.engine.syncer == nil {
		writeErrorResponse(sh.engine, w, http.StatusServiceUnavailable, "No identity directory configured", "")
		return
	}

	// Sync runs can span many directory pages
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	applied, err := fn(ctx)
	if err != nil {
		writeErrorResponse(sh.engine, w, http.StatusInternalServerError, "Failed to sync "+what, err.Error())
		return
	}

	writeJSONResponse(sh.engine, w, http.StatusOK, SyncResponse{
		RecordsApplied: applied,
		Status:         StatusSuccess,
	})
}

// SyncAll handles POST /api/v1/sync
func (sh *SyncHandlers) SyncAll(w http.ResponseWriter, r *http.Request) {
	sh.run(w, r, func(ctx context.Context) (int, error) {
		return sh.engine.syncer.SyncAll(ctx)
	}, "records")
}

// SyncUsers handles POST /api/v1/sync/users
func (sh *SyncHandlers) SyncUsers(w http.ResponseWriter, r *http.Request) {
	sh.run(w, r, func(ctx context.Context) (int, error) {
		return sh.engine.syncer.SyncUsers(ctx)
	}, "users")
}

// SyncProviders handles POST /api/v1/sync/providers
func (sh *SyncHandlers) SyncProviders(w http.ResponseWriter, r *http.Request) {
	sh.run(w, r, func(ctx context.Context) (int, error) {
		return sh.engine.syncer.SyncProviders(ctx)
	}, "providers")
}
