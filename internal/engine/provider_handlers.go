package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/crosslink-io/crosslink/internal/services/provider"
	"github.com/gorilla/mux"
)

// ProviderHandlers contains the provider endpoint handlers
type ProviderHandlers struct {
	engine *Engine
}

// NewProviderHandlers creates a new instance of ProviderHandlers
func NewProviderHandlers(engine *Engine) *ProviderHandlers {
	return &ProviderHandlers{
		engine: engine,
	}
}

func convertProviderEmailAddresses(emails []provider.EmailAddress) []EmailAddress {
	out := make([]EmailAddress, len(emails))
	for i, e := range emails {
		out[i] = EmailAddress{
			EmailAddressID: e.ID,
			EmailAddress:   e.EmailAddress,
		}
	}
	return out
}

func convertProviderAddress(a *provider.Address) *Address {
	if a == nil {
		return nil
	}
	return &Address{
		AddressID:  a.ID,
		PlaceID:    a.PlaceID,
		Name:       a.Name,
		UnitNumber: a.UnitNumber,
		City:       a.City,
		Province:   a.Province,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Lat:        a.Lat,
		Lng:        a.Lng,
	}
}

func convertProvider(p *provider.Provider) Provider {
	return Provider{
		ProviderID:         p.ID,
		ProviderName:       p.ProviderName,
		FirstName:          p.FirstName,
		LastName:           p.LastName,
		PhoneNumber:        p.PhoneNumber,
		ImageURL:           p.ImageURL,
		BusinessName:       p.BusinessName,
		ServiceRadius:      p.ServiceRadius,
		CanVisitClientHome: p.CanVisitClientHome,
		VirtualHelpOffered: p.VirtualHelpOffered,
		EmailAddresses:     convertProviderEmailAddresses(p.EmailAddresses),
		Address:            convertProviderAddress(p.Address),
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

// ListProviders handles GET /api/v1/providers
func (ph *ProviderHandlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	ph.engine.TrackOperation()

	limit, page, updatedAfter := parseListParams(r)

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	total, err := ph.engine.providers.Count(ctx, updatedAfter)
	if err != nil {
		writeErrorResponse(ph.engine, w, http.StatusInternalServerError, "Failed to count providers", err.Error())
		return
	}

	list, err := ph.engine.providers.List(ctx, updatedAfter, limit, page)
	if err != nil {
		writeErrorResponse(ph.engine, w, http.StatusInternalServerError, "Failed to list providers", err.Error())
		return
	}

	providers := make([]Provider, len(list))
	for i, p := range list {
		providers[i] = convertProvider(p)
	}

	writeJSONResponse(ph.engine, w, http.StatusOK, ListProvidersResponse{
		Providers: providers,
		Total:     total,
	})
}

// ShowProvider handles GET /api/v1/providers/{provider_id}
func (ph *ProviderHandlers) ShowProvider(w http.ResponseWriter, r *http.Request) {
	ph.engine.TrackOperation()

	vars := mux.Vars(r)
	providerID := vars["provider_id"]
	if providerID == "" {
		writeErrorResponse(ph.engine, w, http.StatusBadRequest, "provider_id is required", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	p, err := ph.engine.providers.GetByID(ctx, providerID)
	if err != nil {
		writeErrorResponse(ph.engine, w, http.StatusInternalServerError, "Failed to get provider", err.Error())
		return
	}
	if p == nil {
		writeErrorResponse(ph.engine, w, http.StatusNotFound, "Provider not found", "")
		return
	}

	writeJSONResponse(ph.engine, w, http.StatusOK, convertProvider(p))
}

// LookupProvider handles GET /api/v1/providers/lookup?provider_name=
func (ph *ProviderHandlers) LookupProvider(w http.ResponseWriter, r *http.Request) {
	ph.engine.TrackOperation()

	providerName := r.URL.Query().Get("provider_name")
	if providerName == "" {
		writeErrorResponse(ph.engine, w, http.StatusBadRequest, "provider_name is required", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	p, err := ph.engine.providers.GetByProviderName(ctx, providerName)
	if err != nil {
		writeErrorResponse(ph.engine, w, http.StatusInternalServerError, "Failed to look up provider", err.Error())
		return
	}
	if p == nil {
		writeErrorResponse(ph.engine, w, http.StatusNotFound, "Provider not found", "")
		return
	}

	writeJSONResponse(ph.engine, w, http.StatusOK, convertProvider(p))
}

// DeleteProvider handles DELETE /api/v1/providers/{provider_id}
func (ph *ProviderHandlers) DeleteProvider(w http.ResponseWriter, r *http.Request) {
	ph.engine.TrackOperation()

	vars := mux.Vars(r)
	providerID := vars["provider_id"]
	if providerID == "" {
		writeErrorResponse(ph.engine, w, http.StatusBadRequest, "provider_id is required", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := ph.engine.providers.DeleteByID(ctx, providerID); err != nil {
		writeErrorResponse(ph.engine, w, http.StatusInternalServerError, "Failed to delete provider", err.Error())
		return
	}

	writeJSONResponse(ph.engine, w, http.StatusOK, DeleteResponse{Status: StatusDeleted})
}
