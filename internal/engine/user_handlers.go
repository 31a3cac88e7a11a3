package engine

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/crosslink-io/crosslink/internal/services/user"
	"github.com/gorilla/mux"
)

// UserHandlers contains the user endpoint handlers
type UserHandlers struct {
	engine *Engine
}

// NewUserHandlers creates a new instance of UserHandlers
func NewUserHandlers(engine *Engine) *UserHandlers {
	return &UserHandlers{
		engine: engine,
	}
}

func convertEmailAddresses(emails []user.EmailAddress) []EmailAddress {
	out := make([]EmailAddress, len(emails))
	for i, e := range emails {
		out[i] = EmailAddress{
			EmailAddressID: e.ID,
			EmailAddress:   e.EmailAddress,
		}
	}
	return out
}

func convertUserAddress(a *user.Address) *Address {
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

func convertUser(u *user.User) User {
	return User{
		UserID:            u.ID,
		Username:          u.Username,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		PhoneNumber:       u.PhoneNumber,
		ImageURL:          u.ImageURL,
		Languages:         u.Languages,
		PasswordEnabled:   u.PasswordEnabled,
		TwoFactorEnabled:  u.TwoFactorEnabled,
		BackupCodeEnabled: u.BackupCodeEnabled,
		EmailAddresses:    convertEmailAddresses(u.EmailAddresses),
		Address:           convertUserAddress(u.Address),
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

// parseListParams reads the shared limit/page/updated_after query params.
// Defaults: limit 50, page 0, no updated_after filter.
func parseListParams(r *http.Request) (limit, page int, updatedAfter *int64) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			page = n
		}
	}
	if v := r.URL.Query().Get("updated_after"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			updatedAfter = &ms
		}
	}
	return limit, page, updatedAfter
}

// ListUsers handles GET /api/v1/users
func (uh *UserHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	uh.engine.TrackOperation()

	limit, page, updatedAfter := parseListParams(r)

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	total, err := uh.engine.users.Count(ctx, updatedAfter)
	if err != nil {
		writeErrorResponse(uh.engine, w, http.StatusInternalServerError, "Failed to count users", err.Error())
		return
	}

	list, err := uh.engine.users.List(ctx, updatedAfter, limit, page)
	if err != nil {
		writeErrorResponse(uh.engine, w, http.StatusInternalServerError, "Failed to list users", err.Error())
		return
	}

	users := make([]User, len(list))
	for i, u := range list {
		users[i] = convertUser(u)
	}

	writeJSONResponse(uh.engine, w, http.StatusOK, ListUsersResponse{
		Users: users,
		Total: total,
	})
}

// ShowUser handles GET /api/v1/users/{user_id}
func (uh *UserHandlers) ShowUser(w http.ResponseWriter, r *http.Request) {
	uh.engine.TrackOperation()

	vars := mux.Vars(r)
	userID := vars["user_id"]
	if userID == "" {
		writeErrorResponse(uh.engine, w, http.StatusBadRequest, "user_id is required", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	u, err := uh.engine.users.GetByID(ctx, userID)
	if err != nil {
		writeErrorResponse(uh.engine, w, http.StatusInternalServerError, "Failed to get user", err.Error())
		return
	}
	if u == nil {
		writeErrorResponse(uh.engine, w, http.StatusNotFound, "User not found", "")
		return
	}

	writeJSONResponse(uh.engine, w, http.StatusOK, convertUser(u))
}

// ListUsersByIDs handles GET /api/v1/users/batch?ids=<comma-separated>
func (uh *UserHandlers) ListUsersByIDs(w http.ResponseWriter, r *http.Request) {
	uh.engine.TrackOperation()

	raw := r.URL.Query().Get("ids")
	if raw == "" {
		writeErrorResponse(uh.engine, w, http.StatusBadRequest, "ids is required", "")
		return
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		writeErrorResponse(uh.engine, w, http.StatusBadRequest, "ids is required", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	list, err := uh.engine.users.GetByIDs(ctx, ids)
	if err != nil {
		writeErrorResponse(uh.engine, w, http.StatusInternalServerError, "Failed to get users", err.Error())
		return
	}

	users := make([]User, len(list))
	for i, u := range list {
		users[i] = convertUser(u)
	}

	writeJSONResponse(uh.engine, w, http.StatusOK, ListUsersResponse{
		Users: users,
		Total: len(users),
	})
}

// LookupUser handles GET /api/v1/users/lookup?username=
func (uh *UserHandlers) LookupUser(w http.ResponseWriter, r *http.Request) {
	uh.engine.TrackOperation()

	username := r.URL.Query().Get("username")
	if username == "" {
		writeErrorResponse(uh.engine, w, http.StatusBadRequest, "username is required", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	u, err := uh.engine.users.GetByUsername(ctx, username)
	if err != nil {
		writeErrorResponse(uh.engine, w, http.StatusInternalServerError, "Failed to look up user", err.Error())
		return
	}
	if u == nil {
		writeErrorResponse(uh.engine, w, http.StatusNotFound, "User not found", "")
		return
	}

	writeJSONResponse(uh.engine, w, http.StatusOK, convertUser(u))
}

// DeleteUser handles DELETE /api/v1/users/{user_id}
func (uh *UserHandlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	uh.engine.TrackOperation()

	vars := mux.Vars(r)
	userID := vars["user_id"]
	if userID == "" {
		writeErrorResponse(uh.engine, w, http.StatusBadRequest, "user_id is required", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := uh.engine.users.DeleteByID(ctx, userID); err != nil {
		writeErrorResponse(uh.engine, w, http.StatusInternalServerError, "Failed to delete user", err.Error())
		return
	}

	writeJSONResponse(uh.engine, w, http.StatusOK, DeleteResponse{Status: StatusDeleted})
}
