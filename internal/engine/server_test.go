package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/crosslink-io/crosslink/internal/services/connection"
	"github.com/crosslink-io/crosslink/internal/services/provider"
	"github.com/crosslink-io/crosslink/internal/services/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUserStore struct {
	users      map[string]*user.User
	byUsername map[string]*user.User
	deleted    []string
	err        error
}

func (s *stubUserStore) Count(ctx context.Context, updatedAfter *int64) (int, error) {
	return len(s.users), s.err
}

func (s *stubUserStore) List(ctx context.Context, updatedAfter *int64, limit, page int) ([]*user.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []*user.User
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *stubUserStore) GetByID(ctx context.Context, userID string) (*user.User, error) {
	return s.users[userID], s.err
}

func (s *stubUserStore) GetByIDs(ctx context.Context, userIDs []string) ([]*user.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []*user.User
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *stubUserStore) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	return s.byUsername[username], s.err
}

func (s *stubUserStore) DeleteByID(ctx context.Context, userID string) error {
	s.deleted = append(s.deleted, userID)
	return s.err
}

type stubProviderStore struct {
	providers map[string]*provider.Provider
}

func (s *stubProviderStore) Count(ctx context.Context, updatedAfter *int64) (int, error) {
	return len(s.providers), nil
}

func (s *stubProviderStore) List(ctx context.Context, updatedAfter *int64, limit, page int) ([]*provider.Provider, error) {
	var out []*provider.Provider
	for _, p := range s.providers {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubProviderStore) GetByID(ctx context.Context, providerID string) (*provider.Provider, error) {
	return s.providers[providerID], nil
}

func (s *stubProviderStore) GetByProviderName(ctx context.Context, providerName string) (*provider.Provider, error) {
	for _, p := range s.providers {
		if p.ProviderName != nil && *p.ProviderName == providerName {
			return p, nil
		}
	}
	return nil, nil
}

func (s *stubProviderStore) DeleteByID(ctx context.Context, providerID string) error {
	delete(s.providers, providerID)
	return nil
}

type stubConnectionStore struct {
	createErr  error
	acceptErr  error
	created    *connection.ConnectionRequest
	accepted   *connection.ConnectionRequest
	requests   []*connection.ConnectionRequest
	conns      []*connection.Connection
	pairResult *connection.Connection
}

func (s *stubConnectionStore) CreateRequest(ctx context.Context, requesterID, receiverID string, greeting *string) (*connection.ConnectionRequest, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.created, nil
}

func (s *stubConnectionStore) CancelRequest(ctx context.Context, requestID int64, requesterID string) (*connection.ConnectionRequest, error) {
	if s.acceptErr != nil {
		return nil, s.acceptErr
	}
	return s.accepted, nil
}

func (s *stubConnectionStore) AcceptRequest(ctx context.Context, requestID int64, receiverID string) (*connection.ConnectionRequest, error) {
	if s.acceptErr != nil {
		return nil, s.acceptErr
	}
	return s.accepted, nil
}

func (s *stubConnectionStore) RejectRequest(ctx context.Context, requestID int64, receiverID string) (*connection.ConnectionRequest, error) {
	if s.acceptErr != nil {
		return nil, s.acceptErr
	}
	return s.accepted, nil
}

func (s *stubConnectionStore) GetRequestsByUserID(ctx context.Context, userID string) ([]*connection.ConnectionRequest, error) {
	return s.requests, nil
}

func (s *stubConnectionStore) DeleteRequestByID(ctx context.Context, requestID int64) error {
	return nil
}

func (s *stubConnectionStore) GetConnectionByID(ctx context.Context, connectionID int64) (*connection.Connection, error) {
	return s.pairResult, nil
}

func (s *stubConnectionStore) GetConnectionByPair(ctx context.Context, userID1, userID2 string) (*connection.Connection, error) {
	return s.pairResult, nil
}

func (s *stubConnectionStore) GetConnectionsByUserID(ctx context.Context, userID string) ([]*connection.Connection, error) {
	return s.conns, nil
}

func (s *stubConnectionStore) DeleteConnectionByID(ctx context.Context, connectionID int64) error {
	return nil
}

type stubSyncer struct {
	applied int
	err     error
}

func (s *stubSyncer) SyncUsers(ctx context.Context) (int, error)     { return s.applied, s.err }
func (s *stubSyncer) SyncProviders(ctx context.Context) (int, error) { return s.applied, s.err }
func (s *stubSyncer) SyncAll(ctx context.Context) (int, error)       { return s.applied, s.err }

func strPtr(s string) *string { return &s }

func newTestServer(users UserStore, providers ProviderStore, conns ConnectionStore, syncer SyncRunner) *Server {
	e := &Engine{}
	e.users = users
	e.providers = providers
	e.connections = conns
	e.syncer = syncer
	return NewServer(e)
}

func TestShowUser(t *testing.T) {
	users := &stubUserStore{users: map[string]*user.User{
		"user_a": {ID: "user_a", Username: strPtr("alice"), ImageURL: "https://img.example/a.png"},
	}}
	srv := newTestServer(users, &stubProviderStore{}, &stubConnectionStore{}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/user_a", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "user_a", got.UserID)
	assert.Equal(t, "alice", *got.Username)
}

func TestShowUserNotFound(t *testing.T) {
	srv := newTestServer(&stubUserStore{}, &stubProviderStore{}, &stubConnectionStore{}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/missing", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var got ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, StatusError, got.Status)
}

func TestListUsersReportsTotal(t *testing.T) {
	users := &stubUserStore{users: map[string]*user.User{
		"user_a": {ID: "user_a"},
		"user_b": {ID: "user_b"},
	}}
	srv := newTestServer(users, &stubProviderStore{}, &stubConnectionStore{}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users?limit=10&page=0", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got ListUsersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Total)
	assert.Len(t, got.Users, 2)
}

func TestListUsersByIDs(t *testing.T) {
	users := &stubUserStore{users: map[string]*user.User{
		"user_a": {ID: "user_a"},
		"user_b": {ID: "user_b"},
		"user_c": {ID: "user_c"},
	}}
	srv := newTestServer(users, &stubProviderStore{}, &stubConnectionStore{}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/batch?ids=user_a,user_c,missing", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got ListUsersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	// Absent ids are skipped, not errors
	assert.Equal(t, 2, got.Total)
	assert.Len(t, got.Users, 2)
}

func TestListUsersByIDsRequiresIDs(t *testing.T) {
	srv := newTestServer(&stubUserStore{}, &stubProviderStore{}, &stubConnectionStore{}, nil)

	for _, target := range []string{"/api/v1/users/batch", "/api/v1/users/batch?ids=,,"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestLookupProvider(t *testing.T) {
	providers := &stubProviderStore{providers: map[string]*provider.Provider{
		"prov_a": {ID: "prov_a", ProviderName: strPtr("acme-care")},
	}}
	srv := newTestServer(&stubUserStore{}, providers, &stubConnectionStore{}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/providers/lookup?provider_name=acme-care", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got Provider
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "prov_a", got.ProviderID)
}

func postJSON(srv *Server, path string, body interface{}) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	srv.ServeHTTP(rec, req)
	return rec
}

func TestCreateRequest(t *testing.T) {
	conns := &stubConnectionStore{created: &connection.ConnectionRequest{
		RequestID:   7,
		RequesterID: "user_a",
		ReceiverID:  "user_b",
		Status:      connection.StatusPending,
	}}
	srv := newTestServer(&stubUserStore{}, &stubProviderStore{}, conns, nil)

	rec := postJSON(srv, "/api/v1/requests", CreateRequestRequest{
		RequesterID: "user_a",
		ReceiverID:  "user_b",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	var got ConnectionRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(7), got.RequestID)
	assert.Equal(t, "pending", got.Status)
}

func TestCreateRequestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"self request", connection.ErrSelfRequest, http.StatusBadRequest},
		{"party not found", connection.ErrPartyNotFound, http.StatusNotFound},
		{"duplicate pending", connection.ErrRequestExists, http.StatusConflict},
		{"storage failure", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&stubUserStore{}, &stubProviderStore{},
				&stubConnectionStore{createErr: tt.err}, nil)

			rec := postJSON(srv, "/api/v1/requests", CreateRequestRequest{
				RequesterID: "user_a",
				ReceiverID:  "user_b",
			})
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestCreateRequestMissingParties(t *testing.T) {
	srv := newTestServer(&stubUserStore{}, &stubProviderStore{}, &stubConnectionStore{}, nil)

	rec := postJSON(srv, "/api/v1/requests", CreateRequestRequest{RequesterID: "user_a"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcceptRequest(t *testing.T) {
	conns := &stubConnectionStore{accepted: &connection.ConnectionRequest{
		RequestID: 7,
		Status:    connection.StatusAccepted,
	}}
	srv := newTestServer(&stubUserStore{}, &stubProviderStore{}, conns, nil)

	rec := postJSON(srv, "/api/v1/requests/7/accept", RespondRequestRequest{UserID: "user_b"})

	require.Equal(t, http.StatusOK, rec.Code)
	var got ConnectionRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "accepted", got.Status)
}

func TestAcceptRequestNotActionable(t *testing.T) {
	conns := &stubConnectionStore{acceptErr: connection.ErrRequestNotActionable}
	srv := newTestServer(&stubUserStore{}, &stubProviderStore{}, conns, nil)

	rec := postJSON(srv, "/api/v1/requests/7/accept", RespondRequestRequest{UserID: "user_b"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRespondRequestInvalidID(t *testing.T) {
	srv := newTestServer(&stubUserStore{}, &stubProviderStore{}, &stubConnectionStore{}, nil)

	rec := postJSON(srv, "/api/v1/requests/not-a-number/cancel", RespondRequestRequest{UserID: "user_a"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncWithoutDirectory(t *testing.T) {
	srv := newTestServer(&stubUserStore{}, &stubProviderStore{}, &stubConnectionStore{}, nil)

	rec := postJSON(srv, "/api/v1/sync", struct{}{})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSyncAll(t *testing.T) {
	srv := newTestServer(&stubUserStore{}, &stubProviderStore{}, &stubConnectionStore{}, &stubSyncer{applied: 12})

	rec := postJSON(srv, "/api/v1/sync", struct{}{})

	require.Equal(t, http.StatusOK, rec.Code)
	var got SyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 12, got.RecordsApplied)
	assert.Equal(t, StatusSuccess, got.Status)
}

func TestRequestIDMiddleware(t *testing.T) {
	srv := newTestServer(&stubUserStore{}, &stubProviderStore{}, &stubConnectionStore{}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	req.Header.Set(requestIDHeader, "fixed-id")
	srv.ServeHTTP(rec, req)
	assert.Equal(t, "fixed-id", rec.Header().Get(requestIDHeader))
}

func TestHealthWhenNotRunning(t *testing.T) {
	srv := newTestServer(&stubUserStore{}, &stubProviderStore{}, &stubConnectionStore{}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
