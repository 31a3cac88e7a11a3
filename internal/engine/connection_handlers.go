package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/crosslink-io/crosslink/internal/services/connection"
	"github.com/gorilla/mux"
)

// ConnectionHandlers contains the connection request and connection
// endpoint handlers
type ConnectionHandlers struct {
	engine *Engine
}

// NewConnectionHandlers creates a new instance of ConnectionHandlers
func NewConnectionHandlers(engine *Engine) *ConnectionHandlers {
	return &ConnectionHandlers{
		engine: engine,
	}
}

func convertRequest(req *connection.ConnectionRequest) ConnectionRequest {
	return ConnectionRequest{
		RequestID:          req.RequestID,
		RequesterID:        req.RequesterID,
		RequesterUsername:  req.RequesterUsername,
		RequesterFirstName: req.RequesterFirstName,
		RequesterLastName:  req.RequesterLastName,
		RequesterImageURL:  req.RequesterImageURL,
		ReceiverID:         req.ReceiverID,
		ReceiverUsername:   req.ReceiverUsername,
		ReceiverFirstName:  req.ReceiverFirstName,
		ReceiverLastName:   req.ReceiverLastName,
		ReceiverImageURL:   req.ReceiverImageURL,
		GreetingText:       req.GreetingText,
		Status:             string(req.Status),
		CreatedAt:          req.CreatedAt,
		RespondedAt:        req.RespondedAt,
	}
}

func convertConnection(conn *connection.Connection) Connection {
	return Connection{
		ConnectionID:     conn.ConnectionID,
		UserID1:          conn.UserID1,
		UserID1Username:  conn.UserID1Username,
		UserID1FirstName: conn.UserID1FirstName,
		UserID1LastName:  conn.UserID1LastName,
		UserID1ImageURL:  conn.UserID1ImageURL,
		UserID2:          conn.UserID2,
		UserID2Username:  conn.UserID2Username,
		UserID2FirstName: conn.UserID2FirstName,
		UserID2LastName:  conn.UserID2LastName,
		UserID2ImageURL:  conn.UserID2ImageURL,
		ConnectedAt:      conn.ConnectedAt,
	}
}

// writeLifecycleError maps the connection domain errors onto HTTP
// statuses; anything unrecognized is a 500.
func (ch *ConnectionHandlers) writeLifecycleError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, connection.ErrSelfRequest):
		writeErrorResponse(ch.engine, w, http.StatusBadRequest, message, err.Error())
	case errors.Is(err, connection.ErrPartyNotFound):
		writeErrorResponse(ch.engine, w, http.StatusNotFound, message, err.Error())
	case errors.Is(err, connection.ErrRequestExists):
		writeErrorResponse(ch.engine, w, http.StatusConflict, message, err.Error())
	case errors.Is(err, connection.ErrRequestNotActionable):
		writeErrorResponse(ch.engine, w, http.StatusConflict, message, err.Error())
	default:
		writeErrorResponse(ch.engine, w, http.StatusInternalServerError, message, err.Error())
	}
}

func parseRequestID(r *http.Request) (int64, bool) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["request_id"], 10, 64)
	return id, err == nil
}

// CreateRequest handles POST /api/v1/requests
func (ch *ConnectionHandlers) CreateRequest(w http.ResponseWriter, r *http.Request) {
	ch.engine.TrackOperation()

	var req CreateRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(ch.engine, w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.RequesterID == "" || req.ReceiverID == "" {
		writeErrorResponse(ch.engine, w, http.StatusBadRequest, "requester_id and receiver_id are required", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	created, err := ch.engine.connections.CreateRequest(ctx, req.RequesterID, req.ReceiverID, req.GreetingText)
	if err != nil {
		ch.writeLifecycleError(w, err, "Failed to create connection request")
		return
	}

	if ch.engine.logger != nil {
		ch.engine.logger.Infof("Created connection request %d: %s -> %s", created.RequestID, created.RequesterID, created.ReceiverID)
	}

	writeJSONResponse(ch.engine, w, http.StatusCreated, convertRequest(created))
}

// AcceptRequest handles POST /api/v1/requests/{request_id}/accept
func (ch *ConnectionHandlers) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	ch.respondToRequest(w, r, "accept")
}

// RejectRequest handles POST /api/v1/requests/{request_id}/reject
func (ch *ConnectionHandlers) RejectRequest(w http.ResponseWriter, r *http.Request) {
	ch.respondToRequest(w, r, "reject")
}

// CancelRequest handles POST /api/v1/requests/{request_id}/cancel
func (ch *ConnectionHandlers) CancelRequest(w http.ResponseWriter, r *http.Request) {
	ch.respondToRequest(w, r, "cancel")
}

func (ch *ConnectionHandlers) respondToRequest(w http.ResponseWriter, r *http.Request, action string) {
	ch.engine.TrackOperation()

	requestID, ok := parseRequestID(r)
	if !ok {
		writeErrorResponse(ch.engine, w, http.StatusBadRequest, "request_id must be an integer", "")
		return
	}

	var body RespondRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErrorResponse(ch.engine, w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if body.UserID == "" {
		writeErrorResponse(ch.engine, w, http.StatusBadRequest, "user_id is required", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var (
		updated *connection.ConnectionRequest
		err     error
	)
	switch action {
	case "accept":
		updated, err = ch.engine.connections.AcceptRequest(ctx, requestID, body.UserID)
	case "reject":
		updated, err = ch.engine.connections.RejectRequest(ctx, requestID, body.UserID)
	case "cancel":
		updated, err = ch.engine.connections.CancelRequest(ctx, requestID, body.UserID)
	}
	if err != nil {
		ch.writeLifecycleError(w, err, "Failed to "+action+" connection request")
		return
	}

	if ch.engine.logger != nil {
		ch.engine.logger.Infof("Connection request %d transitioned to %s", updated.RequestID, updated.Status)
	}

	writeJSONResponse(ch.engine, w, http.StatusOK, convertRequest(updated))
}

// ListRequests handles GET /api/v1/users/{user_id}/requests
func (ch *ConnectionHandlers) ListRequests(w http.ResponseWriter, r *http.Request) {
	ch.engine.TrackOperation()

	vars := mux.Vars(r)
	userID := vars["user_id"]
	if userID == "" {
		writeErrorResponse(ch.engine, w, http.StatusBadRequest, "user_id is required", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	list, err := ch.engine.connections.GetRequestsByUserID(ctx, userID)
	if err != nil {
		writeErrorResponse(ch.engine, w, http.StatusInternalServerError, "Failed to list connection requests", err.Error())
		return
	}

	requests := make([]ConnectionRequest, len(list))
	for i, req := range list {
		requests[i] = convertRequest(req)
	}

	writeJSONResponse(ch.engine, w, http.StatusOK, ListRequestsResponse{Requests: requests})
}

// DeleteRequest handles DELETE /api/v1/requests/{request_id}
func (ch *ConnectionHandlers) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	ch.engine.TrackOperation()

	requestID, ok := parseRequestID(r)
	if !ok {
		writeErrorResponse(ch.engine, w, http.StatusBadRequest, "request_id must be an integer", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := ch.engine.connections.DeleteRequestByID(ctx, requestID); err != nil {
		writeErrorResponse(ch.engine, w, http.StatusInternalServerError, "Failed to delete connection request", err.Error())
		return
	}

	writeJSONResponse(ch.engine, w, http.StatusOK, DeleteResponse{Status: StatusDeleted})
}

// ListConnections handles GET /api/v1/users/{user_id}/connections
func (ch *ConnectionHandlers) ListConnections(w http.ResponseWriter, r *http.Request) {
	ch.engine.TrackOperation()

	vars := mux.Vars(r)
	userID := vars["user_id"]
	if userID == "" {
		writeErrorResponse(ch.engine, w, http.StatusBadRequest, "user_id is required", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	list, err := ch.engine.connections.GetConnectionsByUserID(ctx, userID)
	if err != nil {
		writeErrorResponse(ch.engine, w, http.StatusInternalServerError, "Failed to list connections", err.Error())
		return
	}

	connections := make([]Connection, len(list))
	for i, conn := range list {
		connections[i] = convertConnection(conn)
	}

	writeJSONResponse(ch.engine, w, http.StatusOK, ListConnectionsResponse{Connections: connections})
}

// ShowConnection handles GET /api/v1/connections/{connection_id}
func (ch *ConnectionHandlers) ShowConnection(w http.ResponseWriter, r *http.Request) {
	ch.engine.TrackOperation()

	vars := mux.Vars(r)
	connectionID, err := strconv.ParseInt(vars["connection_id"], 10, 64)
	if err != nil {
		writeErrorResponse(ch.engine, w, http.StatusBadRequest, "connection_id must be an integer", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	conn, err := ch.engine.connections.GetConnectionByID(ctx, connectionID)
	if err != nil {
		writeErrorResponse(ch.engine, w, http.StatusInternalServerError, "Failed to get connection", err.Error())
		return
	}
	if conn == nil {
		writeErrorResponse(ch.engine, w, http.StatusNotFound, "Connection not found", "")
		return
	}

	writeJSONResponse(ch.engine, w, http.StatusOK, convertConnection(conn))
}

// ShowConnectionByPair handles GET /api/v1/connections/pair?user_id1=&user_id2=
func (ch *ConnectionHandlers) ShowConnectionByPair(w http.ResponseWriter, r *http.Request) {
	ch.engine.TrackOperation()

	userID1 := r.URL.Query().Get("user_id1")
	userID2 := r.URL.Query().Get("user_id2")
	if userID1 == "" || userID2 == "" {
		writeErrorResponse(ch.engine, w, http.StatusBadRequest, "user_id1 and user_id2 are required", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	conn, err := ch.engine.connections.GetConnectionByPair(ctx, userID1, userID2)
	if err != nil {
		writeErrorResponse(ch.engine, w, http.StatusInternalServerError, "Failed to get connection", err.Error())
		return
	}
	if conn == nil {
		writeErrorResponse(ch.engine, w, http.StatusNotFound, "Connection not found", "")
		return
	}

	writeJSONResponse(ch.engine, w, http.StatusOK, convertConnection(conn))
}

// DeleteConnection handles DELETE /api/v1/connections/{connection_id}
func (ch *ConnectionHandlers) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	ch.engine.TrackOperation()

	vars := mux.Vars(r)
	connectionID, err := strconv.ParseInt(vars["connection_id"], 10, 64)
	if err != nil {
		writeErrorResponse(ch.engine, w, http.StatusBadRequest, "connection_id must be an integer", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := ch.engine.connections.DeleteConnectionByID(ctx, connectionID); err != nil {
		writeErrorResponse(ch.engine, w, http.StatusInternalServerError, "Failed to delete connection", err.Error())
		return
	}

	writeJSONResponse(ch.engine, w, http.StatusOK, DeleteResponse{Status: StatusDeleted})
}
