// Package connection implements the connection-request lifecycle and the
// promotion of accepted requests into canonical connection records. The
// database constraints are the concurrency-correctness mechanism: the
// partial unique index serializes racing requests for the same pair, and
// the ordered-pair unique index deduplicates connections.
package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crosslink-io/crosslink/internal/services/user"
	"github.com/crosslink-io/crosslink/pkg/database"
	"github.com/crosslink-io/crosslink/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// RequestStatus is the lifecycle state of a connection request
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusRejected RequestStatus = "rejected"
	StatusCanceled RequestStatus = "canceled"
)

var (
	// ErrSelfRequest is returned when a user requests a connection to themselves
	ErrSelfRequest = errors.New("requester and receiver must be different users")

	// ErrPartyNotFound is returned when the requester or receiver does not exist
	ErrPartyNotFound = errors.New("requester or receiver not found")

	// ErrRequestExists is returned when a pending request already exists for the pair
	ErrRequestExists = errors.New("connection request already exists between these users")

	// ErrRequestNotActionable is returned when a transition matches no row:
	// the request is missing, no longer pending, or owned by a different
	// actor. The conditions are combined in one query, so the layer cannot
	// distinguish which failed.
	ErrRequestNotActionable = errors.New("request not found, not pending, or wrong actor")
)

// UserDirectory is the slice of the user service the state machine needs:
// party existence checks and snapshot fields at request-creation time.
type UserDirectory interface {
	GetByIDs(ctx context.Context, userIDs []string) ([]*user.User, error)
}

// Executor is the query surface the state machine runs against, satisfied
// by *pgxpool.Pool.
type Executor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service handles connection request and connection operations
type Service struct {
	pool   Executor
	users  UserDirectory
	logger *logger.Logger
}

// NewService creates a new connection service
func NewService(db *database.PostgreSQL, users UserDirectory, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		pool:   db.Pool(),
		users:  users,
		logger: log,
	}
}

// ConnectionRequest carries the requester/receiver snapshot taken at
// creation time; it is deliberately not a live join against current user
// state, so history stays stable when profiles change.
type ConnectionRequest struct {
	RequestID          int64
	RequesterID        string
	RequesterUsername  *string
	RequesterFirstName *string
	RequesterLastName  *string
	RequesterImageURL  *string
	ReceiverID         string
	ReceiverUsername   *string
	ReceiverFirstName  *string
	ReceiverLastName   *string
	ReceiverImageURL   *string
	GreetingText       *string
	Status             RequestStatus
	CreatedAt          int64
	RespondedAt        *int64
}

// Connection is an established link; user_id1 is always the
// lexicographically smaller id.
type Connection struct {
	ConnectionID     int64
	UserID1          string
	UserID1Username  *string
	UserID1FirstName *string
	UserID1LastName  *string
	UserID1ImageURL  *string
	UserID2          string
	UserID2Username  *string
	UserID2FirstName *string
	UserID2LastName  *string
	UserID2ImageURL  *string
	ConnectedAt      int64
}

const requestColumns = `request_id, requester_id, requester_username, requester_first_name,
		requester_last_name, requester_image_url, receiver_id, receiver_username,
		receiver_first_name, receiver_last_name, receiver_image_url,
		greeting_text, status, created_at, responded_at`

const connectionColumns = `connection_id, user_id1, user_id1_username, user_id1_first_name,
		user_id1_last_name, user_id1_image_url, user_id2, user_id2_username,
		user_id2_first_name, user_id2_last_name, user_id2_image_url, connected_at`

func scanRequest(row pgx.Row) (*ConnectionRequest, error) {
	var req ConnectionRequest
	var createdAt time.Time
	var respondedAt *time.Time
	err := row.Scan(
		&req.RequestID,
		&req.RequesterID,
		&req.RequesterUsername,
		&req.RequesterFirstName,
		&req.RequesterLastName,
		&req.RequesterImageURL,
		&req.ReceiverID,
		&req.ReceiverUsername,
		&req.ReceiverFirstName,
		&req.ReceiverLastName,
		&req.ReceiverImageURL,
		&req.GreetingText,
		&req.Status,
		&createdAt,
		&respondedAt,
	)
	if err != nil {
		return nil, err
	}
	req.CreatedAt = createdAt.UnixMilli()
	if respondedAt != nil {
		ms := respondedAt.UnixMilli()
		req.RespondedAt = &ms
	}
	return &req, nil
}

func scanConnection(row pgx.Row) (*Connection, error) {
	var conn Connection
	var connectedAt time.Time
	err := row.Scan(
		&conn.ConnectionID,
		&conn.UserID1,
		&conn.UserID1Username,
		&conn.UserID1FirstName,
		&conn.UserID1LastName,
		&conn.UserID1ImageURL,
		&conn.UserID2,
		&conn.UserID2Username,
		&conn.UserID2FirstName,
		&conn.UserID2LastName,
		&conn.UserID2ImageURL,
		&connectedAt,
	)
	if err != nil {
		return nil, err
	}
	conn.ConnectedAt = connectedAt.UnixMilli()
	return &conn, nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation, optionally restricted to a named constraint or index.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// orderPair returns the pair in canonical order: lexicographically smaller
// id first.
func orderPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

func imageURLOrNil(imageURL string) *string {
	if imageURL == "" {
		return nil
	}
	return &imageURL
}

// GetRequestsByUserID returns every request the user participates in,
// newest first, regardless of status.
func (s *Service) GetRequestsByUserID(ctx context.Context, userID string) ([]*ConnectionRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM connection_requests
		WHERE requester_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		s.logger.Errorf("Failed to get connection requests for user %s: %v", userID, err)
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var requests []*ConnectionRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// CreateRequest creates a pending request from requester to receiver,
// denormalizing both parties' display fields onto the row. Exactly one of
// two concurrent calls for the same pair succeeds; the loser gets
// ErrRequestExists from the partial unique index.
func (s *Service) CreateRequest(ctx context.Context, requesterID, receiverID string, greeting *string) (*ConnectionRequest, error) {
	if requesterID == receiverID {
		return nil, ErrSelfRequest
	}

	parties, err := s.users.GetByIDs(ctx, []string{requesterID, receiverID})
	if err != nil {
		return nil, fmt.Errorf("failed to look up request parties: %w", err)
	}
	if len(parties) != 2 {
		return nil, ErrPartyNotFound
	}
	byID := make(map[string]*user.User, 2)
	for _, party := range parties {
		byID[party.ID] = party
	}
	requester, receiver := byID[requesterID], byID[receiverID]
	if requester == nil || receiver == nil {
		return nil, ErrPartyNotFound
	}

	query := `
		INSERT INTO connection_requests (
			requester_id, requester_username, requester_first_name, requester_last_name, requester_image_url,
			receiver_id, receiver_username, receiver_first_name, receiver_last_name, receiver_image_url,
			greeting_text
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + requestColumns

	req, err := scanRequest(s.pool.QueryRow(ctx, query,
		requesterID, requester.Username, requester.FirstName, requester.LastName, imageURLOrNil(requester.ImageURL),
		receiverID, receiver.Username, receiver.FirstName, receiver.LastName, imageURLOrNil(receiver.ImageURL),
		greeting,
	))
	if err != nil {
		if isUniqueViolation(err, "uq_connection_requests_pair") {
			return nil, ErrRequestExists
		}
		s.logger.Errorf("Failed to create connection request: %v", err)
		return nil, fmt.Errorf("failed to create connection request: %w", err)
	}

	return req, nil
}

// CancelRequest cancels a pending request; only the original requester may
// cancel.
func (s *Service) CancelRequest(ctx context.Context, requestID int64, requesterID string) (*ConnectionRequest, error) {
	query := `
		UPDATE connection_requests
		SET status = $3, responded_at = NOW()
		WHERE request_id = $1 AND requester_id = $2 AND status = 'pending'
		RETURNING ` + requestColumns

	req, err := scanRequest(s.pool.QueryRow(ctx, query, requestID, requesterID, StatusCanceled))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotActionable
		}
		s.logger.Errorf("Failed to cancel connection request %d: %v", requestID, err)
		return nil, fmt.Errorf("failed to cancel connection request: %w", err)
	}
	return req, nil
}

// RejectRequest rejects a pending request; only the receiver may reject.
func (s *Service) RejectRequest(ctx context.Context, requestID int64, receiverID string) (*ConnectionRequest, error) {
	query := `
		UPDATE connection_requests
		SET status = $3, responded_at = NOW()
		WHERE request_id = $1 AND receiver_id = $2 AND status = 'pending'
		RETURNING ` + requestColumns

	req, err := scanRequest(s.pool.QueryRow(ctx, query, requestID, receiverID, StatusRejected))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotActionable
		}
		s.logger.Errorf("Failed to reject connection request %d: %v", requestID, err)
		return nil, fmt.Errorf("failed to reject connection request: %w", err)
	}
	return req, nil
}

// AcceptRequest accepts a pending request and establishes the connection in
// one transaction. Either the request ends up accepted with a connection
// row for the pair, or neither happens: a failed connection insert rolls
// back the acceptance too.
func (s *Service) AcceptRequest(ctx context.Context, requestID int64, receiverID string) (*ConnectionRequest, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin accept transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	updateQuery := `
		UPDATE connection_requests
		SET status = $3, responded_at = NOW()
		WHERE request_id = $1 AND receiver_id = $2 AND status = 'pending'
		RETURNING ` + requestColumns

	req, err := scanRequest(tx.QueryRow(ctx, updateQuery, requestID, receiverID, StatusAccepted))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotActionable
		}
		s.logger.Errorf("Failed to accept connection request %d: %v", requestID, err)
		return nil, fmt.Errorf("failed to accept connection request: %w", err)
	}

	insertQuery := `
		INSERT INTO connections (
			user_id1, user_id1_username, user_id1_first_name, user_id1_last_name, user_id1_image_url,
			user_id2, user_id2_username, user_id2_first_name, user_id2_last_name, user_id2_image_url
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	var args []interface{}
	if first, _ := orderPair(req.RequesterID, req.ReceiverID); first == req.RequesterID {
		args = []interface{}{
			req.RequesterID, req.RequesterUsername, req.RequesterFirstName, req.RequesterLastName, req.RequesterImageURL,
			req.ReceiverID, req.ReceiverUsername, req.ReceiverFirstName, req.ReceiverLastName, req.ReceiverImageURL,
		}
	} else {
		args = []interface{}{
			req.ReceiverID, req.ReceiverUsername, req.ReceiverFirstName, req.ReceiverLastName, req.ReceiverImageURL,
			req.RequesterID, req.RequesterUsername, req.RequesterFirstName, req.RequesterLastName, req.RequesterImageURL,
		}
	}

	if _, err := tx.Exec(ctx, insertQuery, args...); err != nil {
		s.logger.Errorf("Failed to create connection for request %d: %v", requestID, err)
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit accept transaction: %w", err)
	}
	return req, nil
}

// DeleteRequestByID unconditionally deletes a request; cleanup only, not a
// lifecycle transition.
func (s *Service) DeleteRequestByID(ctx context.Context, requestID int64) error {
	query := `DELETE FROM connection_requests WHERE request_id = $1`

	if _, err := s.pool.Exec(ctx, query, requestID); err != nil {
		s.logger.Errorf("Failed to delete connection request %d: %v", requestID, err)
		return fmt.Errorf("failed to delete connection request: %w", err)
	}
	return nil
}

// GetConnectionByID returns a connection, or nil when absent
func (s *Service) GetConnectionByID(ctx context.Context, connectionID int64) (*Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE connection_id = $1
	`

	conn, err := scanConnection(s.pool.QueryRow(ctx, query, connectionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		s.logger.Errorf("Failed to get connection %d: %v", connectionID, err)
		return nil, fmt.Errorf("database query error: %w", err)
	}
	return conn, nil
}

// GetConnectionByPair returns the connection between two users in either
// argument order, or nil when the pair is not connected.
func (s *Service) GetConnectionByPair(ctx context.Context, userID1, userID2 string) (*Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE user_id1 = LEAST($1, $2) AND user_id2 = GREATEST($1, $2)
	`

	conn, err := scanConnection(s.pool.QueryRow(ctx, query, userID1, userID2))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		s.logger.Errorf("Failed to get connection for pair (%s, %s): %v", userID1, userID2, err)
		return nil, fmt.Errorf("database query error: %w", err)
	}
	return conn, nil
}

// GetConnectionsByUserID returns every connection the user participates in,
// newest first.
func (s *Service) GetConnectionsByUserID(ctx context.Context, userID string) ([]*Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE user_id1 = $1 OR user_id2 = $1
		ORDER BY connected_at DESC
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		s.logger.Errorf("Failed to get connections for user %s: %v", userID, err)
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var connections []*Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		connections = append(connections, conn)
	}
	return connections, rows.Err()
}

// DeleteConnectionByID unconditionally deletes a connection
func (s *Service) DeleteConnectionByID(ctx context.Context, connectionID int64) error {
	query := `DELETE FROM connections WHERE connection_id = $1`

	if _, err := s.pool.Exec(ctx, query, connectionID); err != nil {
		s.logger.Errorf("Failed to delete connection %d: %v", connectionID, err)
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}
