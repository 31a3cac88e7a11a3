// Package user persists user aggregates: the user row plus child email
// addresses and an optional address. Rows are written only by the bulk
// upsert path; the identity provider is the system of record for profile
// fields.
package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crosslink-io/crosslink/pkg/database"
	"github.com/crosslink-io/crosslink/pkg/logger"
	"github.com/jackc/pgx/v5"
)

// Service handles user-related operations
type Service struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewService creates a new user service
func NewService(db *database.PostgreSQL, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		db:     db,
		logger: log,
	}
}

// User represents a user aggregate. Timestamps carry epoch-millisecond
// semantics; the storage layer converts to and from TIMESTAMPTZ.
type User struct {
	ID                string
	Username          *string
	FirstName         *string
	LastName          *string
	ImageURL          string
	PhoneNumber       *string
	Languages         []string
	PasswordEnabled   bool
	TwoFactorEnabled  bool
	BackupCodeEnabled bool
	EmailAddresses    []EmailAddress
	Address           *Address
	CreatedAt         int64
	UpdatedAt         int64
}

// EmailAddress is a child row owned by a user
type EmailAddress struct {
	ID           string
	UserID       string
	EmailAddress string
}

// Address is a child row owned by a user; at most one exists per user
type Address struct {
	ID         string
	UserID     string
	PlaceID    *string
	Name       *string
	UnitNumber *string
	City       *string
	Province   *string
	PostalCode *string
	Country    *string
	Lat        *float64
	Lng        *float64
}

const userColumns = `id, username, first_name, last_name, image_url, phone_number, languages,
		password_enabled, two_factor_enabled, backup_code_enabled, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var user User
	var createdAt, updatedAt time.Time
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.ImageURL,
		&user.PhoneNumber,
		&user.Languages,
		&user.PasswordEnabled,
		&user.TwoFactorEnabled,
		&user.BackupCodeEnabled,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = createdAt.UnixMilli()
	user.UpdatedAt = updatedAt.UnixMilli()
	return &user, nil
}

// Count returns the number of users, optionally restricted to those updated
// after the given epoch-millisecond timestamp.
func (s *Service) Count(ctx context.Context, updatedAfter *int64) (int, error) {
	query := `
		SELECT COUNT(*) AS total
		FROM users
		WHERE $1::BIGINT IS NULL OR updated_at > to_timestamp($1::BIGINT/1000.0)
	`

	var total int
	if err := s.db.Pool().QueryRow(ctx, query, updatedAfter).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return total, nil
}

// List retrieves a page of users ordered by most recent update, with email
// addresses and addresses attached.
func (s *Service) List(ctx context.Context, updatedAfter *int64, limit, page int) ([]*User, error) {
	if limit <= 0 {
		limit = 20
	}
	offset := page * limit
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE $1::BIGINT IS NULL OR updated_at > to_timestamp($1::BIGINT/1000.0)
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Pool().Query(ctx, query, updatedAfter, limit, offset)
	if err != nil {
		s.logger.Errorf("Failed to list users: %v", err)
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	users, err := collectUsers(rows)
	if err != nil {
		return nil, err
	}
	return s.attachChildren(ctx, users)
}

// GetByID retrieves a single user aggregate, or nil when absent
func (s *Service) GetByID(ctx context.Context, userID string) (*User, error) {
	users, err := s.GetByIDs(ctx, []string{userID})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return users[0], nil
}

// GetByIDs retrieves user aggregates for the given ids; missing ids are
// simply absent from the result.
func (s *Service) GetByIDs(ctx context.Context, userIDs []string) ([]*User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = ANY($1)
		ORDER BY updated_at DESC
	`

	rows, err := s.db.Pool().Query(ctx, query, userIDs)
	if err != nil {
		s.logger.Errorf("Failed to get users by ids: %v", err)
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	users, err := collectUsers(rows)
	if err != nil {
		return nil, err
	}
	return s.attachChildren(ctx, users)
}

// GetByUsername retrieves a user by its unique handle, or nil when absent
func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE username = $1
	`

	user, err := scanUser(s.db.Pool().QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		s.logger.Errorf("Failed to get user by username: %v", err)
		return nil, err
	}

	attached, err := s.attachChildren(ctx, []*User{user})
	if err != nil {
		return nil, err
	}
	return attached[0], nil
}

// GetEmailAddressesByUserIDs retrieves all email rows owned by the given users
func (s *Service) GetEmailAddressesByUserIDs(ctx context.Context, userIDs []string) ([]EmailAddress, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, user_id, email_address
		FROM email_addresses
		WHERE user_id = ANY($1)
	`

	rows, err := s.db.Pool().Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get email addresses: %w", err)
	}
	defer rows.Close()

	var emails []EmailAddress
	for rows.Next() {
		var email EmailAddress
		if err := rows.Scan(&email.ID, &email.UserID, &email.EmailAddress); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// GetAddressesByUserIDs retrieves the address rows owned by the given users
func (s *Service) GetAddressesByUserIDs(ctx context.Context, userIDs []string) ([]Address, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, user_id, place_id, name, unit_number, city, province, postal_code, country, lat, lng
		FROM addresses
		WHERE user_id = ANY($1)
	`

	rows, err := s.db.Pool().Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get addresses: %w", err)
	}
	defer rows.Close()

	var addresses []Address
	for rows.Next() {
		var addr Address
		err := rows.Scan(&addr.ID, &addr.UserID, &addr.PlaceID, &addr.Name, &addr.UnitNumber,
			&addr.City, &addr.Province, &addr.PostalCode, &addr.Country, &addr.Lat, &addr.Lng)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, addr)
	}
	return addresses, rows.Err()
}

// GetLatestUpdate returns the most recent user update time, used by the
// sync loop as its resumption cursor. Zero time when the table is empty.
func (s *Service) GetLatestUpdate(ctx context.Context) (time.Time, error) {
	query := `SELECT MAX(updated_at) AS latest_update FROM users`

	var latest *time.Time
	if err := s.db.Pool().QueryRow(ctx, query).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("failed to read latest user update: %w", err)
	}
	if latest == nil {
		return time.UnixMilli(0), nil
	}
	return *latest, nil
}

// DeleteByID deletes a user and, through cascade, its child rows
func (s *Service) DeleteByID(ctx context.Context, userID string) error {
	return s.DeleteByIDs(ctx, []string{userID})
}

// DeleteByIDs deletes the given users; unknown ids are ignored
func (s *Service) DeleteByIDs(ctx context.Context, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	query := `DELETE FROM users WHERE id = ANY($1)`

	if _, err := s.db.Pool().Exec(ctx, query, userIDs); err != nil {
		s.logger.Errorf("Failed to delete users: %v", err)
		return fmt.Errorf("failed to delete users: %w", err)
	}
	return nil
}

func collectUsers(rows pgx.Rows) ([]*User, error) {
	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// attachChildren populates email addresses and addresses for the given
// users with one batched query per child table.
func (s *Service) attachChildren(ctx context.Context, users []*User) ([]*User, error) {
	if len(users) == 0 {
		return users, nil
	}

	userIDs := make([]string, 0, len(users))
	for _, user := range users {
		userIDs = append(userIDs, user.ID)
	}

	emails, err := s.GetEmailAddressesByUserIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	emailsByUser := make(map[string][]EmailAddress)
	for _, email := range emails {
		emailsByUser[email.UserID] = append(emailsByUser[email.UserID], email)
	}

	addresses, err := s.GetAddressesByUserIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	addressByUser := make(map[string]Address, len(addresses))
	for _, addr := range addresses {
		addressByUser[addr.UserID] = addr
	}

	for _, user := range users {
		user.EmailAddresses = emailsByUser[user.ID]
		if addr, ok := addressByUser[user.ID]; ok {
			addrCopy := addr
			user.Address = &addrCopy
		}
	}
	return users, nil
}
