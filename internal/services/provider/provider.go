// Package provider persists provider aggregates. Providers mirror users
// with service-area and business fields on top, and own their own child
// email and address tables.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crosslink-io/crosslink/pkg/database"
	"github.com/crosslink-io/crosslink/pkg/logger"
	"github.com/jackc/pgx/v5"
)

// Service handles provider-related operations
type Service struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewService creates a new provider service
func NewService(db *database.PostgreSQL, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		db:     db,
		logger: log,
	}
}

// Provider represents a provider aggregate
type Provider struct {
	ID                 string
	ProviderName       *string
	FirstName          *string
	LastName           *string
	ImageURL           string
	PhoneNumber        *string
	Languages          []string
	PasswordEnabled    bool
	TwoFactorEnabled   bool
	BackupCodeEnabled  bool
	ServiceRadius      float64
	CanVisitClientHome bool
	VirtualHelpOffered bool
	BusinessName       *string
	EmailAddresses     []EmailAddress
	Address            *Address
	CreatedAt          int64
	UpdatedAt          int64
}

// EmailAddress is a child row owned by a provider
type EmailAddress struct {
	ID           string
	ProviderID   string
	EmailAddress string
}

// Address is a child row owned by a provider; at most one exists per provider
type Address struct {
	ID         string
	ProviderID string
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

const providerColumns = `id, providername, first_name, last_name, image_url, phone_number, languages,
		password_enabled, two_factor_enabled, backup_code_enabled,
		service_radius, can_visit_client_home, virtual_help_offered, business_name,
		created_at, updated_at`

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var createdAt, updatedAt time.Time
	err := row.Scan(
		&p.ID,
		&p.ProviderName,
		&p.FirstName,
		&p.LastName,
		&p.ImageURL,
		&p.PhoneNumber,
		&p.Languages,
		&p.PasswordEnabled,
		&p.TwoFactorEnabled,
		&p.BackupCodeEnabled,
		&p.ServiceRadius,
		&p.CanVisitClientHome,
		&p.VirtualHelpOffered,
		&p.BusinessName,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = createdAt.UnixMilli()
	p.UpdatedAt = updatedAt.UnixMilli()
	return &p, nil
}

// Count returns the number of providers, optionally restricted to those
// updated after the given epoch-millisecond timestamp.
func (s *Service) Count(ctx context.Context, updatedAfter *int64) (int, error) {
	query := `
		SELECT COUNT(*) AS total
		FROM providers
		WHERE $1::BIGINT IS NULL OR updated_at > to_timestamp($1::BIGINT/1000.0)
	`

	var total int
	if err := s.db.Pool().QueryRow(ctx, query, updatedAfter).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count providers: %w", err)
	}
	return total, nil
}

// List retrieves a page of providers ordered by most recent update
func (s *Service) List(ctx context.Context, updatedAfter *int64, limit, page int) ([]*Provider, error) {
	if limit <= 0 {
		limit = 20
	}
	offset := page * limit
	query := `
		SELECT ` + providerColumns + `
		FROM providers
		WHERE $1::BIGINT IS NULL OR updated_at > to_timestamp($1::BIGINT/1000.0)
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Pool().Query(ctx, query, updatedAfter, limit, offset)
	if err != nil {
		s.logger.Errorf("Failed to list providers: %v", err)
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	providers, err := collectProviders(rows)
	if err != nil {
		return nil, err
	}
	return s.attachChildren(ctx, providers)
}

// GetByID retrieves a single provider aggregate, or nil when absent
func (s *Service) GetByID(ctx context.Context, providerID string) (*Provider, error) {
	providers, err := s.GetByIDs(ctx, []string{providerID})
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, nil
	}
	return providers[0], nil
}

// GetByIDs retrieves provider aggregates for the given ids
func (s *Service) GetByIDs(ctx context.Context, providerIDs []string) ([]*Provider, error) {
	if len(providerIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT ` + providerColumns + `
		FROM providers
		WHERE id = ANY($1)
		ORDER BY updated_at DESC
	`

	rows, err := s.db.Pool().Query(ctx, query, providerIDs)
	if err != nil {
		s.logger.Errorf("Failed to get providers by ids: %v", err)
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	providers, err := collectProviders(rows)
	if err != nil {
		return nil, err
	}
	return s.attachChildren(ctx, providers)
}

// GetByProviderName retrieves a provider by its unique handle, or nil when absent
func (s *Service) GetByProviderName(ctx context.Context, providerName string) (*Provider, error) {
	query := `
		SELECT ` + providerColumns + `
		FROM providers
		WHERE providername = $1
	`

	p, err := scanProvider(s.db.Pool().QueryRow(ctx, query, providerName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		s.logger.Errorf("Failed to get provider by name: %v", err)
		return nil, err
	}

	attached, err := s.attachChildren(ctx, []*Provider{p})
	if err != nil {
		return nil, err
	}
	return attached[0], nil
}

// GetEmailAddressesByProviderIDs retrieves all email rows owned by the given providers
func (s *Service) GetEmailAddressesByProviderIDs(ctx context.Context, providerIDs []string) ([]EmailAddress, error) {
	if len(providerIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, provider_id, email_address
		FROM provider_email_addresses
		WHERE provider_id = ANY($1)
	`

	rows, err := s.db.Pool().Query(ctx, query, providerIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get provider email addresses: %w", err)
	}
	defer rows.Close()

	var emails []EmailAddress
	for rows.Next() {
		var email EmailAddress
		if err := rows.Scan(&email.ID, &email.ProviderID, &email.EmailAddress); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// GetAddressesByProviderIDs retrieves the address rows owned by the given providers
func (s *Service) GetAddressesByProviderIDs(ctx context.Context, providerIDs []string) ([]Address, error) {
	if len(providerIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, provider_id, place_id, name, unit_number, city, province, postal_code, country, lat, lng
		FROM provider_addresses
		WHERE provider_id = ANY($1)
	`

	rows, err := s.db.Pool().Query(ctx, query, providerIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get provider addresses: %w", err)
	}
	defer rows.Close()

	var addresses []Address
	for rows.Next() {
		var addr Address
		err := rows.Scan(&addr.ID, &addr.ProviderID, &addr.PlaceID, &addr.Name, &addr.UnitNumber,
			&addr.City, &addr.Province, &addr.PostalCode, &addr.Country, &addr.Lat, &addr.Lng)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, addr)
	}
	return addresses, rows.Err()
}

// GetLatestUpdate returns the most recent provider update time, used by the
// sync loop as its resumption cursor. Zero time when the table is empty.
func (s *Service) GetLatestUpdate(ctx context.Context) (time.Time, error) {
	query := `SELECT MAX(updated_at) AS latest_update FROM providers`

	var latest *time.Time
	if err := s.db.Pool().QueryRow(ctx, query).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("failed to read latest provider update: %w", err)
	}
	if latest == nil {
		return time.UnixMilli(0), nil
	}
	return *latest, nil
}

// DeleteByID deletes a provider and, through cascade, its child rows
func (s *Service) DeleteByID(ctx context.Context, providerID string) error {
	return s.DeleteByIDs(ctx, []string{providerID})
}

// DeleteByIDs deletes the given providers; unknown ids are ignored
func (s *Service) DeleteByIDs(ctx context.Context, providerIDs []string) error {
	if len(providerIDs) == 0 {
		return nil
	}
	query := `DELETE FROM providers WHERE id = ANY($1)`

	if _, err := s.db.Pool().Exec(ctx, query, providerIDs); err != nil {
		s.logger.Errorf("Failed to delete providers: %v", err)
		return fmt.Errorf("failed to delete providers: %w", err)
	}
	return nil
}

func collectProviders(rows pgx.Rows) ([]*Provider, error) {
	var providers []*Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

func (s *Service) attachChildren(ctx context.Context, providers []*Provider) ([]*Provider, error) {
	if len(providers) == 0 {
		return providers, nil
	}

	providerIDs := make([]string, 0, len(providers))
	for _, p := range providers {
		providerIDs = append(providerIDs, p.ID)
	}

	emails, err := s.GetEmailAddressesByProviderIDs(ctx, providerIDs)
	if err != nil {
		return nil, err
	}
	emailsByProvider := make(map[string][]EmailAddress)
	for _, email := range emails {
		emailsByProvider[email.ProviderID] = append(emailsByProvider[email.ProviderID], email)
	}

	addresses, err := s.GetAddressesByProviderIDs(ctx, providerIDs)
	if err != nil {
		return nil, err
	}
	addressByProvider := make(map[string]Address, len(addresses))
	for _, addr := range addresses {
		addressByProvider[addr.ProviderID] = addr
	}

	for _, p := range providers {
		p.EmailAddresses = emailsByProvider[p.ID]
		if addr, ok := addressByProvider[p.ID]; ok {
			addrCopy := addr
			p.Address = &addrCopy
		}
	}
	return providers, nil
}
