package schema

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// The default chain mirrors the deployment history of the schema: users and
// their email addresses first, then the connection graph, then user
// addresses, then the phone/languages columns, then providers. Check
// constraints are declared inline in CREATE TABLE so every step stays
// idempotent under re-runs.

const createUsersTableQuery = `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username VARCHAR(255),
		first_name VARCHAR(255),
		last_name VARCHAR(255),
		image_url TEXT NOT NULL,
		password_enabled BOOLEAN NOT NULL DEFAULT false,
		two_factor_enabled BOOLEAN NOT NULL DEFAULT false,
		backup_code_enabled BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

const createEmailAddressesTableQuery = `
	CREATE TABLE IF NOT EXISTS email_addresses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		email_address VARCHAR(255) NOT NULL UNIQUE
	)`

const createUsersUsernameIndexQuery = `
	CREATE UNIQUE INDEX IF NOT EXISTS uq_users_username
		ON users(username) WHERE username IS NOT NULL`

const createEmailAddressesUserIDIndexQuery = `
	CREATE INDEX IF NOT EXISTS idx_email_addresses_user_id ON email_addresses(user_id)`

const createEmailAddressesEmailIndexQuery = `
	CREATE INDEX IF NOT EXISTS idx_email_addresses_email ON email_addresses(email_address)`

const createConnectionRequestsTableQuery = `
	CREATE TABLE IF NOT EXISTS connection_requests (
		request_id BIGSERIAL PRIMARY KEY,
		requester_id TEXT NOT NULL,
		requester_username VARCHAR(255),
		requester_first_name VARCHAR(255),
		requester_last_name VARCHAR(255),
		requester_image_url TEXT,
		receiver_id TEXT NOT NULL,
		receiver_username VARCHAR(255),
		receiver_first_name VARCHAR(255),
		receiver_last_name VARCHAR(255),
		receiver_image_url TEXT,
		greeting_text TEXT,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		responded_at TIMESTAMPTZ,
		CONSTRAINT chk_connection_requests_no_self CHECK (requester_id <> receiver_id)
	)`

// At most one pending request per unordered pair; resolved requests free the
// slot because the index filter only covers pending rows.
const createConnectionRequestsPairIndexQuery = `
	CREATE UNIQUE INDEX IF NOT EXISTS uq_connection_requests_pair
		ON connection_requests (LEAST(requester_id, receiver_id), GREATEST(requester_id, receiver_id))
		WHERE status = 'pending'`

const createConnectionsTableQuery = `
	CREATE TABLE IF NOT EXISTS connections (
		connection_id BIGSERIAL PRIMARY KEY,
		user_id1 TEXT NOT NULL,
		user_id1_username VARCHAR(255),
		user_id1_first_name VARCHAR(255),
		user_id1_last_name VARCHAR(255),
		user_id1_image_url TEXT,
		user_id2 TEXT NOT NULL,
		user_id2_username VARCHAR(255),
		user_id2_first_name VARCHAR(255),
		user_id2_last_name VARCHAR(255),
		user_id2_image_url TEXT,
		connected_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT chk_connections_user_order CHECK (user_id1 < user_id2)
	)`

const createConnectionsPairIndexQuery = `
	CREATE UNIQUE INDEX IF NOT EXISTS uq_connections_pair
		ON connections (user_id1, user_id2)`

const createAddressesTableQuery = `
	CREATE TABLE IF NOT EXISTS addresses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		place_id TEXT,
		name TEXT,
		unit_number TEXT,
		city VARCHAR(255),
		province VARCHAR(255),
		postal_code VARCHAR(64),
		country VARCHAR(64),
		lat DOUBLE PRECISION,
		lng DOUBLE PRECISION
	)`

// One address row per user; bulk upserts conflict on this column.
const createAddressesUserIDIndexQuery = `
	CREATE UNIQUE INDEX IF NOT EXISTS uq_addresses_user_id ON addresses(user_id)`

const createAddressesPlaceIDIndexQuery = `
	CREATE INDEX IF NOT EXISTS idx_addresses_place_id
		ON addresses(place_id) WHERE place_id IS NOT NULL`

const addPhoneAndLanguagesQuery = `
	ALTER TABLE users
		ADD COLUMN IF NOT EXISTS phone_number TEXT,
		ADD COLUMN IF NOT EXISTS languages JSONB NOT NULL DEFAULT '[]'`

const createProvidersTableQuery = `
	CREATE TABLE IF NOT EXISTS providers (
		id TEXT PRIMARY KEY,
		providername VARCHAR(255) UNIQUE,
		first_name VARCHAR(255),
		last_name VARCHAR(255),
		image_url TEXT NOT NULL,
		phone_number TEXT,
		languages JSONB NOT NULL DEFAULT '[]',
		password_enabled BOOLEAN NOT NULL DEFAULT false,
		two_factor_enabled BOOLEAN NOT NULL DEFAULT false,
		backup_code_enabled BOOLEAN NOT NULL DEFAULT false,
		service_radius DOUBLE PRECISION NOT NULL DEFAULT 0,
		can_visit_client_home BOOLEAN NOT NULL DEFAULT false,
		virtual_help_offered BOOLEAN NOT NULL DEFAULT false,
		business_name VARCHAR(255),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

const createProviderEmailAddressesTableQuery = `
	CREATE TABLE IF NOT EXISTS provider_email_addresses (
		id TEXT PRIMARY KEY,
		provider_id TEXT NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
		email_address VARCHAR(255) NOT NULL UNIQUE
	)`

const createProviderAddressesTableQuery = `
	CREATE TABLE IF NOT EXISTS provider_addresses (
		id TEXT PRIMARY KEY,
		provider_id TEXT NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
		place_id TEXT,
		name TEXT,
		unit_number TEXT,
		city VARCHAR(255),
		province VARCHAR(255),
		postal_code VARCHAR(64),
		country VARCHAR(64),
		lat DOUBLE PRECISION,
		lng DOUBLE PRECISION
	)`

const createProvidersBusinessNameIndexQuery = `
	CREATE INDEX IF NOT EXISTS idx_providers_business_name
		ON providers(business_name) WHERE business_name IS NOT NULL`

const createProviderEmailAddressesProviderIDIndexQuery = `
	CREATE INDEX IF NOT EXISTS idx_provider_email_addresses_provider_id
		ON provider_email_addresses(provider_id)`

const createProviderEmailAddressesEmailIndexQuery = `
	CREATE INDEX IF NOT EXISTS idx_provider_email_addresses_email
		ON provider_email_addresses(email_address)`

const createProviderAddressesProviderIDIndexQuery = `
	CREATE UNIQUE INDEX IF NOT EXISTS uq_provider_addresses_provider_id
		ON provider_addresses(provider_id)`

const createProviderAddressesPlaceIDIndexQuery = `
	CREATE INDEX IF NOT EXISTS idx_provider_addresses_place_id
		ON provider_addresses(place_id) WHERE place_id IS NOT NULL`

func registerDefaults(s *Service) {
	s.RegisterMigration(0, func(ctx context.Context, tx pgx.Tx) error {
		return execAll(ctx, tx,
			createUsersTableQuery,
			createEmailAddressesTableQuery,
			createUsersUsernameIndexQuery,
			createEmailAddressesUserIDIndexQuery,
			createEmailAddressesEmailIndexQuery,
		)
	})

	s.RegisterMigration(1, func(ctx context.Context, tx pgx.Tx) error {
		return execAll(ctx, tx,
			createConnectionRequestsTableQuery,
			createConnectionRequestsPairIndexQuery,
			createConnectionsTableQuery,
			createConnectionsPairIndexQuery,
		)
	})

	s.RegisterMigration(2, func(ctx context.Context, tx pgx.Tx) error {
		return execAll(ctx, tx,
			createAddressesTableQuery,
			createAddressesUserIDIndexQuery,
			createAddressesPlaceIDIndexQuery,
		)
	})

	s.RegisterMigration(3, func(ctx context.Context, tx pgx.Tx) error {
		return execAll(ctx, tx, addPhoneAndLanguagesQuery)
	})

	s.RegisterMigration(4, func(ctx context.Context, tx pgx.Tx) error {
		return execAll(ctx, tx,
			createProvidersTableQuery,
			createProviderEmailAddressesTableQuery,
			createProviderAddressesTableQuery,
			createProvidersBusinessNameIndexQuery,
			createProviderEmailAddressesProviderIDIndexQuery,
			createProviderEmailAddressesEmailIndexQuery,
			createProviderAddressesProviderIDIndexQuery,
			createProviderAddressesPlaceIDIndexQuery,
		)
	})
}

func execAll(ctx context.Context, tx pgx.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}
