package user

import (
	"context"
	"encoding/json"
	"fmt"
)

// Set-based upserts: each statement inserts or updates a whole batch from
// index-aligned array parameters. The parent conflicts on id, emails on
// their own id, addresses on the owning user id so a re-submitted address
// overwrites the previous one instead of duplicating it.

const upsertUsersQuery = `
INSERT INTO users (
	id, username, first_name, last_name, image_url, phone_number, languages,
	password_enabled, two_factor_enabled, backup_code_enabled, created_at, updated_at
)
SELECT
	id, username, first_name, last_name, image_url, phone_number, languages_json::jsonb,
	password_enabled, two_factor_enabled, backup_code_enabled,
	to_timestamp(created_at::BIGINT/1000.0),
	to_timestamp(updated_at::BIGINT/1000.0)
FROM (
	SELECT
		UNNEST($1::text[])    AS id,
		UNNEST($2::varchar[]) AS username,
		UNNEST($3::varchar[]) AS first_name,
		UNNEST($4::varchar[]) AS last_name,
		UNNEST($5::text[])    AS image_url,
		UNNEST($6::text[])    AS phone_number,
		UNNEST($7::text[])    AS languages_json,
		UNNEST($8::boolean[]) AS password_enabled,
		UNNEST($9::boolean[]) AS two_factor_enabled,
		UNNEST($10::boolean[]) AS backup_code_enabled,
		UNNEST($11::bigint[]) AS created_at,
		UNNEST($12::bigint[]) AS updated_at
) AS t
ON CONFLICT (id) DO UPDATE SET
	username = EXCLUDED.username,
	first_name = EXCLUDED.first_name,
	last_name = EXCLUDED.last_name,
	image_url = EXCLUDED.image_url,
	phone_number = EXCLUDED.phone_number,
	languages = EXCLUDED.languages,
	password_enabled = EXCLUDED.password_enabled,
	two_factor_enabled = EXCLUDED.two_factor_enabled,
	backup_code_enabled = EXCLUDED.backup_code_enabled,
	updated_at = EXCLUDED.updated_at`

const upsertEmailAddressesQuery = `
INSERT INTO email_addresses (id, user_id, email_address)
SELECT
	UNNEST($1::text[]),
	UNNEST($2::text[]),
	UNNEST($3::varchar[])
ON CONFLICT (id) DO UPDATE SET
	user_id = EXCLUDED.user_id,
	email_address = EXCLUDED.email_address`

const upsertAddressesQuery = `
INSERT INTO addresses (id, user_id, place_id, name, unit_number, city, province, postal_code, country, lat, lng)
SELECT
	UNNEST($1::text[]),
	UNNEST($2::text[]),
	UNNEST($3::text[]),
	UNNEST($4::text[]),
	UNNEST($5::text[]),
	UNNEST($6::varchar[]),
	UNNEST($7::varchar[]),
	UNNEST($8::varchar[]),
	UNNEST($9::varchar[]),
	UNNEST($10::double precision[]),
	UNNEST($11::double precision[])
ON CONFLICT (user_id) DO UPDATE SET
	id = EXCLUDED.id,
	place_id = EXCLUDED.place_id,
	name = EXCLUDED.name,
	unit_number = EXCLUDED.unit_number,
	city = EXCLUDED.city,
	province = EXCLUDED.province,
	postal_code = EXCLUDED.postal_code,
	country = EXCLUDED.country,
	lat = EXCLUDED.lat,
	lng = EXCLUDED.lng`

// userBatch holds the column arrays for one flattened upsert batch.
// Index i across every parent slice corresponds to users[i]; the child
// slices are index-aligned among themselves.
type userBatch struct {
	ids               []string
	usernames         []*string
	firstNames        []*string
	lastNames         []*string
	imageURLs         []string
	phoneNumbers      []*string
	languagesJSON     []string
	passwordEnabled   []bool
	twoFactorEnabled  []bool
	backupCodeEnabled []bool
	createdAts        []int64
	updatedAts        []int64

	emailIDs       []string
	emailUserIDs   []string
	emailAddresses []string

	addressIDs         []string
	addressUserIDs     []string
	addressPlaceIDs    []*string
	addressNames       []*string
	addressUnitNumbers []*string
	addressCities      []*string
	addressProvinces   []*string
	addressPostalCodes []*string
	addressCountries   []*string
	addressLats        []*float64
	addressLngs        []*float64
}

func flattenUsers(users []*User) (*userBatch, error) {
	batch := &userBatch{}
	for _, user := range users {
		languages := user.Languages
		if languages == nil {
			languages = []string{}
		}
		languagesJSON, err := json.Marshal(languages)
		if err != nil {
			return nil, fmt.Errorf("failed to encode languages for user %s: %w", user.ID, err)
		}

		batch.ids = append(batch.ids, user.ID)
		batch.usernames = append(batch.usernames, user.Username)
		batch.firstNames = append(batch.firstNames, user.FirstName)
		batch.lastNames = append(batch.lastNames, user.LastName)
		batch.imageURLs = append(batch.imageURLs, user.ImageURL)
		batch.phoneNumbers = append(batch.phoneNumbers, user.PhoneNumber)
		batch.languagesJSON = append(batch.languagesJSON, string(languagesJSON))
		batch.passwordEnabled = append(batch.passwordEnabled, user.PasswordEnabled)
		batch.twoFactorEnabled = append(batch.twoFactorEnabled, user.TwoFactorEnabled)
		batch.backupCodeEnabled = append(batch.backupCodeEnabled, user.BackupCodeEnabled)
		batch.createdAts = append(batch.createdAts, user.CreatedAt)
		batch.updatedAts = append(batch.updatedAts, user.UpdatedAt)

		for _, email := range user.EmailAddresses {
			batch.emailIDs = append(batch.emailIDs, email.ID)
			batch.emailUserIDs = append(batch.emailUserIDs, user.ID)
			batch.emailAddresses = append(batch.emailAddresses, email.EmailAddress)
		}

		if user.Address != nil {
			batch.addressIDs = append(batch.addressIDs, user.Address.ID)
			batch.addressUserIDs = append(batch.addressUserIDs, user.ID)
			batch.addressPlaceIDs = append(batch.addressPlaceIDs, user.Address.PlaceID)
			batch.addressNames = append(batch.addressNames, user.Address.Name)
			batch.addressUnitNumbers = append(batch.addressUnitNumbers, user.Address.UnitNumber)
			batch.addressCities = append(batch.addressCities, user.Address.City)
			batch.addressProvinces = append(batch.addressProvinces, user.Address.Province)
			batch.addressPostalCodes = append(batch.addressPostalCodes, user.Address.PostalCode)
			batch.addressCountries = append(batch.addressCountries, user.Address.Country)
			batch.addressLats = append(batch.addressLats, user.Address.Lat)
			batch.addressLngs = append(batch.addressLngs, user.Address.Lng)
		}
	}
	return batch, nil
}

// UpsertUsers merges a batch of user aggregates into the normalized tables
// inside one transaction. Re-submitting the same batch is idempotent; an
// empty batch is a no-op and opens no transaction.
func (s *Service) UpsertUsers(ctx context.Context, users []*User) error {
	if len(users) == 0 {
		return nil
	}

	batch, err := flattenUsers(users)
	if err != nil {
		return err
	}

	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin upsert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, upsertUsersQuery,
		batch.ids,
		batch.usernames,
		batch.firstNames,
		batch.lastNames,
		batch.imageURLs,
		batch.phoneNumbers,
		batch.languagesJSON,
		batch.passwordEnabled,
		batch.twoFactorEnabled,
		batch.backupCodeEnabled,
		batch.createdAts,
		batch.updatedAts,
	)
	if err != nil {
		s.logger.Errorf("Failed to upsert users: %v", err)
		return fmt.Errorf("failed to upsert users: %w", err)
	}

	if len(batch.emailIDs) > 0 {
		_, err = tx.Exec(ctx, upsertEmailAddressesQuery,
			batch.emailIDs,
			batch.emailUserIDs,
			batch.emailAddresses,
		)
		if err != nil {
			s.logger.Errorf("Failed to upsert email addresses: %v", err)
			return fmt.Errorf("failed to upsert email addresses: %w", err)
		}
	}

	if len(batch.addressIDs) > 0 {
		_, err = tx.Exec(ctx, upsertAddressesQuery,
			batch.addressIDs,
			batch.addressUserIDs,
			batch.addressPlaceIDs,
			batch.addressNames,
			batch.addressUnitNumbers,
			batch.addressCities,
			batch.addressProvinces,
			batch.addressPostalCodes,
			batch.addressCountries,
			batch.addressLats,
			batch.addressLngs,
		)
		if err != nil {
			s.logger.Errorf("Failed to upsert addresses: %v", err)
			return fmt.Errorf("failed to upsert addresses: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit upsert transaction: %w", err)
	}

	s.logger.Infof("Upserted %d users (%d emails, %d addresses)",
		len(batch.ids), len(batch.emailIDs), len(batch.addressIDs))
	return nil
}
