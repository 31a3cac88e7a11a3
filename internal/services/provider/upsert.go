package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

const upsertProvidersQuery = `
INSERT INTO providers (
	id, providername, first_name, last_name, image_url, phone_number, languages,
	password_enabled, two_factor_enabled, backup_code_enabled,
	service_radius, can_visit_client_home, virtual_help_offered, business_name,
	created_at, updated_at
)
SELECT
	id, providername, first_name, last_name, image_url, phone_number, languages_json::jsonb,
	password_enabled, two_factor_enabled, backup_code_enabled,
	service_radius, can_visit_client_home, virtual_help_offered, business_name,
	to_timestamp(created_at::BIGINT/1000.0),
	to_timestamp(updated_at::BIGINT/1000.0)
FROM (
	SELECT
		UNNEST($1::text[])     AS id,
		UNNEST($2::varchar[])  AS providername,
		UNNEST($3::varchar[])  AS first_name,
		UNNEST($4::varchar[])  AS last_name,
		UNNEST($5::text[])     AS image_url,
		UNNEST($6::text[])     AS phone_number,
		UNNEST($7::text[])     AS languages_json,
		UNNEST($8::boolean[])  AS password_enabled,
		UNNEST($9::boolean[])  AS two_factor_enabled,
		UNNEST($10::boolean[]) AS backup_code_enabled,
		UNNEST($11::double precision[]) AS service_radius,
		UNNEST($12::boolean[]) AS can_visit_client_home,
		UNNEST($13::boolean[]) AS virtual_help_offered,
		UNNEST($14::varchar[]) AS business_name,
		UNNEST($15::bigint[])  AS created_at,
		UNNEST($16::bigint[])  AS updated_at
) AS t
ON CONFLICT (id) DO UPDATE SET
	providername = EXCLUDED.providername,
	first_name = EXCLUDED.first_name,
	last_name = EXCLUDED.last_name,
	image_url = EXCLUDED.image_url,
	phone_number = EXCLUDED.phone_number,
	languages = EXCLUDED.languages,
	password_enabled = EXCLUDED.password_enabled,
	two_factor_enabled = EXCLUDED.two_factor_enabled,
	backup_code_enabled = EXCLUDED.backup_code_enabled,
	service_radius = EXCLUDED.service_radius,
	can_visit_client_home = EXCLUDED.can_visit_client_home,
	virtual_help_offered = EXCLUDED.virtual_help_offered,
	business_name = EXCLUDED.business_name,
	updated_at = EXCLUDED.updated_at`

const upsertProviderEmailAddressesQuery = `
INSERT INTO provider_email_addresses (id, provider_id, email_address)
SELECT
	UNNEST($1::text[]),
	UNNEST($2::text[]),
	UNNEST($3::varchar[])
ON CONFLICT (id) DO UPDATE SET
	provider_id = EXCLUDED.provider_id,
	email_address = EXCLUDED.email_address`

const upsertProviderAddressesQuery = `
INSERT INTO provider_addresses (id, provider_id, place_id, name, unit_number, city, province, postal_code, country, lat, lng)
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
ON CONFLICT (provider_id) DO UPDATE SET
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

// providerBatch holds the column arrays for one flattened upsert batch,
// index-aligned the same way as the user batch.
type providerBatch struct {
	ids                []string
	providerNames      []*string
	firstNames         []*string
	lastNames          []*string
	imageURLs          []string
	phoneNumbers       []*string
	languagesJSON      []string
	passwordEnabled    []bool
	twoFactorEnabled   []bool
	backupCodeEnabled  []bool
	serviceRadii       []float64
	canVisitClientHome []bool
	virtualHelpOffered []bool
	businessNames      []*string
	createdAts         []int64
	updatedAts         []int64

	emailIDs         []string
	emailProviderIDs []string
	emailAddresses   []string

	addressIDs         []string
	addressProviderIDs []string
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

func flattenProviders(providers []*Provider) (*providerBatch, error) {
	batch := &providerBatch{}
	for _, p := range providers {
		languages := p.Languages
		if languages == nil {
			languages = []string{}
		}
		languagesJSON, err := json.Marshal(languages)
		if err != nil {
			return nil, fmt.Errorf("failed to encode languages for provider %s: %w", p.ID, err)
		}

		batch.ids = append(batch.ids, p.ID)
		batch.providerNames = append(batch.providerNames, p.ProviderName)
		batch.firstNames = append(batch.firstNames, p.FirstName)
		batch.lastNames = append(batch.lastNames, p.LastName)
		batch.imageURLs = append(batch.imageURLs, p.ImageURL)
		batch.phoneNumbers = append(batch.phoneNumbers, p.PhoneNumber)
		batch.languagesJSON = append(batch.languagesJSON, string(languagesJSON))
		batch.passwordEnabled = append(batch.passwordEnabled, p.PasswordEnabled)
		batch.twoFactorEnabled = append(batch.twoFactorEnabled, p.TwoFactorEnabled)
		batch.backupCodeEnabled = append(batch.backupCodeEnabled, p.BackupCodeEnabled)
		batch.serviceRadii = append(batch.serviceRadii, p.ServiceRadius)
		batch.canVisitClientHome = append(batch.canVisitClientHome, p.CanVisitClientHome)
		batch.virtualHelpOffered = append(batch.virtualHelpOffered, p.VirtualHelpOffered)
		batch.businessNames = append(batch.businessNames, p.BusinessName)
		batch.createdAts = append(batch.createdAts, p.CreatedAt)
		batch.updatedAts = append(batch.updatedAts, p.UpdatedAt)

		for _, email := range p.EmailAddresses {
			batch.emailIDs = append(batch.emailIDs, email.ID)
			batch.emailProviderIDs = append(batch.emailProviderIDs, p.ID)
			batch.emailAddresses = append(batch.emailAddresses, email.EmailAddress)
		}

		if p.Address != nil {
			batch.addressIDs = append(batch.addressIDs, p.Address.ID)
			batch.addressProviderIDs = append(batch.addressProviderIDs, p.ID)
			batch.addressPlaceIDs = append(batch.addressPlaceIDs, p.Address.PlaceID)
			batch.addressNames = append(batch.addressNames, p.Address.Name)
			batch.addressUnitNumbers = append(batch.addressUnitNumbers, p.Address.UnitNumber)
			batch.addressCities = append(batch.addressCities, p.Address.City)
			batch.addressProvinces = append(batch.addressProvinces, p.Address.Province)
			batch.addressPostalCodes = append(batch.addressPostalCodes, p.Address.PostalCode)
			batch.addressCountries = append(batch.addressCountries, p.Address.Country)
			batch.addressLats = append(batch.addressLats, p.Address.Lat)
			batch.addressLngs = append(batch.addressLngs, p.Address.Lng)
		}
	}
	return batch, nil
}

// UpsertProviders merges a batch of provider aggregates into the normalized
// tables inside one transaction. An empty batch is a no-op and opens no
// transaction.
func (s *Service) UpsertProviders(ctx context.Context, providers []*Provider) error {
	if len(providers) == 0 {
		return nil
	}

	batch, err := flattenProviders(providers)
	if err != nil {
		return err
	}

	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin upsert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, upsertProvidersQuery,
		batch.ids,
		batch.providerNames,
		batch.firstNames,
		batch.lastNames,
		batch.imageURLs,
		batch.phoneNumbers,
		batch.languagesJSON,
		batch.passwordEnabled,
		batch.twoFactorEnabled,
		batch.backupCodeEnabled,
		batch.serviceRadii,
		batch.canVisitClientHome,
		batch.virtualHelpOffered,
		batch.businessNames,
		batch.createdAts,
		batch.updatedAts,
	)
	if err != nil {
		s.logger.Errorf("Failed to upsert providers: %v", err)
		return fmt.Errorf("failed to upsert providers: %w", err)
	}

	if len(batch.emailIDs) > 0 {
		_, err = tx.Exec(ctx, upsertProviderEmailAddressesQuery,
			batch.emailIDs,
			batch.emailProviderIDs,
			batch.emailAddresses,
		)
		if err != nil {
			s.logger.Errorf("Failed to upsert provider email addresses: %v", err)
			return fmt.Errorf("failed to upsert provider email addresses: %w", err)
		}
	}

	if len(batch.addressIDs) > 0 {
		_, err = tx.Exec(ctx, upsertProviderAddressesQuery,
			batch.addressIDs,
			batch.addressProviderIDs,
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
			s.logger.Errorf("Failed to upsert provider addresses: %v", err)
			return fmt.Errorf("failed to upsert provider addresses: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit upsert transaction: %w", err)
	}

	s.logger.Infof("Upserted %d providers (%d emails, %d addresses)",
		len(batch.ids), len(batch.emailIDs), len(batch.addressIDs))
	return nil
}
