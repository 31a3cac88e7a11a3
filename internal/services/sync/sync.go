// Package sync pulls user and provider records from an external identity
// directory and replays them into local storage through the bulk upsert
// engines. Sync is incremental: each run starts from the newest locally
// stored update and pages forward until the directory has nothing newer.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/crosslink-io/crosslink/internal/services/provider"
	"github.com/crosslink-io/crosslink/internal/services/user"
	"github.com/crosslink-io/crosslink/pkg/logger"
)

// DefaultPageSize is the directory page size used when none is configured
const DefaultPageSize = 100

// Directory is the external identity provider being mirrored.
//
// Both listing methods must return records updated strictly after the
// given cursor, ordered newest-first, paged by limit and offset. The
// ordering contract is what makes the offset walk safe: records that
// arrive mid-walk sort before the current page and are picked up by the
// next run's cursor instead of shifting pages under us.
type Directory interface {
	ListUsersUpdatedAfter(ctx context.Context, updatedAfter time.Time, limit, offset int) ([]*user.User, error)
	ListProvidersUpdatedAfter(ctx context.Context, updatedAfter time.Time, limit, offset int) ([]*provider.Provider, error)
}

// UserStore is the slice of the user service sync writes through
type UserStore interface {
	GetLatestUpdate(ctx context.Context) (time.Time, error)
	UpsertUsers(ctx context.Context, users []*user.User) error
}

// ProviderStore is the slice of the provider service sync writes through
type ProviderStore interface {
	GetLatestUpdate(ctx context.Context) (time.Time, error)
	UpsertProviders(ctx context.Context, providers []*provider.Provider) error
}

// Syncer mirrors directory records into local storage
type Syncer struct {
	directory Directory
	users     UserStore
	providers ProviderStore
	logger    *logger.Logger
	pageSize  int
}

// NewSyncer creates a new syncer. A pageSize of zero or less falls back to
// DefaultPageSize.
func NewSyncer(directory Directory, users UserStore, providers ProviderStore, log *logger.Logger, pageSize int) *Syncer {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Syncer{
		directory: directory,
		users:     users,
		providers: providers,
		logger:    log,
		pageSize:  pageSize,
	}
}

// SyncUsers pulls every user updated since the local high-water mark and
// upserts them page by page. Returns the number of records applied.
func (s *Syncer) SyncUsers(ctx context.Context) (int, error) {
	cursor, err := s.users.GetLatestUpdate(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to determine user sync cursor: %w", err)
	}

	total := 0
	for offset := 0; ; offset += s.pageSize {
		page, err := s.directory.ListUsersUpdatedAfter(ctx, cursor, s.pageSize, offset)
		if err != nil {
			return total, fmt.Errorf("failed to list users from directory: %w", err)
		}
		if len(page) == 0 {
			break
		}

		if err := s.users.UpsertUsers(ctx, page); err != nil {
			return total, fmt.Errorf("failed to upsert user page at offset %d: %w", offset, err)
		}
		total += len(page)

		if len(page) < s.pageSize {
			break
		}
	}

	s.logger.Infof("User sync complete: %d records applied since %s", total, cursor.UTC().Format(time.RFC3339))
	return total, nil
}

// SyncProviders pulls every provider updated since the local high-water
// mark and upserts them page by page. Returns the number of records
// applied.
func (s *Syncer) SyncProviders(ctx context.Context) (int, error) {
	cursor, err := s.providers.GetLatestUpdate(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to determine provider sync cursor: %w", err)
	}

	total := 0
	for offset := 0; ; offset += s.pageSize {
		page, err := s.directory.ListProvidersUpdatedAfter(ctx, cursor, s.pageSize, offset)
		if err != nil {
			return total, fmt.Errorf("failed to list providers from directory: %w", err)
		}
		if len(page) == 0 {
			break
		}

		if err := s.providers.UpsertProviders(ctx, page); err != nil {
			return total, fmt.Errorf("failed to upsert provider page at offset %d: %w", offset, err)
		}
		total += len(page)

		if len(page) < s.pageSize {
			break
		}
	}

	s.logger.Infof("Provider sync complete: %d records applied since %s", total, cursor.UTC().Format(time.RFC3339))
	return total, nil
}

// SyncAll runs a full user and provider sync in sequence
func (s *Syncer) SyncAll(ctx context.Context) (int, error) {
	usersApplied, err := s.SyncUsers(ctx)
	if err != nil {
		return usersApplied, err
	}
	providersApplied, err := s.SyncProviders(ctx)
	return usersApplied + providersApplied, err
}
