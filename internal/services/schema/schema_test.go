package schema

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopMigration(ctx context.Context, tx pgx.Tx) error { return nil }

func TestApplyOrderFromZero(t *testing.T) {
	s := NewService(nil, nil)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, s.applyOrder(0))
}

func TestApplyOrderFromMiddle(t *testing.T) {
	s := NewService(nil, nil)
	assert.Equal(t, []int{3, 4}, s.applyOrder(3))
}

func TestApplyOrderAtCurrent(t *testing.T) {
	s := NewService(nil, nil)
	assert.Empty(t, s.applyOrder(5))
}

func TestApplyOrderStopsAtGap(t *testing.T) {
	s := &Service{migrations: map[int]MigrationFunc{
		0: noopMigration,
		1: noopMigration,
		// 2 missing
		3: noopMigration,
	}}
	// The walk must never jump a missing step
	assert.Equal(t, []int{0, 1}, s.applyOrder(0))
	assert.Equal(t, []int{3}, s.applyOrder(3))
}

func TestRegisterMigrationExtendsChain(t *testing.T) {
	s := NewService(nil, nil)
	require.Empty(t, s.applyOrder(5))

	s.RegisterMigration(5, noopMigration)
	assert.Equal(t, []int{5}, s.applyOrder(5))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, s.applyOrder(0))
}

func TestRegisterMigrationReplaces(t *testing.T) {
	s := NewService(nil, nil)

	called := false
	s.RegisterMigration(0, func(ctx context.Context, tx pgx.Tx) error {
		called = true
		return nil
	})

	require.NoError(t, s.migrations[0](context.Background(), nil))
	assert.True(t, called)
}
