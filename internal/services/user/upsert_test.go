package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestFlattenUsersEmpty(t *testing.T) {
	batch, err := flattenUsers(nil)
	require.NoError(t, err)
	assert.Empty(t, batch.ids)
	assert.Empty(t, batch.emailIDs)
	assert.Empty(t, batch.addressIDs)
}

func TestFlattenUsersColumnAlignment(t *testing.T) {
	users := []*User{
		{
			ID:        "user_a",
			Username:  strPtr("alice"),
			FirstName: strPtr("Alice"),
			ImageURL:  "https://img.example/a.png",
			Languages: []string{"en", "fr"},
			CreatedAt: 1000,
			UpdatedAt: 2000,
			EmailAddresses: []EmailAddress{
				{ID: "email_a1", UserID: "user_a", EmailAddress: "alice@example.com"},
				{ID: "email_a2", UserID: "user_a", EmailAddress: "alice@work.example"},
			},
			Address: &Address{
				ID:   "addr_a",
				City: strPtr("Toronto"),
			},
		},
		{
			ID:        "user_b",
			Username:  strPtr("bob"),
			CreatedAt: 3000,
			UpdatedAt: 4000,
		},
	}

	batch, err := flattenUsers(users)
	require.NoError(t, err)

	require.Len(t, batch.ids, 2)
	assert.Equal(t, []string{"user_a", "user_b"}, batch.ids)
	assert.Equal(t, "alice", *batch.usernames[0])
	assert.Equal(t, "bob", *batch.usernames[1])
	assert.Equal(t, []int64{1000, 3000}, batch.createdAts)
	assert.Equal(t, []int64{2000, 4000}, batch.updatedAts)

	// Every parent column array must be the same length
	assert.Len(t, batch.firstNames, 2)
	assert.Len(t, batch.lastNames, 2)
	assert.Len(t, batch.imageURLs, 2)
	assert.Len(t, batch.phoneNumbers, 2)
	assert.Len(t, batch.languagesJSON, 2)
	assert.Len(t, batch.passwordEnabled, 2)
	assert.Len(t, batch.twoFactorEnabled, 2)
	assert.Len(t, batch.backupCodeEnabled, 2)

	// Child arrays align among themselves and carry the parent id
	require.Len(t, batch.emailIDs, 2)
	assert.Equal(t, []string{"user_a", "user_a"}, batch.emailUserIDs)
	assert.Equal(t, []string{"alice@example.com", "alice@work.example"}, batch.emailAddresses)

	require.Len(t, batch.addressIDs, 1)
	assert.Equal(t, "addr_a", batch.addressIDs[0])
	assert.Equal(t, "user_a", batch.addressUserIDs[0])
	assert.Equal(t, "Toronto", *batch.addressCities[0])
	assert.Len(t, batch.addressLats, 1)
	assert.Len(t, batch.addressLngs, 1)
}

func TestFlattenUsersLanguagesEncoding(t *testing.T) {
	users := []*User{
		{ID: "user_a", Languages: []string{"en", "hi"}},
		{ID: "user_b"},
		{ID: "user_c", Languages: []string{}},
	}

	batch, err := flattenUsers(users)
	require.NoError(t, err)

	assert.Equal(t, `["en","hi"]`, batch.languagesJSON[0])
	// nil and empty both encode as an empty array, never null
	assert.Equal(t, `[]`, batch.languagesJSON[1])
	assert.Equal(t, `[]`, batch.languagesJSON[2])
}
