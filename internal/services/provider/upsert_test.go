package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestFlattenProvidersEmpty(t *testing.T) {
	batch, err := flattenProviders(nil)
	require.NoError(t, err)
	assert.Empty(t, batch.ids)
	assert.Empty(t, batch.emailIDs)
	assert.Empty(t, batch.addressIDs)
}

func TestFlattenProvidersColumnAlignment(t *testing.T) {
	providers := []*Provider{
		{
			ID:                 "prov_a",
			ProviderName:       strPtr("acme-care"),
			BusinessName:       strPtr("Acme Care Inc"),
			ServiceRadius:      25.5,
			CanVisitClientHome: true,
			Languages:          []string{"en"},
			CreatedAt:          100,
			UpdatedAt:          200,
			EmailAddresses: []EmailAddress{
				{ID: "email_p1", ProviderID: "prov_a", EmailAddress: "ops@acme.example"},
			},
			Address: &Address{
				ID:      "addr_p",
				Country: strPtr("CA"),
			},
		},
		{
			ID:                 "prov_b",
			VirtualHelpOffered: true,
			CreatedAt:          300,
			UpdatedAt:          400,
		},
	}

	batch, err := flattenProviders(providers)
	require.NoError(t, err)

	require.Len(t, batch.ids, 2)
	assert.Equal(t, []string{"prov_a", "prov_b"}, batch.ids)
	assert.Equal(t, []float64{25.5, 0}, batch.serviceRadii)
	assert.Equal(t, []bool{true, false}, batch.canVisitClientHome)
	assert.Equal(t, []bool{false, true}, batch.virtualHelpOffered)
	assert.Equal(t, "Acme Care Inc", *batch.businessNames[0])
	assert.Nil(t, batch.businessNames[1])
	assert.Equal(t, `["en"]`, batch.languagesJSON[0])
	assert.Equal(t, `[]`, batch.languagesJSON[1])

	require.Len(t, batch.emailIDs, 1)
	assert.Equal(t, "prov_a", batch.emailProviderIDs[0])

	require.Len(t, batch.addressIDs, 1)
	assert.Equal(t, "prov_a", batch.addressProviderIDs[0])
	assert.Equal(t, "CA", *batch.addressCountries[0])
}
