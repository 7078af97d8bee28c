package rank

import (
	"testing"

	"valorant-rolesync/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestResolveKnownFamilies(t *testing.T) {
	tests := []struct {
		raw          string
		family       string
		team         domain.Team
		abbreviation string
		ordinal      int
	}{
		{"Iron 1", "Iron", domain.TeamOmega, "Iron", 1},
		{"Bronze 2", "Bronze", domain.TeamOmega, "Brz", 2},
		{"Silver 3", "Silver", domain.TeamOmega, "Slv", 3},
		{"Gold 1", "Gold", domain.TeamOmega, "Gld", 4},
		{"Platinum 2", "Platinum", domain.TeamOmega, "Plt", 5},
		{"Diamond 3", "Diamond", domain.TeamAlpha, "Dia", 6},
		{"Ascendant 1", "Ascendant", domain.TeamAlpha, "Asc", 7},
		{"Immortal 2", "Immortal", domain.TeamAlpha, "Imm", 8},
		{"Radiant", "Radiant", domain.TeamAlpha, "Radiant", 9},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			tier := Resolve(tt.raw)
			assert.True(t, tier.Ranked())
			assert.Equal(t, tt.raw, tier.Name)
			assert.Equal(t, tt.family, tier.Family)
			assert.Equal(t, tt.team, tier.Team)
			assert.Equal(t, tt.abbreviation, tier.Abbreviation)
			assert.Equal(t, tt.ordinal, tier.Ordinal)
		})
	}
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	tier := Resolve("  dIaMoNd 1 ")
	assert.Equal(t, "Diamond", tier.Family)
	assert.Equal(t, "dIaMoNd 1", tier.Name)
}

func TestResolveUnknownReturnsUnranked(t *testing.T) {
	for _, raw := range []string{"", "Unrated", "Unknown", "  ", "Grandmaster 1"} {
		tier := Resolve(raw)
		assert.False(t, tier.Ranked(), raw)
		assert.Equal(t, domain.TeamNone, tier.Team, raw)
		assert.Empty(t, tier.Abbreviation, raw)
		assert.Zero(t, tier.Ordinal, raw)
	}
}

func TestFamiliesAndTeams(t *testing.T) {
	assert.Equal(t, []string{
		"Iron", "Bronze", "Silver", "Gold", "Platinum",
		"Diamond", "Ascendant", "Immortal", "Radiant",
	}, Families())
	assert.Equal(t, []string{"Alpha", "Omega"}, TeamRoles())
}
