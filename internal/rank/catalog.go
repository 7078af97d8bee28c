// Package rank maps raw Valorant tier strings onto the guild's team and rank roles.
package rank

import (
	"strings"

	"valorant-rolesync/internal/domain"
)

type family struct {
	name         string
	team         domain.Team
	abbreviation string
}

// Order matters: matching walks this list and the first contained family wins.
var families = []family{
	{"Iron", domain.TeamOmega, "Iron"},
	{"Bronze", domain.TeamOmega, "Brz"},
	{"Silver", domain.TeamOmega, "Slv"},
	{"Gold", domain.TeamOmega, "Gld"},
	{"Platinum", domain.TeamOmega, "Plt"},
	{"Diamond", domain.TeamAlpha, "Dia"},
	{"Ascendant", domain.TeamAlpha, "Asc"},
	{"Immortal", domain.TeamAlpha, "Imm"},
	{"Radiant", domain.TeamAlpha, "Radiant"},
}

// Unranked is returned for any tier string that names no known family.
var Unranked = domain.RankTier{}

// Resolve never fails; unknown input yields Unranked carrying the raw name.
func Resolve(raw string) domain.RankTier {
	name := strings.TrimSpace(raw)
	lower := strings.ToLower(name)
	if lower == "" {
		return Unranked
	}

	for i, f := range families {
		if strings.Contains(lower, strings.ToLower(f.name)) {
			return domain.RankTier{
				Name:         name,
				Family:       f.name,
				Team:         f.team,
				Abbreviation: f.abbreviation,
				Ordinal:      i + 1,
			}
		}
	}

	unranked := Unranked
	unranked.Name = name
	return unranked
}

// Families returns the rank role names in ordinal order.
func Families() []string {
	names := make([]string, len(families))
	for i, f := range families {
		names[i] = f.name
	}
	return names
}

func TeamRoles() []string {
	return []string{domain.TeamAlpha.RoleName(), domain.TeamOmega.RoleName()}
}
