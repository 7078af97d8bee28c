// Package reconcile computes the minimal role and nickname change that brings one
// guild member in line with its directory entry.
package reconcile

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"valorant-rolesync/internal/constants"
	"valorant-rolesync/internal/domain"
	"valorant-rolesync/internal/rank"
)

type ManualPolicy string

const (
	// ManualVerify keeps Verified/Unverified in sync for Manual members.
	ManualVerify ManualPolicy = "verify"
	// ManualExclude leaves Manual members completely alone.
	ManualExclude ManualPolicy = "exclude"
)

func ParseManualPolicy(s string) (ManualPolicy, error) {
	switch ManualPolicy(strings.ToLower(s)) {
	case ManualVerify, "":
		return ManualVerify, nil
	case ManualExclude:
		return ManualExclude, nil
	default:
		return "", fmt.Errorf("unknown manual role policy %q", s)
	}
}

// Decision describes which branch of the policy produced a delta.
type Decision struct {
	Manual     bool
	Registered bool
	Tier       domain.RankTier
}

type Reconciler struct {
	manualPolicy ManualPolicy
}

func NewReconciler(policy ManualPolicy) *Reconciler {
	if policy == "" {
		policy = ManualVerify
	}
	return &Reconciler{manualPolicy: policy}
}

// Reconcile is pure: it reads the member, the entry (nil when the member is not
// registered) and the guild role catalog, and returns what has to change.
func (r *Reconciler) Reconcile(member domain.GuildMember, entry *domain.PlayerRecord, catalog domain.RoleCatalog) (domain.RoleDelta, Decision, error) {
	decision := Decision{Registered: entry != nil}
	held := heldRoles(member, catalog)

	var want, drop []string
	var nickname string

	switch {
	case held[domain.RoleManual] != "":
		decision.Manual = true
		if r.manualPolicy == ManualExclude {
			return domain.RoleDelta{}, decision, nil
		}
		want, drop = statusRoles(entry != nil)

	case entry == nil:
		want = []string{domain.RoleUnverified}
		drop = append([]string{domain.RoleVerified}, rankAndTeamRoles()...)

	default:
		decision.Tier = rank.Resolve(entry.RawTierName)
		want, drop = statusRoles(true)
		if decision.Tier.Ranked() {
			team := decision.Tier.Team.RoleName()
			want = append(want, team, decision.Tier.Family)
			for _, other := range rankAndTeamRoles() {
				if other != team && other != decision.Tier.Family {
					drop = append(drop, other)
				}
			}
			nickname = Nickname(member.DisplayName(), decision.Tier.Abbreviation)
		}
	}

	delta, err := buildDelta(held, want, drop, catalog)
	if err != nil {
		return domain.RoleDelta{}, decision, err
	}

	if nickname != "" && nickname != member.Nick {
		delta.Nickname = &nickname
	}

	return delta, decision, nil
}

// Nickname appends " [abbr]" to name, cutting the name so the result fits the
// platform limit while the suffix stays whole.
func Nickname(name, abbreviation string) string {
	suffix := " [" + abbreviation + "]"
	budget := constants.MaxNicknameLength - utf8.RuneCountInString(suffix)
	if budget < 0 {
		budget = 0
	}

	if utf8.RuneCountInString(name) > budget {
		runes := []rune(name)
		name = strings.TrimRightFunc(string(runes[:budget]), unicode.IsSpace)
	}
	return name + suffix
}

func statusRoles(registered bool) (want, drop []string) {
	if registered {
		return []string{domain.RoleVerified}, []string{domain.RoleUnverified}
	}
	return []string{domain.RoleUnverified}, []string{domain.RoleVerified}
}

func rankAndTeamRoles() []string {
	return append(rank.TeamRoles(), rank.Families()...)
}

// heldRoles maps the name of every role the member holds to the id it holds it under.
func heldRoles(member domain.GuildMember, catalog domain.RoleCatalog) map[string]string {
	held := make(map[string]string, len(member.RoleIDs))
	for _, id := range member.RoleIDs {
		if name, ok := catalog.Name(id); ok {
			held[name] = id
		}
	}
	return held
}

func buildDelta(held map[string]string, want, drop []string, catalog domain.RoleCatalog) (domain.RoleDelta, error) {
	var delta domain.RoleDelta
	var missing []string

	for _, name := range want {
		if held[name] != "" {
			continue
		}
		id, ok := catalog.ID(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		delta.Add = append(delta.Add, domain.Role{ID: id, Name: name})
	}
	if len(missing) > 0 {
		return domain.RoleDelta{}, fmt.Errorf("%w: guild has no role named %s", domain.ErrConfiguration, strings.Join(missing, ", "))
	}

	for _, name := range drop {
		if id := held[name]; id != "" {
			delta.Remove = append(delta.Remove, domain.Role{ID: id, Name: name})
		}
	}

	return delta, nil
}
