package domain

import (
	"time"
)

type Team int

const (
	TeamNone Team = iota
	TeamAlpha
	TeamOmega
)

func (t Team) RoleName() string {
	switch t {
	case TeamAlpha:
		return RoleAlpha
	case TeamOmega:
		return RoleOmega
	default:
		return ""
	}
}

func (t Team) String() string {
	if name := t.RoleName(); name != "" {
		return name
	}
	return "none"
}

// Guild role names the engine manages. Rank family roles are named after the family itself.
const (
	RoleVerified   = "Verified"
	RoleUnverified = "Unverified"
	RoleManual     = "Manual"
	RoleAlpha      = "Alpha"
	RoleOmega      = "Omega"
)

type RankTier struct {
	Name         string // raw canonical display string, e.g. "Diamond 3"
	Family       string // matched family, e.g. "Diamond"
	Team         Team
	Abbreviation string
	Ordinal      int // 0 for unranked
}

func (t RankTier) Ranked() bool {
	return t.Family != ""
}

// RankData is the current-tier document written by the Riot refresh pipeline.
type RankData struct {
	CurrentTier        int    `bson:"currenttier" json:"currenttier"`
	CurrentTierPatched string `bson:"currenttierpatched" json:"currenttierpatched"`
	Elo                int    `bson:"elo" json:"elo"`
	RankingInTier      int    `bson:"ranking_in_tier" json:"ranking_in_tier"`
}

// RankPayload covers both stored shapes of rank_details: the legacy one wraps the
// tier document under "data", the current one carries the fields directly.
type RankPayload struct {
	Data               *RankData `bson:"data,omitempty" json:"data,omitempty"`
	CurrentTierPatched string    `bson:"currenttierpatched,omitempty" json:"currenttierpatched,omitempty"`
}

func (p *RankPayload) TierName() string {
	if p == nil {
		return ""
	}
	if p.Data != nil {
		return p.Data.CurrentTierPatched
	}
	return p.CurrentTierPatched
}

type PlayerRecord struct {
	ID              string // puuid
	Name            string
	Tag             string
	Region          string
	DiscordID       string
	DiscordUsername string
	RawTierName     string
	UpdatedAt       time.Time
}

type GuildMember struct {
	ID         string
	Username   string
	GlobalName string
	Nick       string
	RoleIDs    []string
	JoinedAt   time.Time
	Bot        bool
}

func (m GuildMember) DisplayName() string {
	if m.GlobalName != "" {
		return m.GlobalName
	}
	return m.Username
}

func (m GuildMember) HasRole(roleID string) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

type Role struct {
	ID   string
	Name string
}

// RoleCatalog maps role names to ids for a single guild.
type RoleCatalog struct {
	byName map[string]string
	byID   map[string]string
}

func NewRoleCatalog(roles []Role) RoleCatalog {
	c := RoleCatalog{
		byName: make(map[string]string, len(roles)),
		byID:   make(map[string]string, len(roles)),
	}
	for _, r := range roles {
		// first role wins on duplicate names
		if _, ok := c.byName[r.Name]; !ok {
			c.byName[r.Name] = r.ID
		}
		c.byID[r.ID] = r.Name
	}
	return c
}

func (c RoleCatalog) ID(name string) (string, bool) {
	id, ok := c.byName[name]
	return id, ok
}

func (c RoleCatalog) Name(id string) (string, bool) {
	name, ok := c.byID[id]
	return name, ok
}

func (c RoleCatalog) Len() int {
	return len(c.byID)
}

type RoleDelta struct {
	Add      []Role
	Remove   []Role
	Nickname *string
}

func (d RoleDelta) ChangesRoles() bool {
	return len(d.Add) > 0 || len(d.Remove) > 0
}

func (d RoleDelta) IsEmpty() bool {
	return !d.ChangesRoles() && d.Nickname == nil
}

func (d RoleDelta) AddNames() []string {
	return roleNames(d.Add)
}

func (d RoleDelta) RemoveNames() []string {
	return roleNames(d.Remove)
}

func roleNames(roles []Role) []string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name
	}
	return names
}

type Outcome string

const (
	OutcomeRoleUpdated     Outcome = "role-updated"
	OutcomeNicknameUpdated Outcome = "nickname-updated"
	OutcomeNoChange        Outcome = "no-change"
	OutcomeSkippedManual   Outcome = "skipped-manual"
	OutcomeError           Outcome = "error"
)

type CycleReport struct {
	CycleID     string          `json:"cycle_id"`
	WorkerID    int             `json:"worker_id"`
	StartedAt   time.Time       `json:"started_at"`
	Duration    time.Duration   `json:"duration"`
	Members     int             `json:"members"` // members in this worker's partition
	Outcomes    map[Outcome]int `json:"outcomes"`
	Backfilled  int             `json:"backfilled"`
	Interrupted bool            `json:"interrupted"`
}
