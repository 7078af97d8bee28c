package directory

import (
	"context"
	"fmt"
	"math/big"

	"valorant-rolesync/internal/domain"

	"github.com/rs/zerolog"
)

// Matcher decides which directory record, if any, belongs to a guild member.
// claimed reports Discord ids that belong to other members of the guild; a record
// linked to one of them is never handed to someone else. It may be nil.
type Matcher interface {
	Match(member domain.GuildMember, records []domain.PlayerRecord, claimed func(discordID string) bool) (*domain.PlayerRecord, bool)
}

// ExactMatcher associates records whose Discord id equals the member id.
type ExactMatcher struct{}

func (ExactMatcher) Match(member domain.GuildMember, records []domain.PlayerRecord, _ func(string) bool) (*domain.PlayerRecord, bool) {
	for i := range records {
		if records[i].DiscordID == member.ID {
			return &records[i], true
		}
	}
	return nil, false
}

// ProximityMatcher also accepts ids within Tolerance of the member id. Registrations that
// went through a float64 JSON round trip lose the low digits of the snowflake.
type ProximityMatcher struct {
	Tolerance int64
}

func (m ProximityMatcher) Match(member domain.GuildMember, records []domain.PlayerRecord, claimed func(string) bool) (*domain.PlayerRecord, bool) {
	if record, ok := (ExactMatcher{}).Match(member, records, nil); ok {
		return record, true
	}

	memberID, ok := new(big.Int).SetString(member.ID, 10)
	if !ok {
		return nil, false
	}
	tolerance := big.NewInt(m.Tolerance)

	for i := range records {
		if records[i].DiscordID == "" {
			continue
		}
		if claimed != nil && claimed(records[i].DiscordID) {
			continue
		}
		recordID, ok := new(big.Int).SetString(records[i].DiscordID, 10)
		if !ok {
			continue
		}
		diff := new(big.Int).Sub(memberID, recordID)
		if diff.Abs(diff).Cmp(tolerance) <= 0 {
			return &records[i], true
		}
	}
	return nil, false
}

// Syncer backfills Discord identity fields. Exactly one worker owns one.
type Syncer struct {
	store   Store
	matcher Matcher
	logger  zerolog.Logger
}

func NewSyncer(store Store, matcher Matcher, logger zerolog.Logger) *Syncer {
	return &Syncer{store: store, matcher: matcher, logger: logger}
}

// Backfill returns true when it wrote to the store. A write failure wraps
// domain.ErrDirectoryWrite; the next cycle naturally retries it.
func (s *Syncer) Backfill(ctx context.Context, member domain.GuildMember, records []domain.PlayerRecord) (bool, error) {
	return s.backfill(ctx, member, records, nil)
}

func (s *Syncer) backfill(ctx context.Context, member domain.GuildMember, records []domain.PlayerRecord, claimed func(string) bool) (bool, error) {
	record, ok := s.matcher.Match(member, records, claimed)
	if !ok {
		s.logger.Debug().
			Str("member_id", member.ID).
			Str("username", member.Username).
			Msg("member not found in directory")
		return false, nil
	}

	if record.DiscordID == member.ID && record.DiscordUsername == member.Username {
		return false, nil
	}
	if member.Username == "" && record.DiscordID == member.ID {
		return false, nil
	}

	username := member.Username
	if username == "" {
		username = record.DiscordUsername
	}

	if err := s.store.UpdateIdentityFields(ctx, record.ID, member.ID, username); err != nil {
		return false, fmt.Errorf("%w: record %s: %v", domain.ErrDirectoryWrite, record.ID, err)
	}

	s.logger.Info().
		Str("record_id", record.ID).
		Str("old_discord_id", record.DiscordID).
		Str("discord_id", member.ID).
		Str("old_discord_username", record.DiscordUsername).
		Str("discord_username", username).
		Msg("backfilled discord identity")

	record.DiscordID = member.ID
	record.DiscordUsername = username
	return true, nil
}

// Run backfills every non-bot member and returns the number of records written.
// Failures are logged per member and never stop the pass.
func (s *Syncer) Run(ctx context.Context, members []domain.GuildMember, records []domain.PlayerRecord) int {
	listed := make(map[string]struct{}, len(members))
	for _, member := range members {
		listed[member.ID] = struct{}{}
	}

	written := 0
	for _, member := range members {
		if ctx.Err() != nil {
			break
		}
		if member.Bot {
			continue
		}

		claimed := func(discordID string) bool {
			if discordID == member.ID {
				return false
			}
			_, ok := listed[discordID]
			return ok
		}
		ok, err := s.backfill(ctx, member, records, claimed)
		if err != nil {
			s.logger.Error().Err(err).Str("member_id", member.ID).Msg("failed to backfill discord identity")
			continue
		}
		if ok {
			written++
		}
	}
	return written
}
