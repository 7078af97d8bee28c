package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"valorant-rolesync/internal/constants"
	"valorant-rolesync/internal/domain"

	"github.com/rs/zerolog"
)

// PlayerRepository is the SQLite-backed player directory.
type PlayerRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{
		db:     sqlDB,
		logger: logger,
	}
}

const listPlayers = `
SELECT puuid, name, tag, region, discord_id, discord_username, rank_details, updated_at
FROM players
ORDER BY puuid`

func (r *PlayerRepository) ListPlayerRecords(ctx context.Context) ([]domain.PlayerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, listPlayers)
	if err != nil {
		return nil, fmt.Errorf("failed to query players: %w", err)
	}
	defer rows.Close()

	var records []domain.PlayerRecord
	for rows.Next() {
		var (
			record      domain.PlayerRecord
			discordID   sql.NullString
			rankDetails sql.NullString
		)
		if err := rows.Scan(
			&record.ID,
			&record.Name,
			&record.Tag,
			&record.Region,
			&discordID,
			&record.DiscordUsername,
			&rankDetails,
			&record.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}

		record.DiscordID = discordID.String
		record.RawTierName = r.tierName(record.ID, rankDetails)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate players: %w", err)
	}

	r.logger.Debug().Int("count", len(records)).Msg("loaded player records")
	return records, nil
}

// tierName decodes the stored rank_details JSON. A broken document leaves the
// player unranked rather than failing the whole listing.
func (r *PlayerRepository) tierName(puuid string, raw sql.NullString) string {
	if !raw.Valid || raw.String == "" {
		return ""
	}

	var payload domain.RankPayload
	if err := json.Unmarshal([]byte(raw.String), &payload); err != nil {
		r.logger.Warn().Err(err).Str("puuid", puuid).Msg("failed to decode rank details")
		return ""
	}
	return payload.TierName()
}

const updateIdentity = `
UPDATE players
SET discord_id = ?, discord_username = ?, updated_at = ?
WHERE puuid = ?`

func (r *PlayerRepository) UpdateIdentityFields(ctx context.Context, recordID, discordID, discordUsername string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, updateIdentity, discordID, discordUsername, time.Now().UTC(), recordID)
	if err != nil {
		return fmt.Errorf("failed to update identity fields: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("player %s: %w", recordID, sql.ErrNoRows)
	}
	return nil
}

const upsertPlayer = `
INSERT INTO players (puuid, name, tag, region, discord_id, discord_username, rank_details, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (puuid) DO UPDATE SET
    name = excluded.name,
    tag = excluded.tag,
    region = excluded.region,
    discord_id = excluded.discord_id,
    discord_username = excluded.discord_username,
    rank_details = excluded.rank_details,
    updated_at = excluded.updated_at`

// Upsert writes a full record; the registration and refresh pipelines own this path.
func (r *PlayerRepository) Upsert(ctx context.Context, record domain.PlayerRecord, rank *domain.RankPayload) error {
	var rankDetails sql.NullString
	if rank != nil {
		b, err := json.Marshal(rank)
		if err != nil {
			return fmt.Errorf("failed to encode rank details: %w", err)
		}
		rankDetails = sql.NullString{String: string(b), Valid: true}
	}

	var discordID sql.NullString
	if record.DiscordID != "" {
		discordID = sql.NullString{String: record.DiscordID, Valid: true}
	}

	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, upsertPlayer,
		record.ID,
		record.Name,
		record.Tag,
		record.Region,
		discordID,
		record.DiscordUsername,
		rankDetails,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert player %s: %w", record.ID, err)
	}
	return nil
}
