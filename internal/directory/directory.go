// Package directory is the engine's read view over player records and the single
// writer that backfills their Discord identity fields.
package directory

import (
	"context"
	"fmt"

	"valorant-rolesync/internal/domain"
)

// Store is the persistence collaborator. Implementations normalise the rank payload
// into PlayerRecord.RawTierName while decoding.
type Store interface {
	ListPlayerRecords(ctx context.Context) ([]domain.PlayerRecord, error)
	UpdateIdentityFields(ctx context.Context, recordID, discordID, discordUsername string) error
}

// Directory is an immutable per-cycle snapshot of the store.
type Directory struct {
	records   []domain.PlayerRecord
	byDiscord map[string]int
}

func New(records []domain.PlayerRecord) *Directory {
	d := &Directory{
		records:   records,
		byDiscord: make(map[string]int, len(records)),
	}
	for i, r := range records {
		if r.DiscordID == "" {
			continue
		}
		// keep the first record for a duplicated discord id
		if _, ok := d.byDiscord[r.DiscordID]; !ok {
			d.byDiscord[r.DiscordID] = i
		}
	}
	return d
}

func Load(ctx context.Context, store Store) (*Directory, error) {
	records, err := store.ListPlayerRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list player records: %w", err)
	}
	return New(records), nil
}

func (d *Directory) ByDiscordID(id string) (*domain.PlayerRecord, bool) {
	i, ok := d.byDiscord[id]
	if !ok {
		return nil, false
	}
	record := d.records[i]
	return &record, true
}

func (d *Directory) Registered(id string) bool {
	_, ok := d.byDiscord[id]
	return ok
}

func (d *Directory) Records() []domain.PlayerRecord {
	return d.records
}

func (d *Directory) Len() int {
	return len(d.records)
}
