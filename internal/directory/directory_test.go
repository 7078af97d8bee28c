package directory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"valorant-rolesync/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type identityWrite struct {
	RecordID, DiscordID, Username string
}

type fakeStore struct {
	mu       sync.Mutex
	records  []domain.PlayerRecord
	listErr  error
	writeErr error
	writes   []identityWrite
}

func (s *fakeStore) ListPlayerRecords(ctx context.Context) ([]domain.PlayerRecord, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]domain.PlayerRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *fakeStore) UpdateIdentityFields(ctx context.Context, recordID, discordID, discordUsername string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes = append(s.writes, identityWrite{recordID, discordID, discordUsername})
	return nil
}

func TestLoadIndexesByDiscordID(t *testing.T) {
	store := &fakeStore{records: []domain.PlayerRecord{
		{ID: "p1", DiscordID: "100", RawTierName: "Gold 1"},
		{ID: "p2", DiscordID: ""},
		{ID: "p3", DiscordID: "100", RawTierName: "Iron 1"},
	}}

	dir, err := Load(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 3, dir.Len())

	record, ok := dir.ByDiscordID("100")
	require.True(t, ok)
	assert.Equal(t, "p1", record.ID)
	assert.True(t, dir.Registered("100"))
	assert.False(t, dir.Registered(""))
	assert.False(t, dir.Registered("200"))
}

func TestLoadWrapsStoreError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Load(context.Background(), &fakeStore{listErr: boom})
	assert.ErrorIs(t, err, boom)
}

func TestExactMatcher(t *testing.T) {
	records := []domain.PlayerRecord{{ID: "p1", DiscordID: "100"}, {ID: "p2", DiscordID: "101"}}

	record, ok := ExactMatcher{}.Match(domain.GuildMember{ID: "101"}, records, nil)
	require.True(t, ok)
	assert.Equal(t, "p2", record.ID)

	_, ok = ExactMatcher{}.Match(domain.GuildMember{ID: "102"}, records, nil)
	assert.False(t, ok)
}

func TestProximityMatcher(t *testing.T) {
	records := []domain.PlayerRecord{
		{ID: "p1", DiscordID: "381870553235193856"},
		{ID: "p2", DiscordID: "not-a-number"},
	}
	m := ProximityMatcher{Tolerance: 200}

	record, ok := m.Match(domain.GuildMember{ID: "381870553235193871"}, records, nil)
	require.True(t, ok)
	assert.Equal(t, "p1", record.ID)

	_, ok = m.Match(domain.GuildMember{ID: "381870553235194100"}, records, nil)
	assert.False(t, ok)
}

func TestBackfillWritesStaleIdentity(t *testing.T) {
	store := &fakeStore{}
	syncer := NewSyncer(store, ProximityMatcher{Tolerance: 200}, zerolog.Nop())
	records := []domain.PlayerRecord{{ID: "p1", DiscordID: "381870553235193856", DiscordUsername: "old"}}

	wrote, err := syncer.Backfill(context.Background(), domain.GuildMember{ID: "381870553235193871", Username: "new"}, records)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, []identityWrite{{"p1", "381870553235193871", "new"}}, store.writes)

	// the snapshot is updated so the same pass does not write twice
	assert.Equal(t, "381870553235193871", records[0].DiscordID)
	wrote, err = syncer.Backfill(context.Background(), domain.GuildMember{ID: "381870553235193871", Username: "new"}, records)
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.Len(t, store.writes, 1)
}

func TestBackfillFillsEmptyUsername(t *testing.T) {
	store := &fakeStore{}
	syncer := NewSyncer(store, ExactMatcher{}, zerolog.Nop())

	wrote, err := syncer.Backfill(context.Background(),
		domain.GuildMember{ID: "100", Username: "nova"},
		[]domain.PlayerRecord{{ID: "p1", DiscordID: "100"}})
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, "nova", store.writes[0].Username)
}

func TestBackfillNeverClearsUsername(t *testing.T) {
	store := &fakeStore{}
	syncer := NewSyncer(store, ExactMatcher{}, zerolog.Nop())

	wrote, err := syncer.Backfill(context.Background(),
		domain.GuildMember{ID: "100"},
		[]domain.PlayerRecord{{ID: "p1", DiscordID: "100", DiscordUsername: "kept"}})
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.Empty(t, store.writes)
}

func TestBackfillWriteFailure(t *testing.T) {
	store := &fakeStore{writeErr: errors.New("disk full")}
	syncer := NewSyncer(store, ExactMatcher{}, zerolog.Nop())

	_, err := syncer.Backfill(context.Background(),
		domain.GuildMember{ID: "100", Username: "nova"},
		[]domain.PlayerRecord{{ID: "p1", DiscordID: "100"}})
	assert.ErrorIs(t, err, domain.ErrDirectoryWrite)
}

func TestRunSkipsBotsAndContinuesOnFailure(t *testing.T) {
	store := &fakeStore{}
	syncer := NewSyncer(store, ExactMatcher{}, zerolog.Nop())
	records := []domain.PlayerRecord{
		{ID: "p1", DiscordID: "1"},
		{ID: "p2", DiscordID: "2", DiscordUsername: "same"},
		{ID: "p3", DiscordID: "3"},
	}
	members := []domain.GuildMember{
		{ID: "1", Username: "one"},
		{ID: "2", Username: "same"},
		{ID: "3", Username: "robot", Bot: true},
		{ID: "4", Username: "stranger"},
	}

	written := syncer.Run(context.Background(), members, records)
	assert.Equal(t, 1, written)
	assert.Equal(t, []identityWrite{{"p1", "1", "one"}}, store.writes)

	store.writeErr = errors.New("down")
	records[0].DiscordUsername = ""
	assert.Zero(t, syncer.Run(context.Background(), members, records))
}

func TestRunStopsWhenContextDone(t *testing.T) {
	store := &fakeStore{}
	syncer := NewSyncer(store, ExactMatcher{}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	written := syncer.Run(ctx, []domain.GuildMember{{ID: "1", Username: "one"}}, []domain.PlayerRecord{{ID: "p1", DiscordID: "1"}})
	assert.Zero(t, written)
	assert.Empty(t, store.writes)
}

func TestProximityMatcherSkipsClaimedRecords(t *testing.T) {
	records := []domain.PlayerRecord{
		{ID: "p1", DiscordID: "1000"},
		{ID: "p2", DiscordID: "1010"},
	}
	claimed := func(id string) bool { return id == "1000" }

	record, ok := ProximityMatcher{Tolerance: 200}.Match(domain.GuildMember{ID: "1005"}, records, claimed)
	require.True(t, ok)
	assert.Equal(t, "p2", record.ID)
}

func TestRunKeepsRecordLinkedToListedMember(t *testing.T) {
	store := &fakeStore{}
	syncer := NewSyncer(store, ProximityMatcher{Tolerance: 200}, zerolog.Nop())
	records := []domain.PlayerRecord{{ID: "p1", DiscordID: "1000", DiscordUsername: "alice"}}
	members := []domain.GuildMember{
		{ID: "1005", Username: "bob"},
		{ID: "1000", Username: "alice"},
	}

	written := syncer.Run(context.Background(), members, records)

	assert.Zero(t, written)
	assert.Empty(t, store.writes)
	assert.Equal(t, "1000", records[0].DiscordID)
	assert.Equal(t, "alice", records[0].DiscordUsername)
}
