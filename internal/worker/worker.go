package worker

import (
	"context"
	"errors"
	"fmt"

	"valorant-rolesync/internal/directory"
	"valorant-rolesync/internal/domain"
	"valorant-rolesync/internal/metrics"
	"valorant-rolesync/internal/partition"
	"valorant-rolesync/internal/reconcile"

	"github.com/jonboulle/clockwork"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Guild is what a worker needs from Discord. *gateway.Gateway implements it.
type Guild interface {
	Authenticate(ctx context.Context) (string, error)
	ListMembers(ctx context.Context) ([]domain.GuildMember, error)
	ListRoles(ctx context.Context) (domain.RoleCatalog, error)
	ApplyRoleDelta(ctx context.Context, memberID string, delta domain.RoleDelta) error
	SetNickname(ctx context.Context, memberID, nickname string) error
}

// Worker reconciles its half of the guild. The primary worker also owns the
// directory syncer.
type Worker struct {
	id          int
	guild       Guild
	store       directory.Store
	partitioner partition.Partitioner
	reconciler  *reconcile.Reconciler
	syncer      *directory.Syncer
	clock       clockwork.Clock
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// New builds a worker. Pass a nil syncer for the secondary worker.
func New(
	id int,
	guild Guild,
	store directory.Store,
	partitioner partition.Partitioner,
	reconciler *reconcile.Reconciler,
	syncer *directory.Syncer,
	clock clockwork.Clock,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Worker {
	return &Worker{
		id:          id,
		guild:       guild,
		store:       store,
		partitioner: partitioner,
		reconciler:  reconciler,
		syncer:      syncer,
		clock:       clock,
		metrics:     m,
		logger:      logger.With().Int("worker_id", id).Logger(),
	}
}

func (w *Worker) ID() int {
	return w.id
}

func (w *Worker) Primary() bool {
	return w.syncer != nil
}

func (w *Worker) Authenticate(ctx context.Context) error {
	name, err := w.guild.Authenticate(ctx)
	if err != nil {
		return err
	}
	w.logger.Info().Str("bot", name).Bool("primary", w.Primary()).Msg("worker authenticated")
	return nil
}

// RunCycle performs one full pass over this worker's partition. Cancellation is
// honoured between members; the member in flight always finishes.
func (w *Worker) RunCycle(ctx context.Context) (domain.CycleReport, error) {
	cycleID, err := gonanoid.New()
	if err != nil {
		return domain.CycleReport{}, fmt.Errorf("failed to generate cycle id: %w", err)
	}

	report := domain.CycleReport{
		CycleID:   cycleID,
		WorkerID:  w.id,
		StartedAt: w.clock.Now(),
		Outcomes:  make(map[domain.Outcome]int),
	}
	logger := w.logger.With().Str("cycle_id", cycleID).Logger()
	logger.Info().Msg("cycle started")

	members, err := w.guild.ListMembers(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list guild members: %w", err)
	}
	catalog, err := w.guild.ListRoles(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list guild roles: %w", err)
	}
	dir, err := directory.Load(ctx, w.store)
	if err != nil {
		return report, err
	}

	byID := make(map[string]domain.GuildMember, len(members))
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.Bot {
			continue
		}
		byID[m.ID] = m
		ids = append(ids, m.ID)
	}
	mine := partition.For(w.partitioner, w.id, ids)

	logger.Debug().
		Int("guild_members", len(members)).
		Int("partition", len(mine)).
		Int("records", dir.Len()).
		Int("roles", catalog.Len()).
		Msg("cycle inputs loaded")

	for _, id := range mine {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}

		outcome := w.reconcileMember(context.WithoutCancel(ctx), logger, byID[id], dir, catalog)
		report.Members++
		report.Outcomes[outcome]++
		w.metrics.MemberOutcome(w.id, outcome)
	}

	if w.syncer != nil && !report.Interrupted {
		report.Backfilled = w.syncer.Run(ctx, members, dir.Records())
		w.metrics.Backfilled(report.Backfilled)
	}

	report.Duration = w.clock.Since(report.StartedAt)

	event := logger.Info()
	if report.Interrupted {
		event = logger.Warn()
	}
	event.
		Int("members", report.Members).
		Int("updated_roles", report.Outcomes[domain.OutcomeRoleUpdated]).
		Int("updated_nicknames", report.Outcomes[domain.OutcomeNicknameUpdated]).
		Int("unchanged", report.Outcomes[domain.OutcomeNoChange]).
		Int("manual", report.Outcomes[domain.OutcomeSkippedManual]).
		Int("errors", report.Outcomes[domain.OutcomeError]).
		Int("backfilled", report.Backfilled).
		Bool("interrupted", report.Interrupted).
		Dur("duration", report.Duration).
		Msg("cycle finished")

	return report, nil
}

func (w *Worker) reconcileMember(ctx context.Context, logger zerolog.Logger, member domain.GuildMember, dir *directory.Directory, catalog domain.RoleCatalog) domain.Outcome {
	logger = logger.With().Str("member_id", member.ID).Logger()

	entry, _ := dir.ByDiscordID(member.ID)
	delta, decision, err := w.reconciler.Reconcile(member, entry, catalog)
	if err != nil {
		logger.Error().Err(err).Msg("failed to reconcile member")
		return domain.OutcomeError
	}

	if delta.ChangesRoles() {
		if err := w.guild.ApplyRoleDelta(ctx, member.ID, delta); err != nil {
			logMemberError(logger, err, "failed to apply role changes")
			return domain.OutcomeError
		}
	}
	if delta.Nickname != nil {
		if err := w.guild.SetNickname(ctx, member.ID, *delta.Nickname); err != nil {
			logMemberError(logger, err, "failed to set nickname")
			return domain.OutcomeError
		}
	}

	outcome := outcomeFor(delta, decision)
	if outcome != domain.OutcomeNoChange {
		event := logger.Info().
			Str("outcome", string(outcome)).
			Strs("added", delta.AddNames()).
			Strs("removed", delta.RemoveNames())
		if decision.Tier.Ranked() {
			event = event.Str("tier", decision.Tier.Name)
		}
		if delta.Nickname != nil {
			event = event.Str("nickname", *delta.Nickname)
		}
		event.Msg("member updated")
	}
	return outcome
}

func outcomeFor(delta domain.RoleDelta, decision reconcile.Decision) domain.Outcome {
	switch {
	case decision.Manual:
		return domain.OutcomeSkippedManual
	case delta.ChangesRoles():
		return domain.OutcomeRoleUpdated
	case delta.Nickname != nil:
		return domain.OutcomeNicknameUpdated
	default:
		return domain.OutcomeNoChange
	}
}

// logMemberError keeps expected per-member failures out of the error level.
func logMemberError(logger zerolog.Logger, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrPermission):
		logger.Warn().Err(err).Msg(msg)
	default:
		logger.Error().Err(err).Msg(msg)
	}
}
