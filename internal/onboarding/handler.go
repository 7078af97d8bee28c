// Package onboarding marks members who just joined the guild as unverified without
// waiting for the next cycle.
package onboarding

import (
	"context"
	"time"

	"valorant-rolesync/internal/api"
	"valorant-rolesync/internal/domain"
	"valorant-rolesync/internal/metrics"
	"valorant-rolesync/internal/reconcile"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

const joinTimeout = 30 * time.Second

// Guild is the subset of the gateway the handler uses.
type Guild interface {
	ListRoles(ctx context.Context) (domain.RoleCatalog, error)
	ApplyRoleDelta(ctx context.Context, memberID string, delta domain.RoleDelta) error
}

type Handler struct {
	guildID    string
	workerID   int
	guild      Guild
	reconciler *reconcile.Reconciler
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewHandler wires the handler to the primary worker's gateway.
func NewHandler(guildID string, workerID int, guild Guild, reconciler *reconcile.Reconciler, m *metrics.Metrics, logger zerolog.Logger) *Handler {
	return &Handler{
		guildID:    guildID,
		workerID:   workerID,
		guild:      guild,
		reconciler: reconciler,
		metrics:    m,
		logger:     logger.With().Str("component", "onboarding").Logger(),
	}
}

// OnMemberJoin applies the unregistered role set to a fresh member. The directory is
// not consulted; the next cycle corrects members who registered before joining.
func (h *Handler) OnMemberJoin(ctx context.Context, guildID string, member domain.GuildMember) domain.Outcome {
	if guildID != h.guildID || member.Bot {
		return domain.OutcomeNoChange
	}
	logger := h.logger.With().Str("member_id", member.ID).Logger()

	catalog, err := h.guild.ListRoles(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load roles for new member")
		return h.finish(domain.OutcomeError)
	}

	delta, decision, err := h.reconciler.Reconcile(member, nil, catalog)
	if err != nil {
		logger.Error().Err(err).Msg("failed to reconcile new member")
		return h.finish(domain.OutcomeError)
	}
	if !delta.ChangesRoles() {
		if decision.Manual {
			return h.finish(domain.OutcomeSkippedManual)
		}
		return h.finish(domain.OutcomeNoChange)
	}

	if err := h.guild.ApplyRoleDelta(ctx, member.ID, delta); err != nil {
		logger.Error().Err(err).Msg("failed to apply roles to new member")
		return h.finish(domain.OutcomeError)
	}

	logger.Info().
		Str("username", member.Username).
		Strs("added", delta.AddNames()).
		Msg("new member marked unverified")
	return h.finish(domain.OutcomeRoleUpdated)
}

func (h *Handler) finish(outcome domain.Outcome) domain.Outcome {
	h.metrics.MemberOutcome(h.workerID, outcome)
	return outcome
}

// Attach registers the join callback on the session and returns its remover.
func (h *Handler) Attach(session *discordgo.Session) func() {
	return session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
		if e.Member == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
		defer cancel()
		h.OnMemberJoin(ctx, e.GuildID, api.MemberFromGateway(e.Member))
	})
}
