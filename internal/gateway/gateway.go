package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"valorant-rolesync/internal/api"
	"valorant-rolesync/internal/constants"
	"valorant-rolesync/internal/domain"
	"valorant-rolesync/internal/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Client is the raw Discord REST surface. *api.DiscordClient implements it.
type Client interface {
	CurrentUser(ctx context.Context) (*api.UserResponse, error)
	GuildRoles(ctx context.Context) ([]api.RoleResponse, error)
	GuildMembers(ctx context.Context, after string, limit int) ([]api.MemberResponse, error)
	AddMemberRole(ctx context.Context, userID, roleID string) error
	RemoveMemberRole(ctx context.Context, userID, roleID string) error
	ModifyMemberNick(ctx context.Context, userID, nick string) error
}

// Gateway paces every Discord call for one bot token and retries each call at most once.
type Gateway struct {
	client   Client
	limiter  *rate.Limiter
	fallback time.Duration
	pageSize int
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func New(client Client, delay, fallback time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Gateway {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	if fallback <= 0 {
		fallback = constants.DefaultRateLimitFallback
	}
	return &Gateway{
		client:   client,
		limiter:  rate.NewLimiter(limit, 1),
		fallback: fallback,
		pageSize: constants.DiscordMemberPageLimit,
		metrics:  m,
		logger:   logger,
	}
}

// Authenticate verifies the token and returns the bot's username.
func (g *Gateway) Authenticate(ctx context.Context) (string, error) {
	var user *api.UserResponse
	err := g.call(ctx, "authenticate", func(ctx context.Context) error {
		var err error
		user, err = g.client.CurrentUser(ctx)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to authenticate: %w", err)
	}
	return user.Username, nil
}

func (g *Gateway) ListRoles(ctx context.Context) (domain.RoleCatalog, error) {
	var roles []api.RoleResponse
	err := g.call(ctx, "list_roles", func(ctx context.Context) error {
		var err error
		roles, err = g.client.GuildRoles(ctx)
		return err
	})
	if err != nil {
		return domain.RoleCatalog{}, fmt.Errorf("failed to list roles: %w", err)
	}

	out := make([]domain.Role, len(roles))
	for i, r := range roles {
		out[i] = r.ToDomain()
	}
	return domain.NewRoleCatalog(out), nil
}

// ListMembers walks the member listing page by page. Each page is its own call.
func (g *Gateway) ListMembers(ctx context.Context) ([]domain.GuildMember, error) {
	var (
		members []domain.GuildMember
		after   string
	)
	for {
		var page []api.MemberResponse
		err := g.call(ctx, "list_members", func(ctx context.Context) error {
			var err error
			page, err = g.client.GuildMembers(ctx, after, g.pageSize)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list members after %q: %w", after, err)
		}

		for _, m := range page {
			members = append(members, m.ToDomain())
		}
		if len(page) < g.pageSize {
			break
		}
		after = page[len(page)-1].User.ID
	}
	return members, nil
}

// ApplyRoleDelta issues one call per role change. The first failure aborts the
// remaining changes for this member.
func (g *Gateway) ApplyRoleDelta(ctx context.Context, memberID string, delta domain.RoleDelta) error {
	for _, role := range delta.Add {
		err := g.call(ctx, "add_role", func(ctx context.Context) error {
			return g.client.AddMemberRole(ctx, memberID, role.ID)
		})
		if err != nil {
			return fmt.Errorf("failed to add role %s: %w", role.Name, err)
		}
	}
	for _, role := range delta.Remove {
		err := g.call(ctx, "remove_role", func(ctx context.Context) error {
			return g.client.RemoveMemberRole(ctx, memberID, role.ID)
		})
		if err != nil {
			return fmt.Errorf("failed to remove role %s: %w", role.Name, err)
		}
	}
	return nil
}

func (g *Gateway) SetNickname(ctx context.Context, memberID, nickname string) error {
	err := g.call(ctx, "set_nickname", func(ctx context.Context) error {
		return g.client.ModifyMemberNick(ctx, memberID, nickname)
	})
	if err != nil {
		return fmt.Errorf("failed to set nickname: %w", err)
	}
	return nil
}

func (g *Gateway) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	policy := &retryOnce{fallback: g.fallback}

	op := func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := fn(ctx)
		policy.last = err
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		reason := retryReason(err)
		g.metrics.GatewayRetry(reason)
		g.logger.Warn().
			Err(err).
			Str("operation", operation).
			Str("reason", reason).
			Dur("wait", wait).
			Msg("retrying discord call")
	}

	err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify)
	if err != nil {
		g.metrics.GatewayCall(operation, "error")
		return err
	}
	g.metrics.GatewayCall(operation, "ok")
	return nil
}

func retryable(err error) bool {
	return errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrTransientNetwork)
}

func retryReason(err error) string {
	if errors.Is(err, domain.ErrRateLimited) {
		return "rate_limited"
	}
	return "transient"
}

// retryOnce allows a single retry. A rate-limit rejection waits the advertised
// retry_after, or the fallback when Discord sent none; a transient failure retries
// immediately.
type retryOnce struct {
	fallback time.Duration
	last     error
	used     bool
}

func (b *retryOnce) NextBackOff() time.Duration {
	if b.used {
		return backoff.Stop
	}
	b.used = true

	var rl *domain.RateLimitError
	if errors.As(b.last, &rl) {
		if rl.RetryAfter > 0 {
			return rl.RetryAfter
		}
		return b.fallback
	}
	return 0
}

func (b *retryOnce) Reset() {
	b.used = false
	b.last = nil
}
