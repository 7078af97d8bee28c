package api

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"valorant-rolesync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func newTestClient(t *testing.T, handler fasthttp.RequestHandler) *DiscordClient {
	t.Helper()

	ln := fasthttputil.NewInmemoryListener()
	server := &fasthttp.Server{Handler: handler}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	client := NewDiscordClient("http://discord.test/api/v10/", "secret", "guild-1")
	client.client.Dial = func(addr string) (net.Conn, error) {
		return ln.Dial()
	}
	return client
}

func TestGuildMembersDecodesPage(t *testing.T) {
	var gotPath, gotAuth string
	client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		gotPath = string(ctx.RequestURI())
		gotAuth = string(ctx.Request.Header.Peek("Authorization"))
		ctx.Response.Header.Set("X-RateLimit-Limit", "10")
		ctx.Response.Header.Set("X-RateLimit-Remaining", "9")
		ctx.Response.Header.Set("X-RateLimit-Reset-After", "1.5")
		ctx.Response.Header.Set("X-RateLimit-Bucket", "members")
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`[
			{"user":{"id":"100","username":"nova","global_name":"Nova"},"nick":"old","roles":["1","2"],"joined_at":"2021-04-26T06:26:56.936000+00:00"},
			{"user":{"id":"101","username":"helper","bot":true},"roles":[],"joined_at":"2022-01-01T00:00:00+00:00"}
		]`)
	})

	members, err := client.GuildMembers(context.Background(), "99", 1000)
	require.NoError(t, err)
	require.Len(t, members, 2)

	assert.Equal(t, "/api/v10/guilds/guild-1/members?after=99&limit=1000", gotPath)
	assert.Equal(t, "Bot secret", gotAuth)

	first := members[0].ToDomain()
	assert.Equal(t, "100", first.ID)
	assert.Equal(t, "Nova", first.GlobalName)
	assert.Equal(t, "old", first.Nick)
	assert.Equal(t, []string{"1", "2"}, first.RoleIDs)
	assert.False(t, first.Bot)
	assert.True(t, members[1].ToDomain().Bot)

	info := client.GetRateLimitInfo()
	assert.Equal(t, "members", info.Bucket)
	assert.Equal(t, 10, info.Limit)
	assert.Equal(t, 9, info.Remaining)
	assert.InDelta(t, 1.5, info.ResetAfter, 0.001)
}

func TestModifyMemberNickSendsPatch(t *testing.T) {
	var method string
	var body map[string]string
	client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		method = string(ctx.Method())
		_ = json.Unmarshal(ctx.PostBody(), &body)
		ctx.SetBodyString(`{"user":{"id":"100","username":"nova"},"nick":"Nova [Dia]","roles":[]}`)
	})

	require.NoError(t, client.ModifyMemberNick(context.Background(), "100", "Nova [Dia]"))
	assert.Equal(t, fasthttp.MethodPatch, method)
	assert.Equal(t, "Nova [Dia]", body["nick"])
}

func TestAddMemberRoleNoContent(t *testing.T) {
	var method, path string
	client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		method = string(ctx.Method())
		path = string(ctx.Path())
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	})

	require.NoError(t, client.AddMemberRole(context.Background(), "100", "555"))
	assert.Equal(t, fasthttp.MethodPut, method)
	assert.Equal(t, "/api/v10/guilds/guild-1/members/100/roles/555", path)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", fasthttp.StatusUnauthorized, `{"message":"401: Unauthorized","code":0}`, domain.ErrUnauthorized},
		{"missing permissions", fasthttp.StatusForbidden, `{"message":"Missing Permissions","code":50013}`, domain.ErrPermission},
		{"unknown role", fasthttp.StatusNotFound, `{"message":"Unknown Role","code":10011}`, domain.ErrConfiguration},
		{"unknown member", fasthttp.StatusNotFound, `{"message":"Unknown Member","code":10007}`, ErrUnknownMember},
		{"server error", fasthttp.StatusBadGateway, ``, domain.ErrTransientNetwork},
		{"rate limited", fasthttp.StatusTooManyRequests, `{"message":"You are being rate limited.","retry_after":0.25,"global":false}`, domain.ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
				ctx.SetStatusCode(tt.status)
				ctx.SetBodyString(tt.body)
			})

			err := client.RemoveMemberRole(context.Background(), "100", "555")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRateLimitRetryAfter(t *testing.T) {
	t.Run("from body", func(t *testing.T) {
		client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
			ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
			ctx.SetBodyString(`{"retry_after":1.25,"global":true}`)
		})

		_, err := client.GuildRoles(context.Background())

		var rl *domain.RateLimitError
		require.ErrorAs(t, err, &rl)
		assert.Equal(t, 1250*time.Millisecond, rl.RetryAfter)
		assert.True(t, rl.Global)
	})

	t.Run("from header", func(t *testing.T) {
		client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
			ctx.Response.Header.Set("Retry-After", "2")
			ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
		})

		_, err := client.GuildRoles(context.Background())

		var rl *domain.RateLimitError
		require.ErrorAs(t, err, &rl)
		assert.Equal(t, 2*time.Second, rl.RetryAfter)
	})
}

func TestCurrentUser(t *testing.T) {
	client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"id":"42","username":"rolesync","bot":true}`)
	})

	user, err := client.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", user.ID)
	assert.True(t, user.Bot)
}
