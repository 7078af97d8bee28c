package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"valorant-rolesync/internal/constants"
	"valorant-rolesync/internal/domain"

	"github.com/valyala/fasthttp"
)

const userAgent = "DiscordBot (https://github.com/valorant-rolesync, 1.0)"

// Discord JSON error codes the engine cares about.
const (
	codeUnknownMember = 10007
	codeUnknownRole   = 10011
)

type DiscordClient struct {
	baseURL     string
	token       string
	guildID     string
	client      *fasthttp.Client
	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

type RateLimitInfo struct {
	Bucket    string `json:"bucket"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`

	// seconds until the bucket resets
	ResetAfter float64 `json:"reset_after"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewDiscordClient(baseURL, token, guildID string) *DiscordClient {
	if baseURL == "" {
		baseURL = constants.DiscordAPIBase
	}
	return &DiscordClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		guildID: guildID,
		client: &fasthttp.Client{
			MaxConnsPerHost:     10,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

func (c *DiscordClient) GuildID() string {
	return c.guildID
}

func (c *DiscordClient) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *DiscordClient) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if bucket := string(resp.Header.Peek("X-RateLimit-Bucket")); bucket != "" {
		c.rateLimit.Bucket = bucket
	}
	if limit := string(resp.Header.Peek("X-RateLimit-Limit")); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			c.rateLimit.Limit = val
		}
	}
	if remaining := string(resp.Header.Peek("X-RateLimit-Remaining")); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			c.rateLimit.Remaining = val
		}
	}
	if reset := string(resp.Header.Peek("X-RateLimit-Reset-After")); reset != "" {
		if val, err := strconv.ParseFloat(reset, 64); err == nil {
			c.rateLimit.ResetAfter = val
		}
	}
	c.rateLimit.UpdatedAt = time.Now()
}

func (c *DiscordClient) CurrentUser(ctx context.Context) (*UserResponse, error) {
	return doRequest[UserResponse](ctx, c, fasthttp.MethodGet, "/users/@me", nil)
}

func (c *DiscordClient) GuildRoles(ctx context.Context) ([]RoleResponse, error) {
	path := fmt.Sprintf("/guilds/%s/roles", c.guildID)
	roles, err := doRequest[[]RoleResponse](ctx, c, fasthttp.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return *roles, nil
}

// GuildMembers returns one page of members with ids greater than after.
func (c *DiscordClient) GuildMembers(ctx context.Context, after string, limit int) ([]MemberResponse, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if after != "" {
		query.Set("after", after)
	}
	path := fmt.Sprintf("/guilds/%s/members?%s", c.guildID, query.Encode())

	members, err := doRequest[[]MemberResponse](ctx, c, fasthttp.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return *members, nil
}

func (c *DiscordClient) AddMemberRole(ctx context.Context, userID, roleID string) error {
	path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s", c.guildID, userID, roleID)
	_, err := doRequest[struct{}](ctx, c, fasthttp.MethodPut, path, nil)
	return err
}

func (c *DiscordClient) RemoveMemberRole(ctx context.Context, userID, roleID string) error {
	path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s", c.guildID, userID, roleID)
	_, err := doRequest[struct{}](ctx, c, fasthttp.MethodDelete, path, nil)
	return err
}

func (c *DiscordClient) ModifyMemberNick(ctx context.Context, userID, nick string) error {
	path := fmt.Sprintf("/guilds/%s/members/%s", c.guildID, userID)
	_, err := doRequest[MemberResponse](ctx, c, fasthttp.MethodPatch, path, map[string]string{"nick": nick})
	return err
}

func doRequest[T any](ctx context.Context, client *DiscordClient, method, path string, body any) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(client.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", "Bot "+client.token)
	req.Header.SetUserAgent(userAgent)

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(constants.ExternalAPITimeout)
	}
	if err := client.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrTransientNetwork, method, path, err)
	}

	client.updateRateLimit(resp)

	if err := classify(resp, method, path); err != nil {
		return nil, err
	}

	var result T
	if resp.StatusCode() == fasthttp.StatusNoContent || len(resp.Body()) == 0 {
		return &result, nil
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return &result, nil
}

// classify turns a non-2xx response into one of the domain error kinds.
func classify(resp *fasthttp.Response, method, path string) error {
	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		return nil
	}

	var apiErr ErrorResponse
	_ = json.Unmarshal(resp.Body(), &apiErr)

	switch {
	case status == fasthttp.StatusTooManyRequests:
		return rateLimitError(resp, apiErr)
	case status == fasthttp.StatusUnauthorized:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, apiErr.Message)
	case status == fasthttp.StatusForbidden:
		return fmt.Errorf("%w: %s %s: %s", domain.ErrPermission, method, path, apiErr.Message)
	case status == fasthttp.StatusNotFound && apiErr.Code == codeUnknownRole:
		return fmt.Errorf("%w: %s", domain.ErrConfiguration, apiErr.Message)
	case status == fasthttp.StatusNotFound && apiErr.Code == codeUnknownMember:
		return fmt.Errorf("%w: %s", ErrUnknownMember, apiErr.Message)
	case status >= 500:
		return fmt.Errorf("%w: %s %s: status %d", domain.ErrTransientNetwork, method, path, status)
	default:
		return fmt.Errorf("discord API error: %s %s: %d %s", method, path, status, apiErr.Message)
	}
}

// ErrUnknownMember is returned when the member left between listing and mutation.
var ErrUnknownMember = errors.New("unknown member")

func rateLimitError(resp *fasthttp.Response, apiErr ErrorResponse) *domain.RateLimitError {
	retryAfter := apiErr.RetryAfter
	if retryAfter <= 0 {
		if header := string(resp.Header.Peek("Retry-After")); header != "" {
			if val, err := strconv.ParseFloat(header, 64); err == nil {
				retryAfter = val
			}
		}
	}
	return &domain.RateLimitError{
		RetryAfter: time.Duration(retryAfter * float64(time.Second)),
		Global:     apiErr.Global,
	}
}

type ErrorResponse struct {
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}

type UserResponse struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	GlobalName *string `json:"global_name"`
	Bot        bool    `json:"bot"`
}

type RoleResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Managed  bool   `json:"managed"`
}

type MemberResponse struct {
	User     UserResponse `json:"user"`
	Nick     *string      `json:"nick"`
	Roles    []string     `json:"roles"`
	JoinedAt time.Time    `json:"joined_at"`
}

func (m MemberResponse) ToDomain() domain.GuildMember {
	member := domain.GuildMember{
		ID:       m.User.ID,
		Username: m.User.Username,
		RoleIDs:  m.Roles,
		JoinedAt: m.JoinedAt,
		Bot:      m.User.Bot,
	}
	if m.User.GlobalName != nil {
		member.GlobalName = *m.User.GlobalName
	}
	if m.Nick != nil {
		member.Nick = *m.Nick
	}
	return member
}

func (r RoleResponse) ToDomain() domain.Role {
	return domain.Role{ID: r.ID, Name: r.Name}
}
