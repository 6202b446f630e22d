package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/guildops/tierkeeper/pkg/domain/interfaces"
	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
	"github.com/guildops/tierkeeper/pkg/utils/safe"
)

// DefaultTimeout bounds one platform API call
const DefaultTimeout = 15 * time.Second

// client talks to the community platform's guild REST API. All write
// endpoints are idempotent upstream: granting a held role or setting an
// identical nickname succeeds without effect.
type client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ interfaces.GuildClient = &client{}

// Option is a functional option for client configuration
type Option func(*client)

// WithHTTPClient overrides the HTTP client, used in tests
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithToken sets the bot token for the platform API
func WithToken(token string) Option {
	return func(c *client) {
		c.token = token
	}
}

// New creates a guild client for the platform API
func New(baseURL string, opts ...Option) (interfaces.GuildClient, error) {
	if baseURL == "" {
		return nil, goerr.New("platform API base URL is required")
	}

	c := &client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// MemberGuildIDs resolves the guilds the user belongs to
func (c *client) MemberGuildIDs(ctx context.Context, userID types.UserID) ([]types.GuildID, error) {
	endpoint := fmt.Sprintf("%s/api/users/%s/guilds", c.baseURL, url.PathEscape(userID.String()))

	var body struct {
		GuildIDs []types.GuildID `json:"guild_ids"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &body); err != nil {
		return nil, goerr.Wrap(err, "failed to list member guilds", goerr.V("userID", userID))
	}

	return body.GuildIDs, nil
}

// memberResponse is the wire format of one guild member
type memberResponse struct {
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"display_name"`
	Nickname    string   `json:"nickname"`
	Roles       []string `json:"roles"`
}

// GetMember retrieves the member entry, tagged types.TagNotFound when the
// user is not a member of the guild
func (c *client) GetMember(ctx context.Context, guildID types.GuildID, userID types.UserID) (*model.GuildMember, error) {
	endpoint := c.memberEndpoint(guildID, userID)

	var body memberResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &body); err != nil {
		return nil, goerr.Wrap(err, "failed to get guild member",
			goerr.V("guildID", guildID), goerr.V("userID", userID))
	}

	return &model.GuildMember{
		GuildID:     guildID,
		UserID:      types.UserID(body.UserID),
		DisplayName: body.DisplayName,
		Nickname:    body.Nickname,
		Roles:       body.Roles,
	}, nil
}

// GrantRole adds the role to the member
func (c *client) GrantRole(ctx context.Context, guildID types.GuildID, userID types.UserID, role string) error {
	endpoint := c.memberEndpoint(guildID, userID) + "/roles/" + url.PathEscape(role)
	if err := c.do(ctx, http.MethodPut, endpoint, nil, nil); err != nil {
		return goerr.Wrap(err, "failed to grant role",
			goerr.V("guildID", guildID), goerr.V("userID", userID), goerr.V("role", role))
	}
	return nil
}

// RevokeRole removes the role from the member
func (c *client) RevokeRole(ctx context.Context, guildID types.GuildID, userID types.UserID, role string) error {
	endpoint := c.memberEndpoint(guildID, userID) + "/roles/" + url.PathEscape(role)
	if err := c.do(ctx, http.MethodDelete, endpoint, nil, nil); err != nil {
		return goerr.Wrap(err, "failed to revoke role",
			goerr.V("guildID", guildID), goerr.V("userID", userID), goerr.V("role", role))
	}
	return nil
}

// SetNickname updates the member's guild nickname
func (c *client) SetNickname(ctx context.Context, guildID types.GuildID, userID types.UserID, nickname string) error {
	payload := map[string]string{"nickname": nickname}
	if err := c.do(ctx, http.MethodPatch, c.memberEndpoint(guildID, userID), payload, nil); err != nil {
		return goerr.Wrap(err, "failed to set nickname",
			goerr.V("guildID", guildID), goerr.V("userID", userID))
	}
	return nil
}

func (c *client) memberEndpoint(guildID types.GuildID, userID types.UserID) string {
	return fmt.Sprintf("%s/api/guilds/%s/members/%s",
		c.baseURL, url.PathEscape(guildID.String()), url.PathEscape(userID.String()))
}

// do issues one request and decodes the response into out when non-nil.
// Status codes map onto the shared error tag taxonomy.
func (c *client) do(ctx context.Context, method, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal request body")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return goerr.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bot "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "platform API request failed", goerr.T(types.TagTransient))
	}
	defer safe.Close(ctx, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fallthrough to decode

	case resp.StatusCode == http.StatusNotFound:
		return goerr.New("not found", goerr.T(types.TagNotFound))

	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return goerr.New("platform API denied access",
			goerr.V("status", resp.StatusCode), goerr.T(types.TagForbidden))

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return goerr.New("platform API unavailable",
			goerr.V("status", resp.StatusCode), goerr.T(types.TagTransient))

	default:
		return goerr.New("unexpected platform API response", goerr.V("status", resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return goerr.Wrap(err, "failed to decode response body")
	}

	return nil
}
