package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/guildops/tierkeeper/pkg/domain/interfaces"
	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
	"github.com/guildops/tierkeeper/pkg/utils/safe"
)

// DefaultTimeout bounds one membership lookup
const DefaultTimeout = 15 * time.Second

// client fetches membership profiles from the verification API
type client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ interfaces.Verifier = &client{}

// Option is a functional option for client configuration
type Option func(*client)

// WithHTTPClient overrides the HTTP client, used in tests
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithToken sets the bearer token for the verification API
func WithToken(token string) Option {
	return func(c *client) {
		c.token = token
	}
}

// New creates a verifier backed by the membership verification API
func New(baseURL string, opts ...Option) (interfaces.Verifier, error) {
	if baseURL == "" {
		return nil, goerr.New("verification API base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, goerr.Wrap(err, "invalid verification API base URL", goerr.V("baseURL", baseURL))
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

// profileResponse is the wire format of one membership lookup
type profileResponse struct {
	Handle        string   `json:"handle"`
	Moniker       string   `json:"moniker"`
	MainOrgs      []string `json:"main_orgs"`
	AffiliateOrgs []string `json:"affiliate_orgs"`
}

// Fetch retrieves the organization profile for the handle. Missing members
// are tagged types.TagNotFound, permission failures types.TagForbidden, and
// server or network failures types.TagTransient.
func (c *client) Fetch(ctx context.Context, handle types.Handle) (*model.OrgProfile, error) {
	endpoint := fmt.Sprintf("%s/v1/members/%s", c.baseURL, url.PathEscape(handle.String()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build request", goerr.V("handle", handle))
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "verification API request failed",
			goerr.V("handle", handle), goerr.T(types.TagTransient))
	}
	defer safe.Close(ctx, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		// fallthrough to decode

	case resp.StatusCode == http.StatusNotFound:
		return nil, goerr.New("member not found",
			goerr.V("handle", handle), goerr.T(types.TagNotFound))

	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return nil, goerr.New("verification API denied access",
			goerr.V("handle", handle), goerr.V("status", resp.StatusCode), goerr.T(types.TagForbidden))

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, goerr.New("verification API unavailable",
			goerr.V("handle", handle), goerr.V("status", resp.StatusCode), goerr.T(types.TagTransient))

	default:
		return nil, goerr.New("unexpected verification API response",
			goerr.V("handle", handle), goerr.V("status", resp.StatusCode))
	}

	var body profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, goerr.Wrap(err, "failed to decode profile response", goerr.V("handle", handle))
	}

	return &model.OrgProfile{
		Handle:        types.Handle(body.Handle),
		Moniker:       body.Moniker,
		MainOrgs:      body.MainOrgs,
		AffiliateOrgs: body.AffiliateOrgs,
	}, nil
}
