package looker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sabio/grafana-explore-assistant/pkg/catalog"
)

const apiPrefix = "/api/4.0"

// Config holds the host API connection settings
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Client talks to the host query and metadata API
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *resty.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// TokenResponse represents the login response
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// NewClient creates a new host API client. No request is made until the first call.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	httpClient := resty.New()
	httpClient.SetTimeout(timeout)

	return &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   httpClient,
	}
}

// urlJoin joins the base URL, API prefix and path
func (c *Client) urlJoin(path string) string {
	return c.baseURL + apiPrefix + "/" + strings.TrimPrefix(path, "/")
}

// Login obtains an access token using client credentials
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.login(ctx)
}

// login must be called with c.mu held
func (c *Client) login(ctx context.Context) error {
	var tokenResp TokenResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(map[string]string{
			"client_id":     c.clientID,
			"client_secret": c.clientSecret,
		}).
		SetResult(&tokenResp).
		Post(c.urlJoin("/login"))

	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("login returned status %d: %s", resp.StatusCode(), resp.String())
	}

	if tokenResp.AccessToken == "" {
		return fmt.Errorf("login returned no access token")
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)

	return nil
}

// request returns an authenticated request, logging in again when the token expired
func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken == "" || time.Now().After(c.tokenExpiry) {
		if err := c.login(ctx); err != nil {
			return nil, err
		}
	}

	return c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", "token "+c.accessToken).
		SetHeader("Content-Type", "application/json"), nil
}

// Health checks that the host API is reachable
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(c.urlJoin("/versions"))

	if err != nil {
		return fmt.Errorf("failed to reach host API: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("host API health check failed with status: %d", resp.StatusCode())
	}

	return nil
}

// CreateSQLQuery registers a SQL statement against a connection and returns its slug
func (c *Client) CreateSQLQuery(ctx context.Context, connection, sql string) (string, error) {
	req, err := c.request(ctx)
	if err != nil {
		return "", err
	}

	var result struct {
		Slug string `json:"slug"`
	}

	resp, err := req.
		SetBody(map[string]string{
			"connection_name": connection,
			"sql":             sql,
		}).
		SetResult(&result).
		Post(c.urlJoin("/sql_queries"))

	if err != nil {
		return "", fmt.Errorf("failed to create SQL query: %w", err)
	}

	if err := checkStatus(resp); err != nil {
		return "", fmt.Errorf("failed to create SQL query: %w", err)
	}

	return result.Slug, nil
}

// RunSQLQuery runs a previously created SQL query and returns its rows
func (c *Client) RunSQLQuery(ctx context.Context, slug, format string) ([]map[string]interface{}, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := req.Post(c.urlJoin(fmt.Sprintf("/sql_queries/%s/run/%s", url.PathEscape(slug), format)))
	if err != nil {
		return nil, fmt.Errorf("failed to run SQL query %s: %w", slug, err)
	}

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("failed to run SQL query %s: %w", slug, err)
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return nil, fmt.Errorf("failed to parse SQL query result: %w", err)
	}

	return rows, nil
}

// CreateQuery registers an explore query and returns its id
func (c *Client) CreateQuery(ctx context.Context, q WriteQuery) (string, error) {
	req, err := c.request(ctx)
	if err != nil {
		return "", err
	}

	var result struct {
		ID string `json:"id"`
	}

	resp, err := req.
		SetBody(q).
		SetResult(&result).
		Post(c.urlJoin("/queries"))

	if err != nil {
		return "", fmt.Errorf("failed to create query: %w", err)
	}

	if err := checkStatus(resp); err != nil {
		return "", fmt.Errorf("failed to create query: %w", err)
	}

	if result.ID == "" {
		return "", fmt.Errorf("create query returned no id")
	}

	return result.ID, nil
}

// RunQuery runs a query by id and returns the raw result in the given format (md, csv, json...)
func (c *Client) RunQuery(ctx context.Context, queryID, format string) (string, error) {
	req, err := c.request(ctx)
	if err != nil {
		return "", err
	}

	resp, err := req.Get(c.urlJoin(fmt.Sprintf("/queries/%s/run/%s", url.PathEscape(queryID), format)))
	if err != nil {
		return "", fmt.Errorf("failed to run query %s: %w", queryID, err)
	}

	if err := checkStatus(resp); err != nil {
		return "", fmt.Errorf("failed to run query %s: %w", queryID, err)
	}

	return resp.String(), nil
}

// Explore fetches the dimension and measure catalog of an explore
func (c *Client) Explore(ctx context.Context, model, explore string) (*catalog.Catalog, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var result exploreResponse

	resp, err := req.
		SetQueryParam("fields", "fields").
		SetResult(&result).
		Get(c.urlJoin(fmt.Sprintf("/lookml_models/%s/explores/%s", url.PathEscape(model), url.PathEscape(explore))))

	if err != nil {
		return nil, fmt.Errorf("failed to fetch explore %s:%s: %w", model, explore, err)
	}

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("failed to fetch explore %s:%s: %w", model, explore, err)
	}

	return &catalog.Catalog{
		Dimensions: convertFields(result.Fields.Dimensions),
		Measures:   convertFields(result.Fields.Measures),
	}, nil
}

func checkStatus(resp *resty.Response) error {
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

func convertFields(in []exploreField) []catalog.Field {
	out := make([]catalog.Field, 0, len(in))
	for _, f := range in {
		if f.Hidden {
			continue
		}
		out = append(out, catalog.Field{
			Name:        f.Name,
			Label:       f.Label,
			Type:        f.Type,
			Description: f.Description,
			Tags:        f.Tags,
		})
	}
	return out
}
