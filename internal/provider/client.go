package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mailpilot/config"
	"mailpilot/pkg/metrics"
)

// Mail is the provider operations the sync engine depends on. Handlers and
// the syncer take this interface so tests can script responses.
type Mail interface {
	GetProfile(ctx context.Context) (*Profile, error)
	StartSync(ctx context.Context, daysWithin int) (*SyncResponse, error)
	GetUpdatedEmails(ctx context.Context, deltaToken, pageToken string) (*SyncUpdatedResponse, error)
	CreateSubscription(ctx context.Context, resource, notificationURL string) (*Subscription, error)
	ListSubscriptions(ctx context.Context) (*SubscriptionList, error)
	DeleteSubscription(ctx context.Context, subscriptionID int64) error
	SendEmail(ctx context.Context, req *SendRequest) (*SendResponse, error)
}

// Factory builds per-token clients against one provider deployment.
type Factory struct {
	cfg        config.ProviderConfig
	httpClient *http.Client
}

func NewFactory(cfg config.ProviderConfig) *Factory {
	return &Factory{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ForToken returns a client bound to one account's access token.
func (f *Factory) ForToken(token string) Mail {
	return &Client{
		baseURL:    f.cfg.BaseURL,
		token:      token,
		httpClient: f.httpClient,
	}
}

// ExchangeCode trades an OAuth authorization code for an access token,
// authenticated with the application's client credentials.
func (f *Factory) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	u := fmt.Sprintf("%s/auth/token/%s", f.cfg.BaseURL, url.PathEscape(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(f.cfg.ClientID, f.cfg.ClientSecret)

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		metrics.RecordProviderCall("exchange_code", "error", time.Since(start))
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	defer resp.Body.Close()
	metrics.RecordProviderCall("exchange_code", strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError("exchange_code", resp)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, err
	}
	return &token, nil
}

// Client issues authenticated calls for a single account.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	var profile Profile
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// StartSync asks the provider to build a sync snapshot covering the past
// daysWithin days. Not ready means poll again.
func (c *Client) StartSync(ctx context.Context, daysWithin int) (*SyncResponse, error) {
	params := url.Values{}
	params.Set("daysWithin", strconv.Itoa(daysWithin))
	params.Set("bodyType", "html")
	params.Set("includeHistory", "true")

	var sr SyncResponse
	if err := c.do(ctx, http.MethodPost, "/email/sync", params, struct{}{}, &sr); err != nil {
		return nil, err
	}
	return &sr, nil
}

// GetUpdatedEmails pulls one page of the change stream. Exactly one of
// deltaToken/pageToken must be set: deltaToken starts a pull from a cursor,
// pageToken continues one already in progress.
func (c *Client) GetUpdatedEmails(ctx context.Context, deltaToken, pageToken string) (*SyncUpdatedResponse, error) {
	params := url.Values{}
	if deltaToken != "" {
		params.Set("deltaToken", deltaToken)
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var page SyncUpdatedResponse
	if err := c.do(ctx, http.MethodGet, "/email/sync/updated", params, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) CreateSubscription(ctx context.Context, resource, notificationURL string) (*Subscription, error) {
	body := map[string]string{
		"resource":        resource,
		"notificationUrl": notificationURL,
	}
	var sub Subscription
	if err := c.do(ctx, http.MethodPost, "/subscriptions", nil, body, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *Client) ListSubscriptions(ctx context.Context) (*SubscriptionList, error) {
	var list SubscriptionList
	if err := c.do(ctx, http.MethodGet, "/subscriptions", nil, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) DeleteSubscription(ctx context.Context, subscriptionID int64) error {
	path := fmt.Sprintf("/subscriptions/%d", subscriptionID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) SendEmail(ctx context.Context, sendReq *SendRequest) (*SendResponse, error) {
	params := url.Values{}
	params.Set("returnIds", "true")

	var sent SendResponse
	if err := c.do(ctx, http.MethodPost, "/email/messages", params, sendReq, &sent); err != nil {
		return nil, err
	}
	return &sent, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	op := method + " " + path
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordProviderCall(path, "error", time.Since(start))
		return fmt.Errorf("provider %s: %w", op, err)
	}
	defer resp.Body.Close()
	metrics.RecordProviderCall(path, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIErrorWithRetry(op, resp)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func newAPIError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{Op: op, Status: resp.StatusCode, Body: string(body)}
}

func newAPIErrorWithRetry(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := APIError{Op: op, Status: resp.StatusCode, Body: string(body)}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{APIError: apiErr}
	case http.StatusTooManyRequests:
		return &RateLimitedError{
			APIError:   apiErr,
			RetryAfter: resp.Header.Get("Retry-After"),
		}
	default:
		return &apiErr
	}
}
