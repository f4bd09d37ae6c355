package pluggy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.pluggy.ai"
	defaultTimeout = 20 * time.Second
	maxPages       = 50
	maxBodyBytes   = 16 << 20
)

// ErrNoCredentials is returned by Authenticate when the client id or secret is empty.
var ErrNoCredentials = errors.New("pluggy: client credentials not configured")

// Config holds settings for a Client.
type Config struct {
	BaseURL           string
	ClientID          string
	ClientSecret      string
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client talks to the aggregator REST API. It holds no token; every
// Authenticate call performs a fresh exchange.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	timeout      time.Duration
	http         *http.Client
	limiter      *rate.Limiter
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		baseURL:      baseURL,
		clientID:     strings.TrimSpace(cfg.ClientID),
		clientSecret: strings.TrimSpace(cfg.ClientSecret),
		timeout:      timeout,
		http:         httpClient,
		limiter:      rate.NewLimiter(limit, 1),
	}
}

// Session is an authenticated view of the API for one delivery.
type Session struct {
	client *Client
	apiKey string
}

// Authenticate exchanges the client credentials for a short-lived API key.
func (c *Client) Authenticate(ctx context.Context) (*Session, error) {
	if c.clientID == "" || c.clientSecret == "" {
		return nil, ErrNoCredentials
	}
	var out authResponse
	err := c.do(ctx, http.MethodPost, "/auth", "", authRequest{ClientID: c.clientID, ClientSecret: c.clientSecret}, &out)
	if err != nil {
		return nil, fmt.Errorf("pluggy: authenticate: %w", err)
	}
	if strings.TrimSpace(out.APIKey) == "" {
		return nil, errors.New("pluggy: authenticate: empty api key")
	}
	return &Session{client: c, apiKey: out.APIKey}, nil
}

// Item fetches one item with its connector metadata.
func (s *Session) Item(ctx context.Context, itemID string) (*Item, error) {
	var it Item
	if err := s.client.do(ctx, http.MethodGet, "/items/"+url.PathEscape(itemID), s.apiKey, nil, &it); err != nil {
		return nil, fmt.Errorf("pluggy: get item %s: %w", itemID, err)
	}
	return &it, nil
}

// Transactions lists every transaction for the query, following pagination.
func (s *Session) Transactions(ctx context.Context, q TransactionQuery) (TransactionList, error) {
	var out TransactionList
	params := url.Values{}
	switch {
	case q.AccountID != "":
		params.Set("accountId", q.AccountID)
	case q.ItemID != "":
		params.Set("itemId", q.ItemID)
	default:
		return out, errors.New("pluggy: transactions: account or item id required")
	}

	for page := 1; page <= maxPages; page++ {
		params.Set("page", strconv.Itoa(page))
		var resp transactionPage
		if err := s.client.do(ctx, http.MethodGet, "/transactions?"+params.Encode(), s.apiKey, nil, &resp); err != nil {
			return TransactionList{}, fmt.Errorf("pluggy: list transactions: %w", err)
		}
		for i, raw := range resp.Results {
			var tx Transaction
			if err := json.Unmarshal(raw, &tx); err != nil {
				out.Rejected = append(out.Rejected, RejectedRecord{Page: page, Index: i, ID: recordID(raw), Err: err})
				continue
			}
			tx.Raw = raw
			out.Transactions = append(out.Transactions, tx)
		}
		if resp.TotalPages <= page || len(resp.Results) == 0 {
			break
		}
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path, apiKey string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-KEY", apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func newAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Message: http.StatusText(status)}
	var eb errorBody
	if json.Unmarshal(data, &eb) == nil {
		if eb.Message != "" {
			apiErr.Message = eb.Message
		}
		if eb.Code != nil {
			apiErr.Code = fmt.Sprint(eb.Code)
		}
	}
	return apiErr
}
