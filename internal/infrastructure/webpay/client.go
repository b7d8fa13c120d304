package webpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	IntegrationHost = "https://webpay3gint.transbank.cl"
	ProductionHost  = "https://webpay3g.transbank.cl"

	transactionsPath = "/rswebpaytransaction/api/webpay/v1.2/transactions"
)

// Client talks to the Webpay Plus REST API.
type Client struct {
	baseURL      string
	commerceCode string
	apiKey       string
	httpClient   *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

func NewClient(commerceCode, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:      IntegrationHost,
		commerceCode: commerceCode,
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type createRequest struct {
	BuyOrder  string      `json:"buy_order"`
	SessionID string      `json:"session_id"`
	Amount    json.Number `json:"amount"`
	ReturnURL string      `json:"return_url"`
}

// APIError is a non-2xx answer from Transbank.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("webpay: http %d: %s", e.StatusCode, e.Message)
}

func (c *Client) CreateTransaction(ctx context.Context, buyOrder, sessionID string, amount decimal.Decimal, returnURL string) (*CreateResponse, error) {
	body, err := json.Marshal(createRequest{
		BuyOrder:  buyOrder,
		SessionID: sessionID,
		Amount:    json.Number(amount.String()),
		ReturnURL: returnURL,
	})
	if err != nil {
		return nil, err
	}

	var out CreateResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+transactionsPath, body, &out); err != nil {
		return nil, err
	}
	if out.Token == "" || out.URL == "" {
		return nil, fmt.Errorf("webpay: create returned no token or url")
	}
	return &out, nil
}

func (c *Client) ConfirmTransaction(ctx context.Context, token string) (RawCommit, error) {
	if token == "" {
		return nil, fmt.Errorf("webpay: empty token")
	}
	var out RawCommit
	endpoint := c.baseURL + transactionsPath + "/" + url.PathEscape(token)
	if err := c.do(ctx, http.MethodPut, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Tbk-Api-Key-Id", c.commerceCode)
	req.Header.Set("Tbk-Api-Key-Secret", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(payload))}
		var body struct {
			ErrorMessage string `json:"error_message"`
		}
		if json.Unmarshal(payload, &body) == nil && body.ErrorMessage != "" {
			apiErr.Message = body.ErrorMessage
		}
		return apiErr
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("webpay: decode response: %w", err)
	}
	return nil
}
