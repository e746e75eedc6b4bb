// Package flow is a small client for the Flow.cl payment API. Every request
// carries the api key and an HMAC signature computed over all parameters.
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nexusai/auditoria/internal/config"
	"github.com/nexusai/auditoria/internal/model"
	"github.com/nexusai/auditoria/internal/signing"
)

const (
	createPath    = "/api/payment/create"
	getStatusPath = "/api/payment/getStatus"
)

// APIError is a non-2xx answer from Flow. Body is kept verbatim so handlers
// can relay it.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("flow api returned %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// CreateRequest describes one checkout.
type CreateRequest struct {
	CommerceOrder   string
	Subject         string
	Currency        string
	Amount          int64
	Email           string
	URLConfirmation string
	URLReturn       string
}

// CreateResponse is Flow's answer to payment/create.
type CreateResponse struct {
	URL       string `json:"url"`
	Token     string `json:"token"`
	FlowOrder int64  `json:"flowOrder"`
}

// CheckoutURL is where the browser must be sent to pay.
func (r *CreateResponse) CheckoutURL() string {
	return r.URL + "?token=" + url.QueryEscape(r.Token)
}

// StatusResponse is the subset of payment/getStatus the service reads. Other
// fields of the answer are ignored so their shape cannot break a lookup.
type StatusResponse struct {
	CommerceOrder string              `json:"commerceOrder"`
	Status        model.PaymentStatus `json:"status"`
}

// UnmarshalJSON decodes the two fields loosely: commerceOrder may arrive as a
// string or a bare number, and status falls back to StatusUnknown.
func (r *StatusResponse) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*r = StatusResponse{}
	if raw, ok := fields["status"]; ok {
		_ = r.Status.UnmarshalJSON(raw)
	}
	if raw, ok := fields["commerceOrder"]; ok {
		var order string
		if err := json.Unmarshal(raw, &order); err != nil {
			order = strings.TrimSpace(string(raw))
			if order == "null" {
				order = ""
			}
		}
		r.CommerceOrder = order
	}
	return nil
}

// RawResponse is an unparsed provider answer.
type RawResponse struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r *RawResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client talks to one Flow endpoint with one set of credentials.
type Client struct {
	endpoint   string
	apiKey     string
	signer     *signing.Signer
	httpClient *http.Client
}

// New builds a client. A nil httpClient gets a default with a timeout.
func New(cfg config.FlowConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		signer:     signing.NewSigner([]byte(cfg.SecretKey)),
		httpClient: httpClient,
	}
}

// CreateParams returns the signed parameter set for req, signature under "s".
func (c *Client) CreateParams(req CreateRequest) url.Values {
	params := map[string]string{
		"apiKey":          c.apiKey,
		"commerceOrder":   req.CommerceOrder,
		"subject":         req.Subject,
		"currency":        req.Currency,
		"amount":          strconv.FormatInt(req.Amount, 10),
		"email":           req.Email,
		"urlConfirmation": req.URLConfirmation,
		"urlReturn":       req.URLReturn,
	}
	return c.signed(params)
}

// CreatePayment registers a checkout at Flow.
func (c *Client) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	form := c.CreateParams(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+createPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	raw, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	if !raw.OK() {
		return nil, &APIError{StatusCode: raw.StatusCode, Body: raw.Body}
	}
	var out CreateResponse
	if err := json.Unmarshal(raw.Body, &out); err != nil {
		return nil, fmt.Errorf("parse create response: %w", err)
	}
	if out.URL == "" || out.Token == "" {
		return nil, fmt.Errorf("create response missing url or token: %s", raw.Body)
	}
	return &out, nil
}

// StatusRaw performs payment/getStatus and returns the answer untouched.
func (c *Client) StatusRaw(ctx context.Context, token string) (*RawResponse, error) {
	query := c.signed(map[string]string{
		"apiKey": c.apiKey,
		"token":  token,
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+getStatusPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	return c.do(httpReq)
}

// GetStatus performs payment/getStatus and decodes the answer.
func (c *Client) GetStatus(ctx context.Context, token string) (*StatusResponse, error) {
	raw, err := c.StatusRaw(ctx, token)
	if err != nil {
		return nil, err
	}
	if !raw.OK() {
		return nil, &APIError{StatusCode: raw.StatusCode, Body: raw.Body}
	}
	var out StatusResponse
	if err := json.Unmarshal(raw.Body, &out); err != nil {
		return nil, fmt.Errorf("parse status response: %w", err)
	}
	return &out, nil
}

func (c *Client) signed(params map[string]string) url.Values {
	values := make(url.Values, len(params)+1)
	for k, v := range params {
		values.Set(k, v)
	}
	values.Set("s", c.signer.Sign(params))
	return values
}

func (c *Client) do(req *http.Request) (*RawResponse, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("flow request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read flow response: %w", err)
	}
	return &RawResponse{StatusCode: resp.StatusCode, Body: body}, nil
}
