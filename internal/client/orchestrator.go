// Package client drives the browser side of a paid audit against a running
// server: after Flow sends the buyer back it checks the payment and, once
// paid, collects the report.
package client

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

	"github.com/nexusai/auditoria/internal/model"
)

// State is where a returning buyer ends up.
type State string

const (
	StatePending   State = "pending"
	StateCancelled State = "cancelled"
	StateDelivered State = "delivered"
	StateError     State = "error"
)

// Outcome is the result of resolving one return token.
type Outcome struct {
	State   State
	Status  model.PaymentStatus
	Report  *model.Report
	Message string
	// ReportURL is set when the server archived the report.
	ReportURL string
}

// Orchestrator talks to the auditing server over HTTP.
type Orchestrator struct {
	baseURL    string
	httpClient *http.Client
}

// New returns an orchestrator for the server at baseURL.
func New(baseURL string, httpClient *http.Client) *Orchestrator {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 3 * time.Minute}
	}
	return &Orchestrator{baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: httpClient}
}

// StatusReply is the server's relay of the provider status answer.
type StatusReply struct {
	Status        model.PaymentStatus `json:"status"`
	CommerceOrder string              `json:"commerceOrder"`
	Error         string              `json:"error"`
	Message       string              `json:"message"`
}

type deliveryBody struct {
	Success   bool          `json:"success"`
	Analysis  *model.Report `json:"analysis"`
	ReportURL string        `json:"reportUrl"`
	Error     string        `json:"error"`
}

// Resolve maps a return token to its final state. Transport failures are
// returned as errors; server side refusals become StateError outcomes.
func (o *Orchestrator) Resolve(ctx context.Context, token string) (Outcome, error) {
	if token == "" {
		return Outcome{State: StateCancelled, Message: "no token"}, nil
	}
	status, err := o.Status(ctx, token)
	if err != nil {
		return Outcome{}, err
	}
	if status.Error != "" || status.Message != "" {
		msg := status.Error
		if msg == "" {
			msg = status.Message
		}
		return Outcome{State: StateError, Message: msg}, nil
	}
	switch status.Status {
	case model.StatusPaid:
		return o.deliver(ctx, token)
	case model.StatusRejected, model.StatusVoided:
		return Outcome{State: StateCancelled, Status: status.Status, Message: status.Status.Label()}, nil
	case model.StatusPending:
		return Outcome{State: StatePending, Status: status.Status, Message: status.Status.Label()}, nil
	default:
		return Outcome{State: StateError, Status: status.Status, Message: status.Status.Label()}, nil
	}
}

// Status asks the server for the provider status of token.
func (o *Orchestrator) Status(ctx context.Context, token string) (*StatusReply, error) {
	endpoint := o.baseURL + "/api/flow/status?token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	var out StatusReply
	if err := o.doJSON(req, &out); err != nil {
		return nil, fmt.Errorf("query status: %w", err)
	}
	return &out, nil
}

func (o *Orchestrator) deliver(ctx context.Context, token string) (Outcome, error) {
	payload, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return Outcome{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/flow/verify-result", bytes.NewReader(payload))
	if err != nil {
		return Outcome{}, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	var out deliveryBody
	if err := o.doJSON(req, &out); err != nil {
		return Outcome{}, fmt.Errorf("verify result: %w", err)
	}
	if !out.Success || out.Analysis == nil {
		msg := out.Error
		if msg == "" {
			msg = "respuesta sin análisis"
		}
		return Outcome{State: StateError, Status: model.StatusPaid, Message: msg}, nil
	}
	return Outcome{
		State:     StateDelivered,
		Status:    model.StatusPaid,
		Report:    out.Analysis,
		ReportURL: out.ReportURL,
	}, nil
}

// doJSON decodes any JSON body regardless of status code, since the server
// explains failures in the body.
func (o *Orchestrator) doJSON(req *http.Request, dst any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("unexpected %d response: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
