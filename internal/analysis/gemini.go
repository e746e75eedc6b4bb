// Package analysis calls the Gemini generateContent API to audit a contract
// and decodes the structured report it returns.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/nexusai/auditoria/internal/config"
	"github.com/nexusai/auditoria/internal/model"
)

var (
	// ErrNotConfigured is returned when no API key is available.
	ErrNotConfigured = errors.New("analysis service not configured")
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("analysis service returned no content")
)

// APIError is a non-2xx answer from the Gemini API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini api error %d %s: %s", e.StatusCode, e.Status, e.Message)
}

// Client is a Gemini REST client bound to one model.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

// New builds a client. A nil httpClient gets a default with a generous
// timeout since exhaustive audits are slow.
func New(cfg config.GeminiConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	ResponseSchema   *schema `json:"responseSchema"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// buildRequestBody assembles the generateContent payload. base64Data is
// passed through untouched.
func buildRequestBody(base64Data, mimeType string, premium bool) ([]byte, error) {
	req := generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: systemPrompt}}},
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &inlineData{MimeType: mimeType, Data: base64Data}},
				{Text: userPrompt(premium)},
			},
		}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   reportSchema(),
		},
	}
	return json.Marshal(req)
}

// Analyze audits a document. premium selects the exhaustive prompt used for
// paid deliveries.
func (c *Client) Analyze(ctx context.Context, base64Data, mimeType string, premium bool) (*model.Report, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}
	body, err := buildRequestBody(base64Data, mimeType, premium)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return parseResponse(resp.StatusCode, raw)
}

func parseResponse(statusCode int, raw []byte) (*model.Report, error) {
	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		if statusCode >= 300 {
			return nil, &APIError{StatusCode: statusCode, Message: strings.TrimSpace(string(raw))}
		}
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if statusCode >= 300 || resp.Error != nil {
		apiErr := &APIError{StatusCode: statusCode}
		if resp.Error != nil {
			apiErr.Message = resp.Error.Message
			apiErr.Status = resp.Error.Status
		}
		return nil, apiErr
	}

	var text strings.Builder
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			text.WriteString(p.Text)
		}
		if text.Len() > 0 {
			break
		}
	}
	payload := extractJSON(text.String())
	if payload == "" {
		return nil, ErrEmptyResponse
	}
	var report model.Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if c := report.RiskCount; c.Low+c.Medium+c.High+c.Critical == 0 && len(report.Risks) > 0 {
		// The model listed risks but left the tally empty.
		report.Recount()
	}
	return &report, nil
}

// fencePattern matches JSON wrapped in a markdown code block.
var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

// extractJSON returns the JSON object in s, tolerating markdown fences.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
