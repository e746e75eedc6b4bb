package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusai/auditoria/internal/flow"
	"github.com/nexusai/auditoria/internal/model"
)

func seedDocument(t *testing.T, h *harness, orderID string) {
	t.Helper()
	require.NoError(t, h.cache.Put(context.Background(), orderID, &model.PendingDocument{
		OrderID:    orderID,
		Base64Data: contractText,
		MimeType:   "text/plain",
		FileName:   "contrato.txt",
		CreatedAt:  time.Now(),
	}))
}

func paidStatus(orderID string) *flow.StatusResponse {
	return &flow.StatusResponse{CommerceOrder: orderID, Status: model.StatusPaid}
}

func TestVerifyResultRequiresToken(t *testing.T) {
	h := newHarness(t, nil)
	for _, body := range []string{`{}`, `{"token":""}`, `not json`} {
		rec := h.do(http.MethodPost, "/api/flow/verify-result", "application/json", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgTokenMissing, decodeBody(t, rec)["error"])
	}
	assert.Zero(t, h.provider.statusCalls)
}

func TestVerifyResultMissingKeys(t *testing.T) {
	h := newHarness(t, func(h *harness, _ *Deps) { h.cfg.Flow.APIKey = "" })
	rec := h.postJSON("/api/flow/verify-result", map[string]string{"token": "T"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgMissingFlowKeys, decodeBody(t, rec)["error"])
	assert.Zero(t, h.provider.statusCalls)
}

func TestVerifyResultNotPaid(t *testing.T) {
	tests := []struct {
		status model.PaymentStatus
		label  string
	}{
		{model.StatusPending, "Pendiente"},
		{model.StatusRejected, "Rechazado"},
		{model.StatusVoided, "Anulado"},
		{model.PaymentStatus(7), "Desconocido"},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			h := newHarness(t, nil)
			seedDocument(t, h, "audit_1")
			h.provider.status = &flow.StatusResponse{CommerceOrder: "audit_1", Status: tt.status}

			rec := h.postJSON("/api/flow/verify-result", map[string]string{"token": "T"})
			assert.Equal(t, http.StatusOK, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, "El pago no fue completado. Estado: "+tt.label, body["error"])
			assert.Equal(t, 1, h.cache.Len(), "document must stay cached")
			assert.Zero(t, h.analyzer.calls)
		})
	}
}

func TestVerifyResultNotPaidUnexpectedStatus(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"word", `{"commerceOrder":"audit_1","status":"x"}`},
		{"voided word", `{"commerceOrder":"audit_1","status":"anulado"}`},
		{"fraction", `{"commerceOrder":"audit_1","status":1.5}`},
		{"null", `{"commerceOrder":"audit_1","status":null}`},
		{"string flow order", `{"flowOrder":"123","commerceOrder":"audit_1","status":"x","amount":"n/a"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer upstream.Close()

			h := newHarness(t, func(h *harness, d *Deps) {
				h.cfg.Flow.Endpoint = upstream.URL
				d.Flow = flow.New(h.cfg.Flow, upstream.Client())
			})
			seedDocument(t, h, "audit_1")

			rec := h.postJSON("/api/flow/verify-result", map[string]string{"token": "T"})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, "El pago no fue completado. Estado: Desconocido", body["error"])
			assert.Equal(t, 1, h.cache.Len())
			assert.Zero(t, h.analyzer.calls)
		})
	}
}

func TestVerifyResultAcceptsWholeFloatStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"flowOrder":"7","commerceOrder":"audit_1","status":2.0}`))
	}))
	defer upstream.Close()

	h := newHarness(t, func(h *harness, d *Deps) {
		h.cfg.Flow.Endpoint = upstream.URL
		d.Flow = flow.New(h.cfg.Flow, upstream.Client())
	})
	seedDocument(t, h, "audit_1")

	rec := h.postJSON("/api/flow/verify-result", map[string]string{"token": "T"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody(t, rec)["success"])
	assert.Zero(t, h.cache.Len())
}

func TestVerifyResultDeliversOnce(t *testing.T) {
	h := newHarness(t, withExtras)
	seedDocument(t, h, "audit_1")
	h.provider.status = paidStatus("audit_1")

	rec := h.postJSON("/api/flow/verify-result", map[string]string{"token": "T"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	analysis, ok := body["analysis"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", analysis["resumen"])
	assert.Equal(t, "https://files.test/reports/audit_1.json?ttl=1h0m0s", body["reportUrl"])

	assert.Equal(t, []bool{true}, h.analyzer.premium)
	assert.Zero(t, h.cache.Len())
	assert.Equal(t, []string{"audit_1"}, h.sessions.delivered)
	assert.Contains(t, h.archive.stored, "reports/audit_1.json")

	again := h.postJSON("/api/flow/verify-result", map[string]string{"token": "T"})
	assert.Equal(t, http.StatusNotFound, again.Code)
	assert.Equal(t, msgDocumentNotFound, decodeBody(t, again)["error"])
	assert.Equal(t, 1, h.analyzer.calls)
}

func TestVerifyResultDocumentMissing(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.status = paidStatus("audit_gone")

	rec := h.postJSON("/api/flow/verify-result", map[string]string{"token": "T"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, msgDocumentNotFound, body["error"])
	assert.Zero(t, h.analyzer.calls)
}

func TestVerifyResultProviderFailure(t *testing.T) {
	h := newHarness(t, nil)
	seedDocument(t, h, "audit_1")
	h.provider.statusErr = &flow.APIError{StatusCode: 503, Body: []byte("Service Unavailable")}

	rec := h.postJSON("/api/flow/verify-result", map[string]string{"token": "T"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.True(t, strings.HasPrefix(body["error"].(string), msgDeliveryFailed))
	assert.Equal(t, 1, h.cache.Len())
}

func TestVerifyResultAnalysisFailureRestoresDocument(t *testing.T) {
	h := newHarness(t, withExtras)
	seedDocument(t, h, "audit_1")
	h.provider.status = paidStatus("audit_1")
	h.analyzer.err = errors.New("quota exceeded")

	rec := h.postJSON("/api/flow/verify-result", map[string]string{"token": "T"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgDeliveryFailed+"quota exceeded", decodeBody(t, rec)["error"])
	assert.Equal(t, 1, h.cache.Len())
	assert.Empty(t, h.sessions.delivered)

	h.analyzer.err = nil
	retry := h.postJSON("/api/flow/verify-result", map[string]string{"token": "T"})
	assert.Equal(t, http.StatusOK, retry.Code)
	assert.Zero(t, h.cache.Len())
}

func TestVerifyResultArchiveFailureStillDelivers(t *testing.T) {
	h := newHarness(t, withExtras)
	h.archive.err = errors.New("bucket missing")
	seedDocument(t, h, "audit_1")
	h.provider.status = paidStatus("audit_1")

	rec := h.postJSON("/api/flow/verify-result", map[string]string{"token": "T"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.NotContains(t, body, "reportUrl")
}

func TestVerifyResultConcurrentCallsDeliverOnce(t *testing.T) {
	h := newHarness(t, nil)
	seedDocument(t, h, "audit_1")
	h.provider.status = paidStatus("audit_1")

	const callers = 8
	codes := make([]int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = h.postJSON("/api/flow/verify-result", map[string]string{"token": "T"}).Code
		}(i)
	}
	wg.Wait()

	var ok, missing int
	for _, code := range codes {
		switch code {
		case http.StatusOK:
			ok++
		case http.StatusNotFound:
			missing++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, missing)
	assert.Equal(t, 1, h.analyzer.calls)
}

func TestPreview(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.postJSON("/api/audit/preview", map[string]string{"base64Data": contractText, "mimeType": "text/plain"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])
	assert.Equal(t, []bool{false}, h.analyzer.premium)
	assert.Zero(t, h.cache.Len())

	rec = h.postJSON("/api/audit/preview", map[string]string{"base64Data": contractText, "mimeType": "video/mp4"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.analyzer.err = errors.New("boom")
	rec = h.postJSON("/api/audit/preview", map[string]string{"base64Data": contractText, "mimeType": "text/plain"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgPreviewFailed+"boom", decodeBody(t, rec)["error"])
}
