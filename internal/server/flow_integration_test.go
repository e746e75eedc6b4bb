package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusai/auditoria/internal/flow"
	"github.com/nexusai/auditoria/internal/signing"
)

// flowStub imitates the sandbox: it checks every signature and remembers the
// checkout it created.
type flowStub struct {
	signer *signing.Signer
	mu     sync.Mutex
	order  string
	paid   bool
}

func (f *flowStub) verify(values url.Values) bool {
	params := map[string]string{}
	for k := range values {
		if k != "s" {
			params[k] = values.Get(k)
		}
	}
	return f.signer.Validate(params, values.Get("s"))
}

func (f *flowStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.URL.Path {
	case "/api/payment/create":
		if err := r.ParseForm(); err != nil || !f.verify(r.PostForm) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":105,"message":"Invalid signature"}`))
			return
		}
		f.order = r.PostForm.Get("commerceOrder")
		_ = json.NewEncoder(w).Encode(map[string]any{"url": "https://sandbox.flow.test/pay", "token": "TOKEN1", "flowOrder": 7})
	case "/api/payment/getStatus":
		q := r.URL.Query()
		if !f.verify(q) || q.Get("token") != "TOKEN1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":105,"message":"Invalid token"}`))
			return
		}
		status := 1
		if f.paid {
			status = 2
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"flowOrder": 7, "commerceOrder": f.order, "status": status})
	default:
		http.NotFound(w, r)
	}
}

func TestPaymentLifecycleAgainstFlowStub(t *testing.T) {
	stub := &flowStub{signer: signing.NewSigner([]byte("secret"))}
	upstream := httptest.NewServer(stub)
	defer upstream.Close()

	h := newHarness(t, func(h *harness, d *Deps) {
		h.cfg.Flow.Endpoint = upstream.URL
		d.Flow = flow.New(h.cfg.Flow, upstream.Client())
	})

	rec := h.postJSON("/api/flow/create-payment", uploadBody("buyer@example.cl"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "https://sandbox.flow.test/pay?token=TOKEN1", decodeBody(t, rec)["flowUrl"])
	assert.Equal(t, 1, h.cache.Len())

	rec = h.do(http.MethodGet, "/api/flow/status?token=TOKEN1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["status"])

	rec = h.postJSON("/api/flow/verify-result", map[string]string{"token": "TOKEN1"})
	assert.Equal(t, "El pago no fue completado. Estado: Pendiente", decodeBody(t, rec)["error"])

	stub.mu.Lock()
	stub.paid = true
	stub.mu.Unlock()

	rec = h.postJSON("/api/flow/verify-result", map[string]string{"token": "TOKEN1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody(t, rec)["success"])
	assert.Zero(t, h.cache.Len())

	rec = h.do(http.MethodGet, "/api/flow/status?token=WRONG", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"code":105,"message":"Invalid token"}`, rec.Body.String())
}
