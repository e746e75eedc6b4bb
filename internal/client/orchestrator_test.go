package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusai/auditoria/internal/model"
)

type routes struct {
	statusCode int
	statusBody string
	verifyCode int
	verifyBody string
}

type fakeServer struct {
	routes
	mu           sync.Mutex
	verifyCalled int
}

func (f *fakeServer) verifyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifyCalled
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/api/flow/status":
		w.WriteHeader(f.statusCode)
		_, _ = w.Write([]byte(f.statusBody))
	case "/api/flow/verify-result":
		f.mu.Lock()
		f.verifyCalled++
		f.mu.Unlock()
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["token"] != "TOK" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Token no proporcionado"}`))
			return
		}
		w.WriteHeader(f.verifyCode)
		_, _ = w.Write([]byte(f.verifyBody))
	default:
		http.NotFound(w, r)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		srv        routes
		wantState  State
		wantMsg    string
		wantVerify int
	}{
		{
			name:       "paid and delivered",
			srv:        routes{statusCode: 200, statusBody: `{"status":2,"commerceOrder":"audit_1"}`, verifyCode: 200, verifyBody: `{"success":true,"analysis":{"es_valido":true,"resumen":"ok"},"reportUrl":"https://files.test/r.json"}`},
			wantState:  StateDelivered,
			wantVerify: 1,
		},
		{
			name:       "paid but document gone",
			srv:        routes{statusCode: 200, statusBody: `{"status":"2"}`, verifyCode: 404, verifyBody: `{"success":false,"error":"Documento no encontrado."}`},
			wantState:  StateError,
			wantMsg:    "Documento no encontrado.",
			wantVerify: 1,
		},
		{
			name:      "rejected",
			srv:       routes{statusCode: 200, statusBody: `{"status":3}`},
			wantState: StateCancelled,
			wantMsg:   "Rechazado",
		},
		{
			name:      "voided",
			srv:       routes{statusCode: 200, statusBody: `{"status":4}`},
			wantState: StateCancelled,
			wantMsg:   "Anulado",
		},
		{
			name:      "pending",
			srv:       routes{statusCode: 200, statusBody: `{"status":1}`},
			wantState: StatePending,
			wantMsg:   "Pendiente",
		},
		{
			name:      "unknown status",
			srv:       routes{statusCode: 200, statusBody: `{"status":9}`},
			wantState: StateError,
			wantMsg:   "Desconocido",
		},
		{
			name:      "provider error relayed",
			srv:       routes{statusCode: 401, statusBody: `{"code":105,"message":"Invalid token"}`},
			wantState: StateError,
			wantMsg:   "Invalid token",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &fakeServer{routes: tt.srv}
			ts := httptest.NewServer(srv)
			defer ts.Close()

			out, err := New(ts.URL+"/", ts.Client()).Resolve(context.Background(), "TOK")
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, out.State)
			assert.Equal(t, tt.wantMsg, out.Message)
			assert.Equal(t, tt.wantVerify, srv.verifyCalls())
			if tt.wantState == StateDelivered {
				require.NotNil(t, out.Report)
				assert.Equal(t, "ok", out.Report.Summary)
				assert.Equal(t, "https://files.test/r.json", out.ReportURL)
				assert.Equal(t, model.StatusPaid, out.Status)
			}
		})
	}
}

func TestResolveWithoutToken(t *testing.T) {
	out, err := New("http://127.0.0.1:1", nil).Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, out.State)
}

func TestResolveTransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := New(url, nil).Resolve(context.Background(), "TOK")
	assert.Error(t, err)
}

func TestResolveNonJSONResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer ts.Close()

	_, err := New(ts.URL, ts.Client()).Resolve(context.Background(), "TOK")
	assert.ErrorContains(t, err, "unexpected 502 response")
}
