package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nexusai/auditoria/internal/config"
	"github.com/nexusai/auditoria/internal/flow"
	"github.com/nexusai/auditoria/internal/logger"
	"github.com/nexusai/auditoria/internal/model"
	"github.com/nexusai/auditoria/internal/queue"
)

const maxWebhookBytes = 64 << 10

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.cfg.FlowReady(); err != nil {
		logger.Error(ctx, "create payment refused", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, errorBody{Error: msgMissingFlowConfig})
		return
	}
	var req uploadRequest
	if err := decodeJSON(w, r, s.maxBodyBytes(), &req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := s.normalize(&req); err != nil {
		s.metrics.PaymentsFailed.WithLabelValues("invalid_document").Inc()
		respondJSON(ctx, w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	orderID := newOrderID()
	doc := &model.PendingDocument{
		OrderID:      orderID,
		Base64Data:   req.Base64Data,
		MimeType:     req.MimeType,
		FileName:     req.FileName,
		ContactEmail: req.Email,
		CreatedAt:    time.Now().UTC(),
	}
	// The document must be retrievable before the buyer can possibly pay.
	if err := s.cache.Put(ctx, orderID, doc); err != nil {
		logger.Error(ctx, "cache document", "order_id", orderID, "error", err)
		s.metrics.PaymentsFailed.WithLabelValues("cache").Inc()
		respondJSON(ctx, w, http.StatusInternalServerError, errorBody{Error: msgInternal})
		return
	}

	email := req.Email
	if email == "" {
		email = s.cfg.Checkout.DefaultEmail
	}
	base := strings.TrimSuffix(s.cfg.Flow.BaseURL, "/")
	checkout, err := s.flow.CreatePayment(ctx, flow.CreateRequest{
		CommerceOrder:   orderID,
		Subject:         s.cfg.Checkout.Subject,
		Currency:        s.cfg.Checkout.Currency,
		Amount:          s.cfg.Checkout.Amount,
		Email:           email,
		URLConfirmation: base + "/api/flow/webhook",
		URLReturn:       base + "/api/flow/return",
	})
	if err != nil {
		if delErr := s.cache.Delete(ctx, orderID); delErr != nil {
			logger.Warn(ctx, "discard cached document", "order_id", orderID, "error", delErr)
		}
		var apiErr *flow.APIError
		if errors.As(err, &apiErr) {
			logger.Error(ctx, "flow rejected payment", "order_id", orderID, "status_code", apiErr.StatusCode, "body", string(apiErr.Body))
			s.metrics.PaymentsFailed.WithLabelValues("provider").Inc()
			relay(ctx, w, http.StatusInternalServerError, apiErr.Body)
			return
		}
		logger.Error(ctx, "flow create error", "order_id", orderID, "error", err)
		s.metrics.PaymentsFailed.WithLabelValues("transport").Inc()
		respondJSON(ctx, w, http.StatusInternalServerError, errorBody{Error: msgInternal})
		return
	}
	s.metrics.PaymentsCreated.Inc()

	if s.sessions != nil {
		session := &model.PaymentSession{
			OrderID:  orderID,
			Token:    checkout.Token,
			State:    model.SessionPending,
			Amount:   s.cfg.Checkout.Amount,
			Currency: s.cfg.Checkout.Currency,
			Email:    email,
			FileName: req.FileName,
		}
		if err := s.sessions.Create(ctx, session); err != nil {
			logger.Warn(ctx, "record payment session", "order_id", orderID, "error", err)
		}
	}
	logger.Info(ctx, "payment created", "order_id", orderID)
	respondJSON(ctx, w, http.StatusOK, map[string]string{"flowUrl": checkout.CheckoutURL()})
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	var token string
	if r.Method == http.MethodPost {
		token = r.PostFormValue("token")
	} else {
		token = r.URL.Query().Get("token")
	}
	if s.cfg.Flow.BaseURL == "" {
		logger.Warn(r.Context(), "public base url not configured, redirecting to default", "target", config.DefaultPublicURL)
	}
	base := strings.TrimSuffix(s.cfg.PublicURL(), "/")
	target := base + "/dashboard/cancel"
	if token != "" {
		target = base + "/dashboard/success?token=" + url.QueryEscape(token)
	}
	w.Header().Set("Location", target)
	w.WriteHeader(http.StatusSeeOther)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		logger.Warn(ctx, "read webhook body", "error", err)
	}
	s.metrics.WebhooksReceived.Inc()
	logger.Info(ctx, "flow webhook", "body", string(body))

	if s.queue != nil {
		s.enqueueConfirm(r, body)
	}
	respondJSON(ctx, w, http.StatusOK, map[string]bool{"received": true})
}

func (s *Server) enqueueConfirm(r *http.Request, body []byte) {
	ctx := r.Context()
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return
	}
	token := values.Get("token")
	if token == "" {
		return
	}
	err = queue.EnqueueConfirm(ctx, s.queue, queue.ConfirmPayload{Token: token, ReceivedAt: time.Now().UTC()})
	switch {
	case err == nil:
	case errors.Is(err, asynq.ErrTaskIDConflict):
		logger.Debug(ctx, "confirmation already queued")
	default:
		logger.Error(ctx, "enqueue confirmation", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := r.URL.Query().Get("token")
	if token == "" {
		respondJSON(ctx, w, http.StatusBadRequest, errorBody{Error: msgNoToken})
		return
	}
	if err := s.cfg.FlowKeysReady(); err != nil {
		respondJSON(ctx, w, http.StatusInternalServerError, errorBody{Error: msgMissingFlowKeys})
		return
	}
	raw, err := s.flow.StatusRaw(ctx, token)
	if err != nil {
		logger.Error(ctx, "flow status error", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, errorBody{Error: msgInternal})
		return
	}
	if raw.OK() {
		var probe struct {
			Status model.PaymentStatus `json:"status"`
		}
		if json.Unmarshal(raw.Body, &probe) == nil {
			s.metrics.ObserveStatus(int(probe.Status))
		}
	}
	relay(ctx, w, raw.StatusCode, raw.Body)
}
