package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nexusai/auditoria/internal/logger"
	"github.com/nexusai/auditoria/internal/metrics"
	"github.com/nexusai/auditoria/internal/model"
	"github.com/nexusai/auditoria/internal/storage"
)

// deliveryResponse is the body of verify-result and preview answers.
type deliveryResponse struct {
	Success   bool          `json:"success"`
	Analysis  *model.Report `json:"analysis,omitempty"`
	ReportURL string        `json:"reportUrl,omitempty"`
	Error     string        `json:"error,omitempty"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleVerifyResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req verifyRequest
	if err := decodeJSON(w, r, 4<<10, &req); err != nil || req.Token == "" {
		logger.Warn(ctx, "verify-result without token")
		respondJSON(ctx, w, http.StatusBadRequest, errorBody{Error: msgTokenMissing})
		return
	}
	if err := s.cfg.FlowKeysReady(); err != nil {
		logger.Error(ctx, "verify-result refused", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, errorBody{Error: msgMissingFlowKeys})
		return
	}

	// The client's claim of payment is never trusted; ask Flow again.
	status, err := s.flow.GetStatus(ctx, req.Token)
	if err != nil {
		logger.Error(ctx, "verify-result status lookup", "error", err)
		s.metrics.Deliveries.WithLabelValues(metrics.OutcomeProviderError).Inc()
		respondJSON(ctx, w, http.StatusInternalServerError, deliveryResponse{Error: msgDeliveryFailed + err.Error()})
		return
	}
	s.metrics.ObserveStatus(int(status.Status))
	if !status.Status.Paid() {
		s.metrics.Deliveries.WithLabelValues(metrics.OutcomeNotPaid).Inc()
		respondJSON(ctx, w, http.StatusOK, deliveryResponse{Error: msgNotPaid + status.Status.Label()})
		return
	}

	orderID := status.CommerceOrder
	doc, err := s.cache.Take(ctx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.Error(ctx, "document not found for paid order", "order_id", orderID)
			s.metrics.Deliveries.WithLabelValues(metrics.OutcomeMissing).Inc()
			respondJSON(ctx, w, http.StatusNotFound, deliveryResponse{Error: msgDocumentNotFound})
			return
		}
		logger.Error(ctx, "take cached document", "order_id", orderID, "error", err)
		s.metrics.Deliveries.WithLabelValues(metrics.OutcomeProviderError).Inc()
		respondJSON(ctx, w, http.StatusInternalServerError, deliveryResponse{Error: msgDeliveryFailed + err.Error()})
		return
	}

	logger.Info(ctx, "starting premium analysis", "order_id", orderID)
	report, err := s.analyzer.Analyze(ctx, doc.Base64Data, doc.MimeType, true)
	if err != nil {
		// Put the document back so the paid buyer can retry.
		if putErr := s.cache.Put(context.WithoutCancel(ctx), orderID, doc); putErr != nil {
			logger.Error(ctx, "restore cached document", "order_id", orderID, "error", putErr)
		}
		logger.Error(ctx, "premium analysis failed", "order_id", orderID, "error", err)
		s.metrics.Deliveries.WithLabelValues(metrics.OutcomeAnalysisError).Inc()
		respondJSON(ctx, w, http.StatusInternalServerError, deliveryResponse{Error: msgDeliveryFailed + err.Error()})
		return
	}

	resp := deliveryResponse{Success: true, Analysis: report}
	if s.archive != nil {
		resp.ReportURL = s.archiveReport(ctx, orderID, report)
	}
	if s.sessions != nil {
		if err := s.sessions.MarkDelivered(ctx, orderID); err != nil {
			logger.Warn(ctx, "mark session delivered", "order_id", orderID, "error", err)
		}
	}
	s.metrics.Deliveries.WithLabelValues(metrics.OutcomeDelivered).Inc()
	logger.Info(ctx, "report delivered", "order_id", orderID)
	respondJSON(ctx, w, http.StatusOK, resp)
}

// archiveReport stores the report and returns a download link, or "" when
// archiving failed. Failures never block delivery.
func (s *Server) archiveReport(ctx context.Context, orderID string, report *model.Report) string {
	data, err := json.Marshal(report)
	if err != nil {
		logger.Error(ctx, "marshal report", "order_id", orderID, "error", err)
		return ""
	}
	key, err := s.archive.UploadReport(ctx, orderID, data)
	if err != nil {
		logger.Error(ctx, "archive report", "order_id", orderID, "error", err)
		return ""
	}
	link, err := s.archive.PresignReportURL(ctx, key, s.cfg.ReportURLTTL)
	if err != nil {
		logger.Error(ctx, "presign report", "order_id", orderID, "error", err)
		return ""
	}
	return link
}
