package server

import (
	"net/http"

	"github.com/nexusai/auditoria/internal/logger"
)

// handlePreview runs the free, shorter analysis. No payment is involved and
// nothing is cached.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req uploadRequest
	if err := decodeJSON(w, r, s.maxBodyBytes(), &req); err != nil {
		s.metrics.Previews.WithLabelValues("invalid").Inc()
		respondJSON(ctx, w, http.StatusBadRequest, deliveryResponse{Error: err.Error()})
		return
	}
	if err := s.normalize(&req); err != nil {
		s.metrics.Previews.WithLabelValues("invalid").Inc()
		respondJSON(ctx, w, http.StatusBadRequest, deliveryResponse{Error: err.Error()})
		return
	}
	report, err := s.analyzer.Analyze(ctx, req.Base64Data, req.MimeType, false)
	if err != nil {
		logger.Error(ctx, "preview analysis failed", "error", err)
		s.metrics.Previews.WithLabelValues("error").Inc()
		respondJSON(ctx, w, http.StatusInternalServerError, deliveryResponse{Error: msgPreviewFailed + err.Error()})
		return
	}
	s.metrics.Previews.WithLabelValues("ok").Inc()
	respondJSON(ctx, w, http.StatusOK, deliveryResponse{Success: true, Analysis: report})
}
