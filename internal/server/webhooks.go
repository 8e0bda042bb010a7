package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandleReplicateWebhook accepts provider callbacks. It always answers 200 so
// the provider does not retry deliveries we have classified as ignorable.
func (s *Server) HandleReplicateWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.log.Warn("webhook body read failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "unreadable_body"})
		return
	}

	outcome, err := s.ingest.HandleReplicate(c.Request.Context(), payload)
	if err != nil {
		s.log.Error("webhook processing failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "processing_error"})
		return
	}

	if reason, ok := strings.CutPrefix(outcome, "ignored:"); ok {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": reason})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "processed", "result": outcome})
}
