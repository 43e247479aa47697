package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/leadflow/internal/normalize"
	"github.com/imrishuroy/leadflow/internal/notify"
	"github.com/imrishuroy/leadflow/internal/telemetry"
)

// ResultsTokenHeader carries the shared token the actor sends with results.
const ResultsTokenHeader = "X-Results-Token"

type resultsPayload struct {
	RunID       string `json:"runId"`
	FileName    string `json:"fileName"`
	CleanOutput bool   `json:"cleanOutput"`
	Items       any    `json:"items"`
}

// resultsHandler -> POST /webhook/results
func resultsHandler(cfg HandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := cfg.Config.ResultsToken; token != "" {
			got := c.GetHeader(ResultsTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
				return
			}
		}

		var p resultsPayload
		dec := json.NewDecoder(c.Request.Body)
		dec.UseNumber()
		if err := dec.Decode(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "detail": err.Error()})
			return
		}
		if p.Items == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "detail": "items is required"})
			return
		}
		if p.CleanOutput {
			p.Items = normalize.Normalize(p.Items)
		}
		log := requestLog(c).WithField("run_id", p.RunID).WithField("file_name", p.FileName)

		if cfg.Config.ResultsWebhookURL == "" {
			log.Info("results received, no forwarding endpoint configured")
			telemetry.ResultsForwarded.WithLabelValues("skipped").Inc()
			c.JSON(http.StatusOK, gin.H{"forwarded": false})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.Config.NotifyTimeout)
		defer cancel()
		if err := notify.PostJSON(ctx, cfg.ResultsClient, cfg.Config.ResultsWebhookURL, p); err != nil {
			log.WithError(err).Error("failed to forward results")
			telemetry.ResultsForwarded.WithLabelValues("failed").Inc()
			c.JSON(http.StatusBadGateway, gin.H{"error": "forward_failed"})
			return
		}
		telemetry.ResultsForwarded.WithLabelValues("ok").Inc()
		c.JSON(http.StatusOK, gin.H{"forwarded": true})
	}
}
