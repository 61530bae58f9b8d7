package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dsemenov/datavault/internal/common"
	"github.com/dsemenov/datavault/internal/logging"
	"github.com/dsemenov/datavault/internal/server/auth"
)

// requestIDHeader echoes the per-request identifier back to the caller so
// log lines can be matched to responses.
const requestIDHeader = "X-Request-Id"

// NewRouter assembles the REST surface. Everything under /api/v1 requires a
// bearer token; /healthz stays open for probes.
func NewRouter(h *Handler, authenticator auth.Authenticator, logger logging.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1", authRequired(authenticator))
	{
		api.POST("/data", h.StoreData)
		api.POST("/data/batch", h.StoreDataBatch)
		api.GET("/data", h.QueryData)
		api.GET("/data/:id", h.RetrieveData)
		api.PUT("/data/:id/permissions", h.UpdatePermissions)
		api.POST("/data/:id/usage", h.TrackUsage)

		api.GET("/tokens/balance", h.GetTokenBalance)
		api.POST("/tokens/transfer", h.TransferTokens)
		api.GET("/tokens/history", h.GetTransactionHistory)
	}

	return r
}

func requestLogger(logger logging.Logger) gin.HandlerFunc {
	log := logger.With("module", "http")
	return func(c *gin.Context) {
		start := time.Now()
		requestID := common.MakeRandHexString(8)
		c.Header(requestIDHeader, requestID)
		c.Next()
		log.Info(c.Request.Context(), "request",
			"requestId", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
