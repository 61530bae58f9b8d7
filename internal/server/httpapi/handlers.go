// Package httpapi exposes the vault services over REST. Handlers are a thin
// layer: they bind input, delegate to the services and map sentinel errors
// to status codes; enums are validated authoritatively in the service layer.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/dsemenov/datavault/internal/common"
	"github.com/dsemenov/datavault/internal/logging"
	"github.com/dsemenov/datavault/internal/server/models"
	"github.com/dsemenov/datavault/internal/server/services"
)

// DataAPI is the data pipeline surface the handlers need.
type DataAPI interface {
	Store(ctx context.Context, in services.StoreInput, actorID string) (*models.Data, error)
	StoreBatch(ctx context.Context, items []services.StoreInput, actorID string) *services.BatchResult
	Retrieve(ctx context.Context, id, actorID string) (*services.RetrieveResult, error)
	Query(ctx context.Context, in services.QueryInput, actorID string) (*services.QueryResult, error)
	UpdatePermissions(ctx context.Context, id, level string, allowedUsers []string, actorID string) (*models.Data, error)
	TrackUsage(ctx context.Context, id, actorID, accessType string, metadata map[string]any) (*models.Usage, error)
}

// TokenAPI is the token ledger surface the handlers need.
type TokenAPI interface {
	Balance(ctx context.Context, userID string) (*models.TokenAccount, error)
	Transfer(ctx context.Context, fromUserID, toUserID string, amount decimal.Decimal) (*models.TokenTransaction, error)
	History(ctx context.Context, userID string, limit, offset int) ([]*models.TokenTransaction, error)
}

// Handler holds the service dependencies of the REST surface.
type Handler struct {
	data   DataAPI
	tokens TokenAPI
	logger logging.Logger
}

func NewHandler(data DataAPI, tokens TokenAPI, logger logging.Logger) *Handler {
	return &Handler{data: data, tokens: tokens, logger: logger.With("module", "httpapi")}
}

func (h *Handler) StoreData(c *gin.Context) {
	var in services.StoreInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.data.Store(c.Request.Context(), in, actorID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *Handler) StoreDataBatch(c *gin.Context) {
	var in struct {
		Items []services.StoreInput `json:"items" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.data.StoreBatch(c.Request.Context(), in.Items, actorID(c))
	c.JSON(http.StatusOK, result)
}

func (h *Handler) RetrieveData(c *gin.Context) {
	result, err := h.data.Retrieve(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) QueryData(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	in := services.QueryInput{
		Type:    c.Query("type"),
		Creator: c.Query("creator"),
		Limit:   limit,
		Cursor:  c.Query("cursor"),
	}

	result, err := h.data.Query(c.Request.Context(), in, actorID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) UpdatePermissions(c *gin.Context) {
	var in struct {
		Permissions  string   `json:"permissions" binding:"required"`
		AllowedUsers []string `json:"allowedUsers"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.data.UpdatePermissions(c.Request.Context(), c.Param("id"), in.Permissions, in.AllowedUsers, actorID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *Handler) TrackUsage(c *gin.Context) {
	var in struct {
		AccessType string         `json:"accessType" binding:"required"`
		Metadata   map[string]any `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.data.TrackUsage(c.Request.Context(), c.Param("id"), actorID(c), in.AccessType, in.Metadata)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) GetTokenBalance(c *gin.Context) {
	account, err := h.tokens.Balance(c.Request.Context(), actorID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": account.UserID, "balance": account.Balance})
}

func (h *Handler) TransferTokens(c *gin.Context) {
	var in struct {
		Recipient string          `json:"recipient" binding:"required"`
		Amount    decimal.Decimal `json:"amount"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.tokens.Transfer(c.Request.Context(), actorID(c), in.Recipient, in.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *Handler) GetTransactionHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	entries, err := h.tokens.History(c.Request.Context(), actorID(c), limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": entries})
}

// writeError maps sentinel errors to status codes. Unknown errors become a
// generic 500 so internals never leak to callers; full detail goes to the log.
func (h *Handler) writeError(c *gin.Context, err error) {
	var partial *common.PartialWriteError
	if errors.As(err, &partial) {
		// The ledger write is durable; the identifier must reach the
		// caller so the metadata row can be repaired.
		c.JSON(http.StatusBadGateway, gin.H{"error": "metadata persistence failed", "ledgerId": partial.LedgerID})
		return
	}

	switch {
	case errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, common.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient token balance"})
	case errors.Is(err, common.ErrConstraintViolation):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, common.ErrLedgerTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "ledger timeout"})
	default:
		h.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
