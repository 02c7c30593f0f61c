package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ingest/internal/core/domain"
	"github.com/rl1809/stock-ingest/internal/core/service"
)

type SnapshotSubmitter interface {
	Submit(snapshot domain.Snapshot) (string, error)
}

type StockAdjuster interface {
	Adjust(ctx context.Context, req domain.AdjustmentRequest) (domain.AdjustmentResult, error)
}

type StockQuerier interface {
	GetStock(ctx context.Context, storeID, sku string) (*domain.StockLevel, error)
}

type HTTPHandler struct {
	ingestion   SnapshotSubmitter
	adjustments StockAdjuster
	stock       StockQuerier
	logger      *zap.Logger
}

type SnapshotHTTPRequest struct {
	ID      string                   `json:"id"`
	Records []domain.InventoryRecord `json:"records" binding:"required"`
}

type SnapshotHTTPResponse struct {
	SnapshotID string `json:"snapshot_id"`
	Records    int    `json:"records"`
}

type AdjustStockHTTPRequest struct {
	StoreID   string `json:"store_id"`
	SKU       string `json:"sku" binding:"required"`
	Quantity  *int   `json:"quantity" binding:"required"`
	RequestID string `json:"request_id"`
}

type ErrorHTTPResponse struct {
	Error string `json:"error"`
}

func NewHTTPHandler(ingestion SnapshotSubmitter, adjustments StockAdjuster, stock StockQuerier, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		ingestion:   ingestion,
		adjustments: adjustments,
		stock:       stock,
		logger:      logger,
	}
}

func (h *HTTPHandler) Register(r gin.IRouter) {
	r.GET("/", h.Index)
	r.GET("/health", h.HealthCheck)
	r.POST("/adjust_stock", h.AdjustStock)
	r.POST("/api/snapshots", h.SubmitSnapshot)
	r.GET("/api/stock/:store_id/:sku", h.GetStock)
}

func (h *HTTPHandler) SubmitSnapshot(c *gin.Context) {
	var req SnapshotHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorHTTPResponse{Error: "invalid request body"})
		return
	}

	id, err := h.ingestion.Submit(domain.Snapshot{ID: req.ID, Records: req.Records})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrEmptySnapshot):
			status = http.StatusBadRequest
		case errors.Is(err, service.ErrQueueFull), errors.Is(err, service.ErrServiceClosed):
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, ErrorHTTPResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, SnapshotHTTPResponse{SnapshotID: id, Records: len(req.Records)})
}

func (h *HTTPHandler) AdjustStock(c *gin.Context) {
	var req AdjustStockHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorHTTPResponse{Error: "sku and quantity are required"})
		return
	}

	result, err := h.adjustments.Adjust(c.Request.Context(), domain.AdjustmentRequest{
		StoreID:   req.StoreID,
		SKU:       req.SKU,
		Quantity:  *req.Quantity,
		RequestID: req.RequestID,
	})
	if err != nil {
		status := http.StatusInternalServerError
		message := "internal error"

		if errors.Is(err, service.ErrDuplicateRequest) {
			status = http.StatusConflict
			message = "duplicate request"
		} else if errors.Is(err, service.ErrInvalidAdjustment) {
			status = http.StatusBadRequest
			message = err.Error()
		} else {
			h.logger.Error("adjust stock failed", zap.String("sku", req.SKU), zap.Error(err))
		}

		c.JSON(status, ErrorHTTPResponse{Error: message})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *HTTPHandler) GetStock(c *gin.Context) {
	level, err := h.stock.GetStock(c.Request.Context(), c.Param("store_id"), c.Param("sku"))
	if err != nil {
		if errors.Is(err, service.ErrStockNotFound) {
			c.JSON(http.StatusNotFound, ErrorHTTPResponse{Error: "stock not found"})
			return
		}
		h.logger.Error("get stock failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorHTTPResponse{Error: "internal error"})
		return
	}

	c.JSON(http.StatusOK, level)
}

func (h *HTTPHandler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Inventory Management System is running"})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
