package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/rl1809/usdt-pay/internal/core/domain"
	"github.com/rl1809/usdt-pay/internal/core/service"
	"github.com/rl1809/usdt-pay/internal/port"
)

type HTTPHandler struct {
	orderService *service.OrderService
	pool         port.WalletPool
}

func NewHTTPHandler(orderService *service.OrderService, pool port.WalletPool) *HTTPHandler {
	return &HTTPHandler{orderService: orderService, pool: pool}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.HealthCheck)
	api := r.Group("/api")
	{
		api.POST("/orders", h.CreateOrder)
		api.GET("/wallets", h.ListWallets)
	}
}

type CreateOrderRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type OrderResponse struct {
	ID        string             `json:"id"`
	Address   string             `json:"address"`
	Amount    decimal.Decimal    `json:"amount"`
	Status    domain.OrderStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

type WalletResponse struct {
	Address string `json:"address"`
	InUse   bool   `json:"in_use"`
}

func (h *HTTPHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		case errors.Is(err, port.ErrNoFreeWallet):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no free wallet"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusCreated, OrderResponse{
		ID:        order.ID,
		Address:   order.Address,
		Amount:    order.Amount,
		Status:    order.Status,
		CreatedAt: order.CreatedAt,
		ExpiresAt: order.ExpiresAt,
	})
}

func (h *HTTPHandler) ListWallets(c *gin.Context) {
	wallets, err := h.pool.FetchAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	out := make([]WalletResponse, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, WalletResponse{Address: w.Address, InUse: w.InUse})
	}
	c.JSON(http.StatusOK, out)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
