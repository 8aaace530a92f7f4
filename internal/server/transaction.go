package server

import (
	"io"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type createPaymentLinkRequest struct {
	OrderIDs []string `json:"order_ids"`
}

// @Summary      Create Payment Link
// @Description  Open a pending transaction for one or more orders
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Param        request body createPaymentLinkRequest true "Create Payment Link Request"
// @Router       /payment-links [post]
func (s *Server) CreatePaymentLink(c *gin.Context) {
	if _, err := actorFromRequest(c); err != nil {
		AbortWithError(c, err)
		return
	}

	var req createPaymentLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orderIDs := make([]snowflake.ID, 0, len(req.OrderIDs))
	for _, raw := range req.OrderIDs {
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			AbortWithError(c, newValidationError("order_ids", "invalid_order_id", "invalid order id"))
			return
		}
		orderIDs = append(orderIDs, id)
	}

	resp, err := s.txSvc.CreatePaymentLink(c.Request.Context(), orderIDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// @Summary      Get Transaction
// @Tags         transactions
// @Produce      json
// @Param        id   path      string  true  "Transaction ID"
// @Router       /transactions/{id} [get]
func (s *Server) GetTransaction(c *gin.Context) {
	if _, err := actorFromRequest(c); err != nil {
		AbortWithError(c, err)
		return
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.txSvc.FindByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// HandleGatewayWebhook consumes one payment-gateway callback. The body
// is read raw because signature verification covers the exact bytes.
func (s *Server) HandleGatewayWebhook(c *gin.Context) {
	provider := c.Param("provider")
	if !s.webhookLimiter.Allow(c.ClientIP() + ":" + provider) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": gin.H{
			"code":    "rate_limited",
			"message": "too many requests",
		}})
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.txSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
