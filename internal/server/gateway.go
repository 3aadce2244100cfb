package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/pasarku/internal/observability/context"
	obslogger "github.com/smallbiznis/pasarku/internal/observability/logger"
	orderdomain "github.com/smallbiznis/pasarku/internal/order/domain"
	"go.uber.org/zap"
)

// HandleGatewayCallback records a payment the gateway has settled. Replays of
// the same confirmation succeed without a second effect.
func (s *Server) HandleGatewayCallback(c *gin.Context) {
	var req orderdomain.GatewayConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	orderID, err := parseSnowflakeID(req.OrderID)
	if err != nil {
		AbortWithError(c, newValidationError("order_id", "invalid_order_id", "invalid order_id"))
		return
	}
	ctx := obscontext.WithOrder(c.Request.Context(), orderID.String(), "")
	c.Request = c.Request.WithContext(ctx)

	order, err := s.orderSvc.ConfirmGatewayPayment(ctx, orderdomain.GatewayConfirmationRequest{
		OrderID:   strings.TrimSpace(req.OrderID),
		Reference: strings.TrimSpace(req.Reference),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	obslogger.WithOrder(ctx, s.log, order.ID.String(), order.MerchantID.String()).Info("gateway payment confirmed",
		zap.String("status", string(order.Status)),
		zap.String("payment_status", string(order.PaymentStatus)),
	)
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"order_id":       order.ID.String(),
		"status":         order.Status,
		"payment_status": order.PaymentStatus,
		"version":        order.Version,
	}})
}
