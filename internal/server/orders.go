package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/pasarku/internal/order/domain"
	"github.com/smallbiznis/pasarku/pkg/db/pagination"
)

const HeaderIdempotencyKey = "Idempotency-Key"

func (s *Server) CreateOrder(c *gin.Context) {
	var req orderdomain.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey)); key != "" && strings.TrimSpace(req.IdempotencyKey) == "" {
		req.IdempotencyKey = key
	}

	order, err := s.orderSvc.Create(c.Request.Context(), orderdomain.CreateOrderRequest{
		MerchantID:      strings.TrimSpace(req.MerchantID),
		Items:           req.Items,
		DeliveryType:    strings.TrimSpace(req.DeliveryType),
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
		ShippingCost:    req.ShippingCost,
		DeliveryAddress: req.DeliveryAddress,
		IdempotencyKey:  strings.TrimSpace(req.IdempotencyKey),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": order})
}

func (s *Server) ListOrders(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.orderSvc.List(c.Request.Context(), orderdomain.ListOrdersRequest{
		Status:     strings.TrimSpace(query.Status),
		Pagination: query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Orders, "page_info": resp.PageInfo})
}

func (s *Server) GetOrderByID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	order, err := s.orderSvc.Get(c.Request.Context(), id.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

// ListOrderEvents serves the order's event log so a client can reconcile
// after a stream resync.
func (s *Server) ListOrderEvents(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	after, err := parseOptionalInt64(c.Query("after"))
	if err != nil || (after != nil && *after < 0) {
		AbortWithError(c, newValidationError("after", "invalid_after", "invalid after"))
		return
	}
	limit, err := parseOptionalInt64(c.Query("limit"))
	if err != nil || (limit != nil && *limit < 0) {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	req := orderdomain.ListEventsRequest{OrderID: id.String()}
	if after != nil {
		req.AfterVersion = *after
	}
	if limit != nil {
		req.Limit = int(*limit)
	}

	items, err := s.orderSvc.ListEvents(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) TransitionOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req orderdomain.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.OrderID = id.String()
	req.TargetStatus = strings.ToUpper(strings.TrimSpace(req.TargetStatus))

	order, err := s.orderSvc.Transition(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) DispatchOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req orderdomain.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.OrderID = id.String()
	req.Mode = strings.ToUpper(strings.TrimSpace(req.Mode))

	order, err := s.orderSvc.Dispatch(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) SubmitPaymentProof(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req orderdomain.SubmitPaymentProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.OrderID = id.String()

	order, err := s.orderSvc.SubmitPaymentProof(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) VerifyPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req orderdomain.VerifyPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	req.OrderID = id.String()

	order, err := s.orderSvc.VerifyPayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}
