package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	dispatchdomain "github.com/smallbiznis/pasarku/internal/dispatch/domain"
)

func (s *Server) ListCourierCandidates(c *gin.Context) {
	merchantID, ok := pathID(c)
	if !ok {
		return
	}
	if err := requireMerchantScope(c, merchantID); err != nil {
		AbortWithError(c, err)
		return
	}

	couriers, err := s.dispatchSvc.ListCandidates(c.Request.Context(), merchantID.String())
	if errors.Is(err, dispatchdomain.ErrNoCouriersAvailable) {
		couriers, err = []dispatchdomain.Courier{}, nil
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": couriers})
}

func (s *Server) GetCourierByID(c *gin.Context) {
	courierID, ok := pathID(c)
	if !ok {
		return
	}
	if err := requireCourierScope(c, courierID); err != nil {
		AbortWithError(c, err)
		return
	}

	courier, err := s.dispatchSvc.GetCourier(c.Request.Context(), courierID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": courier})
}

type courierAvailabilityRequest struct {
	Available *bool `json:"available"`
}

func (s *Server) SetCourierAvailability(c *gin.Context) {
	courierID, ok := pathID(c)
	if !ok {
		return
	}
	if err := requireCourierScope(c, courierID); err != nil {
		AbortWithError(c, err)
		return
	}

	var req courierAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Available == nil {
		AbortWithError(c, newValidationError("available", "required", "available is required"))
		return
	}

	courier, err := s.dispatchSvc.SetAvailability(c.Request.Context(), courierID.String(), *req.Available)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": courier})
}
