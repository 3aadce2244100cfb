package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/pasarku/internal/actor"
)

func (s *Server) authorizeAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actorFromRequest(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), a, strings.TrimSpace(object), strings.TrimSpace(action)); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// requireMerchantScope lets a merchant reach only its own resources. Admins
// see every merchant.
func requireMerchantScope(c *gin.Context, merchantID snowflake.ID) error {
	a, ok := actorFromRequest(c)
	if !ok {
		return ErrUnauthorized
	}
	switch a.Type {
	case actor.TypeAdmin:
		return nil
	case actor.TypeMerchant:
		if a.ID == merchantID {
			return nil
		}
	}
	return ErrForbidden
}

func requireCourierScope(c *gin.Context, courierID snowflake.ID) error {
	a, ok := actorFromRequest(c)
	if !ok {
		return ErrUnauthorized
	}
	switch a.Type {
	case actor.TypeAdmin:
		return nil
	case actor.TypeCourier:
		if a.ID == courierID {
			return nil
		}
	}
	return ErrForbidden
}
