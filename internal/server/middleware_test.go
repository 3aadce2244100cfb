package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/pasarku/internal/observability/context"
	"github.com/stretchr/testify/assert"
)

func TestSubjectScopeTagsCorrelation(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var seen obscontext.Correlation
	capture := func(c *gin.Context) {
		seen = obscontext.FromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	}
	r := gin.New()
	api := r.Group("/api", ActorRequired(), SubjectScope())
	api.GET("/orders/:id", capture)
	api.GET("/merchants/:id/quota", capture)
	api.GET("/streams/:kind/:id", capture)

	cases := []struct {
		name      string
		path      string
		actorType string
		want      obscontext.Correlation
	}{
		{
			name:      "order route",
			path:      "/api/orders/9001",
			actorType: "BUYER",
			want:      obscontext.Correlation{ActorType: "BUYER", ActorID: "7", OrderID: "9001"},
		},
		{
			name:      "merchant route as admin",
			path:      "/api/merchants/42/quota",
			actorType: "ADMIN",
			want:      obscontext.Correlation{ActorType: "ADMIN", ActorID: "7", MerchantID: "42"},
		},
		{
			name:      "merchant actor scopes own shop",
			path:      "/api/streams/order/9001",
			actorType: "MERCHANT",
			want:      obscontext.Correlation{ActorType: "MERCHANT", ActorID: "7", MerchantID: "7", OrderID: "9001"},
		},
		{
			name:      "merchant stream",
			path:      "/api/streams/merchant/42",
			actorType: "ADMIN",
			want:      obscontext.Correlation{ActorType: "ADMIN", ActorID: "7", MerchantID: "42"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = obscontext.Correlation{}
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			req.Header.Set(HeaderActorType, tc.actorType)
			req.Header.Set(HeaderActorID, "7")
			resp := httptest.NewRecorder()

			r.ServeHTTP(resp, req)

			assert.Equal(t, http.StatusNoContent, resp.Code)
			assert.Equal(t, tc.want, seen)
		})
	}
}
