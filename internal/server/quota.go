package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	quotadomain "github.com/smallbiznis/pasarku/internal/quota/domain"
	"github.com/smallbiznis/pasarku/pkg/db/pagination"
)

func (s *Server) GetQuotaInfo(c *gin.Context) {
	merchantID, ok := pathID(c)
	if !ok {
		return
	}
	if err := requireMerchantScope(c, merchantID); err != nil {
		AbortWithError(c, err)
		return
	}

	info, err := s.quotaSvc.GetQuotaInfo(c.Request.Context(), merchantID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": info})
}

// GetMerchantAvailability is the catalog view of the quota: any party may ask
// whether a merchant can take orders, without seeing the balance.
func (s *Server) GetMerchantAvailability(c *gin.Context) {
	merchantID, ok := pathID(c)
	if !ok {
		return
	}

	info, err := s.quotaSvc.GetQuotaInfo(c.Request.Context(), merchantID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"merchant_id": info.MerchantID,
		"available":   info.Available,
	}})
}

func (s *Server) ListQuotaEntries(c *gin.Context) {
	merchantID, ok := pathID(c)
	if !ok {
		return
	}
	if err := requireMerchantScope(c, merchantID); err != nil {
		AbortWithError(c, err)
		return
	}

	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.quotaSvc.ListEntries(c.Request.Context(), quotadomain.ListEntriesRequest{
		MerchantID: merchantID.String(),
		Pagination: query,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Entries, "page_info": resp.PageInfo})
}

func (s *Server) AdjustQuota(c *gin.Context) {
	merchantID, ok := pathID(c)
	if !ok {
		return
	}

	var req quotadomain.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entry, err := s.quotaSvc.Adjust(c.Request.Context(), quotadomain.AdjustRequest{
		MerchantID: merchantID.String(),
		Credits:    req.Credits,
		Note:       strings.TrimSpace(req.Note),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": entry})
}
