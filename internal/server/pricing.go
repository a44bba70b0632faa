package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	pricingdomain "github.com/smallbiznis/meridian/internal/pricing/domain"
)

func (s *Server) CreatePricingRule(c *gin.Context) {
	var req pricingdomain.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	rule, err := s.pricingSvc.CreateRule(c.Request.Context(), req)
	s.metrics.IncPricingRuleOp("create", err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) ListPricingRules(c *gin.Context) {
	rules, err := s.pricingSvc.ListRules(c.Request.Context(), pricingdomain.ListRulesRequest{
		ProductID:  c.Query("product_id"),
		Category:   c.Query("category"),
		ActiveOnly: c.Query("active_only") == "true",
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rules})
}

func (s *Server) GetPricingRule(c *gin.Context) {
	rule, err := s.pricingSvc.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) UpdatePricingRule(c *gin.Context) {
	var req pricingdomain.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))

	rule, err := s.pricingSvc.UpdateRule(c.Request.Context(), req)
	s.metrics.IncPricingRuleOp("update", err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) ActivatePricingRule(c *gin.Context) {
	rule, err := s.pricingSvc.ActivateRule(c.Request.Context(), c.Param("id"))
	s.metrics.IncPricingRuleOp("activate", err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) DeactivatePricingRule(c *gin.Context) {
	rule, err := s.pricingSvc.DeactivateRule(c.Request.Context(), c.Param("id"))
	s.metrics.IncPricingRuleOp("deactivate", err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) ResetPricingRuleUsage(c *gin.Context) {
	rule, err := s.pricingSvc.ResetRuleUsage(c.Request.Context(), c.Param("id"))
	s.metrics.IncPricingRuleOp("reset_usage", err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) PricingRuleUsageStats(c *gin.Context) {
	stats, err := s.pricingSvc.GetRuleUsageStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

type bulkRulesRequest struct {
	RuleIDs []string `json:"rule_ids" binding:"required"`
}

func (s *Server) BulkActivatePricingRules(c *gin.Context) {
	var req bulkRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.pricingSvc.BulkActivateRules(c.Request.Context(), req.RuleIDs)
	s.metrics.IncPricingRuleOp("bulk_activate", err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) BulkDeactivatePricingRules(c *gin.Context) {
	var req bulkRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.pricingSvc.BulkDeactivateRules(c.Request.Context(), req.RuleIDs)
	s.metrics.IncPricingRuleOp("bulk_deactivate", err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) CalculatePrice(c *gin.Context) {
	var req pricingdomain.CalculatePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.pricingSvc.CalculatePrice(c.Request.Context(), req)
	s.metrics.IncPriceCalculation(err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DetectPricingConflicts(c *gin.Context) {
	conflicts, err := s.pricingSvc.DetectRuleConflicts(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": conflicts})
}
