package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/meridian/internal/tax/domain"
)

type addTaxRateRequest struct {
	Name            string          `json:"name" binding:"required"`
	Rate            decimal.Decimal `json:"rate"`
	Jurisdiction    string          `json:"jurisdiction" binding:"required"`
	TaxType         string          `json:"tax_type"`
	IsCompound      bool            `json:"is_compound"`
	IsInclusive     bool            `json:"is_inclusive"`
	ThresholdAmount *int64          `json:"threshold_amount,omitempty"`
}

func (s *Server) AddTaxRate(c *gin.Context) {
	var req addTaxRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	taxType := taxdomain.TaxType(strings.TrimSpace(req.TaxType))
	if taxType == "" {
		taxType = taxdomain.TaxTypeSales
	}

	rate, err := taxdomain.NewTaxRate(req.Jurisdiction, req.Name, req.Rate, taxType)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if req.IsCompound {
		rate = rate.Compound()
	}
	if req.IsInclusive {
		rate = rate.Inclusive()
	}
	if req.ThresholdAmount != nil {
		rate = rate.AppliesAbove(*req.ThresholdAmount)
	}

	s.taxCalc.AddRate(rate)
	c.JSON(http.StatusOK, gin.H{"data": rate})
}

type calculateTaxRequest struct {
	Amount       int64                `json:"amount"`
	Jurisdiction string               `json:"jurisdiction" binding:"required"`
	Inclusive    bool                 `json:"inclusive"`
	LineItems    []taxdomain.LineItem `json:"line_items,omitempty"`
}

func (s *Server) CalculateTax(c *gin.Context) {
	var req calculateTaxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if len(req.LineItems) > 0 {
		totalTax, items := s.taxCalc.CalculateLineItems(req.LineItems, req.Jurisdiction)
		s.metrics.IncTaxCalculation("line_items", nil)
		c.JSON(http.StatusOK, gin.H{"data": gin.H{
			"total_tax":  totalTax,
			"line_items": items,
		}})
		return
	}

	if req.Inclusive {
		result := s.taxCalc.ReverseCalculate(req.Amount, req.Jurisdiction)
		s.metrics.IncTaxCalculation("inclusive", nil)
		c.JSON(http.StatusOK, gin.H{"data": result})
		return
	}

	result := s.taxCalc.Calculate(req.Amount, req.Jurisdiction)
	s.metrics.IncTaxCalculation("exclusive", nil)
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) EffectiveTaxRate(c *gin.Context) {
	jurisdiction := strings.TrimSpace(c.Query("jurisdiction"))
	if jurisdiction == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	rate := s.taxCalc.EffectiveRate(jurisdiction)
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"jurisdiction":   jurisdiction,
		"effective_rate": rate,
	}})
}
