package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/meridian/internal/orgcontext"
	pricingdomain "github.com/smallbiznis/meridian/internal/pricing/domain"
	productdomain "github.com/smallbiznis/meridian/internal/product/domain"
	"go.uber.org/zap"
)

// CalculatePrice resolves the product, selects every matching active rule and
// applies them in priority order. Each adjustment chains off the previous
// adjusted price, and the final price never drops below zero.
func (s *Service) CalculatePrice(ctx context.Context, req pricingdomain.CalculatePriceRequest) (*pricingdomain.CalculatePriceResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, pricingdomain.ErrInvalidOrganization
	}
	if req.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", pricingdomain.ErrInvalidQuantity)
	}

	productID, err := snowflake.ParseString(strings.TrimSpace(req.ProductID))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed product id %q", productdomain.ErrNotFound, req.ProductID)
	}
	product, err := s.productRepo.FindByID(ctx, s.db, orgID, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, productdomain.ErrNotFound
	}

	subtotal := product.BasePrice * req.Quantity

	rules, err := s.repo.ListActive(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	matched := lo.Filter(rules, func(rule pricingdomain.PricingRule, _ int) bool {
		return ruleMatches(&rule, product, req, now)
	})

	resp := &pricingdomain.CalculatePriceResponse{
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		Subtotal:    subtotal,
		FinalPrice:  subtotal,
		Adjustments: []pricingdomain.PriceAdjustment{},
	}

	for i := range matched {
		rule := &matched[i]
		adj := applyRule(rule, resp.FinalPrice)
		if adj.DiscountAmount == 0 && rule.DiscountType != pricingdomain.FixedPrice {
			continue
		}

		resp.Adjustments = append(resp.Adjustments, adj)
		resp.FinalPrice = adj.AdjustedPrice
		resp.TotalDiscount += adj.DiscountAmount

		if err := s.repo.IncrementUsage(ctx, s.db, orgID, rule.ID); err != nil {
			s.log.Error("failed to record rule usage",
				zap.String("rule_id", rule.ID),
				zap.Error(err),
			)
			return nil, fmt.Errorf("recording usage for rule %s: %w", rule.ID, err)
		}
	}

	return resp, nil
}

// ruleMatches checks activity window, usage cap, quantity floor, segment and
// product/category targeting.
func ruleMatches(rule *pricingdomain.PricingRule, product *productdomain.Product, req pricingdomain.CalculatePriceRequest, now time.Time) bool {
	if !rule.IsActive || !rule.ActiveAt(now) || !rule.HasUsageLeft() {
		return false
	}
	if rule.MinQuantity != nil && req.Quantity < *rule.MinQuantity {
		return false
	}
	if len(rule.CustomerSegments) > 0 {
		if len(lo.Intersect([]string(rule.CustomerSegments), req.CustomerSegments)) == 0 {
			return false
		}
	}
	if rule.AppliesToAll {
		return true
	}
	if lo.Contains([]string(rule.ProductIDs), product.ID.String()) {
		return true
	}
	return product.Category != "" && lo.Contains([]string(rule.Categories), product.Category)
}

// applyRule computes one adjustment against the current running price.
// Percentage and fixed-amount discounts round half up to a whole minor unit
// and never push the price negative. A fixed-price rule overrides the running
// price with its value outright, so its recorded discount goes negative when
// the rule prices above the current running price.
func applyRule(rule *pricingdomain.PricingRule, current int64) pricingdomain.PriceAdjustment {
	price := decimal.NewFromInt(current)
	var discount decimal.Decimal

	switch rule.DiscountType {
	case pricingdomain.Percentage:
		discount = price.Mul(rule.DiscountValue).Div(decimal.NewFromInt(100)).Round(0)
	case pricingdomain.FixedAmount:
		discount = rule.DiscountValue.Round(0)
	case pricingdomain.FixedPrice:
		amount := price.Sub(rule.DiscountValue.Round(0)).IntPart()
		return adjustment(rule, current, amount)
	}

	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(price) {
		discount = price
	}

	return adjustment(rule, current, discount.IntPart())
}

func adjustment(rule *pricingdomain.PricingRule, current, amount int64) pricingdomain.PriceAdjustment {
	return pricingdomain.PriceAdjustment{
		RuleID:         rule.ID,
		RuleName:       rule.Name,
		DiscountType:   rule.DiscountType,
		DiscountValue:  rule.DiscountValue,
		OriginalPrice:  current,
		DiscountAmount: amount,
		AdjustedPrice:  current - amount,
	}
}
