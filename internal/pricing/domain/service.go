package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Service interface {
	CreateRule(ctx context.Context, req CreateRuleRequest) (*PricingRule, error)
	GetRule(ctx context.Context, id string) (*PricingRule, error)
	ListRules(ctx context.Context, req ListRulesRequest) ([]PricingRule, error)
	UpdateRule(ctx context.Context, req UpdateRuleRequest) (*PricingRule, error)
	ActivateRule(ctx context.Context, id string) (*PricingRule, error)
	DeactivateRule(ctx context.Context, id string) (*PricingRule, error)
	ResetRuleUsage(ctx context.Context, id string) (*PricingRule, error)

	CalculatePrice(ctx context.Context, req CalculatePriceRequest) (*CalculatePriceResponse, error)
	DetectRuleConflicts(ctx context.Context) ([]RuleConflict, error)
	GetRuleUsageStats(ctx context.Context, id string) (*RuleUsageStats, error)

	BulkActivateRules(ctx context.Context, ids []string) (*BulkResult, error)
	BulkDeactivateRules(ctx context.Context, ids []string) (*BulkResult, error)
}

type CreateRuleRequest struct {
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	DiscountType     DiscountType    `json:"discount_type"`
	DiscountValue    decimal.Decimal `json:"discount_value"`
	AppliesToAll     bool            `json:"applies_to_all"`
	ProductIDs       []string        `json:"applies_to_product_ids"`
	Categories       []string        `json:"applies_to_categories"`
	CustomerSegments []string        `json:"customer_segments"`
	MinQuantity      *int64          `json:"min_quantity"`
	StartsAt         *time.Time      `json:"starts_at"`
	EndsAt           *time.Time      `json:"ends_at"`
	MaxUses          *int64          `json:"max_uses"`
	Priority         int32           `json:"priority"`
}

type UpdateRuleRequest struct {
	ID            string           `json:"id"`
	Name          *string          `json:"name,omitempty"`
	Description   *string          `json:"description,omitempty"`
	DiscountValue *decimal.Decimal `json:"discount_value,omitempty"`
	MinQuantity   *int64           `json:"min_quantity,omitempty"`
	StartsAt      *time.Time       `json:"starts_at,omitempty"`
	EndsAt        *time.Time       `json:"ends_at,omitempty"`
	MaxUses       *int64           `json:"max_uses,omitempty"`
	Priority      *int32           `json:"priority,omitempty"`
}

type ListRulesRequest struct {
	ProductID  string
	Category   string
	ActiveOnly bool
}

type CalculatePriceRequest struct {
	ProductID        string   `json:"product_id"`
	Quantity         int64    `json:"quantity"`
	CustomerID       string   `json:"customer_id"`
	CustomerSegments []string `json:"customer_segments"`
}

type CalculatePriceResponse struct {
	ProductID     string            `json:"product_id"`
	Quantity      int64             `json:"quantity"`
	Subtotal      int64             `json:"subtotal"`
	TotalDiscount int64             `json:"total_discount_amount"`
	FinalPrice    int64             `json:"final_price"`
	Adjustments   []PriceAdjustment `json:"applied_adjustments"`
}

type BulkResult struct {
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidRule         = errors.New("invalid_pricing_rule")
	ErrRuleNotFound        = errors.New("pricing_rule_not_found")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
)
