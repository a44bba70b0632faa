package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// DiscountType is a closed set; rule application dispatches exhaustively
// over it.
type DiscountType string

const (
	Percentage  DiscountType = "PERCENTAGE"
	FixedAmount DiscountType = "FIXED_AMOUNT"
	FixedPrice  DiscountType = "FIXED_PRICE"
)

func (d DiscountType) Valid() bool {
	switch d {
	case Percentage, FixedAmount, FixedPrice:
		return true
	default:
		return false
	}
}

// PricingRule is an org-scoped discount rule. DiscountValue is a percentage
// for PERCENTAGE rules and an amount in minor currency units otherwise.
// A rule must target something: all products, specific product IDs, or
// categories.
type PricingRule struct {
	ID    string       `json:"id" gorm:"primaryKey;type:text"`
	OrgID snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;index"`

	Name        string `json:"name" gorm:"type:text;not null"`
	Description string `json:"description,omitempty" gorm:"type:text"`

	DiscountType  DiscountType    `json:"discount_type" gorm:"type:text;not null"`
	DiscountValue decimal.Decimal `json:"discount_value" gorm:"type:numeric(20,6);not null"`

	AppliesToAll     bool                         `json:"applies_to_all" gorm:"not null;default:false"`
	ProductIDs       datatypes.JSONSlice[string]  `json:"applies_to_product_ids,omitempty" gorm:"column:product_ids"`
	Categories       datatypes.JSONSlice[string]  `json:"applies_to_categories,omitempty"`
	CustomerSegments datatypes.JSONSlice[string]  `json:"customer_segments,omitempty"`

	MinQuantity *int64     `json:"min_quantity,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`

	MaxUses     *int64 `json:"max_uses,omitempty"`
	CurrentUses int64  `json:"current_uses" gorm:"not null;default:0"`

	Priority int32 `json:"priority" gorm:"not null;default:0"`
	IsActive bool  `json:"is_active" gorm:"not null;default:true"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PricingRule) TableName() string { return "pricing_rules" }

// UsageRemaining returns how many applications are left, or nil when the
// rule is uncapped.
func (r *PricingRule) UsageRemaining() *int64 {
	if r.MaxUses == nil {
		return nil
	}
	remaining := *r.MaxUses - r.CurrentUses
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// HasUsageLeft reports whether the rule can still be applied.
func (r *PricingRule) HasUsageLeft() bool {
	return r.MaxUses == nil || r.CurrentUses < *r.MaxUses
}

// ActiveAt reports whether now falls inside the rule's validity window.
func (r *PricingRule) ActiveAt(now time.Time) bool {
	if r.StartsAt != nil && now.Before(*r.StartsAt) {
		return false
	}
	if r.EndsAt != nil && now.After(*r.EndsAt) {
		return false
	}
	return true
}

// PriceAdjustment is one step of the discount stack. The next adjustment's
// OriginalPrice always equals this one's AdjustedPrice.
type PriceAdjustment struct {
	RuleID         string          `json:"rule_id"`
	RuleName       string          `json:"rule_name"`
	DiscountType   DiscountType    `json:"discount_type"`
	DiscountValue  decimal.Decimal `json:"discount_value"`
	OriginalPrice  int64           `json:"original_price"`
	DiscountAmount int64           `json:"discount_amount"`
	AdjustedPrice  int64           `json:"adjusted_price"`
}

// RuleConflict describes an advisory overlap between two active rules.
type RuleConflict struct {
	Type        string `json:"type"`
	RuleID1     string `json:"rule_1"`
	RuleID2     string `json:"rule_2"`
	Priority    int32  `json:"priority"`
	Description string `json:"description"`
}

// RuleUsageStats is a point-in-time view of a rule's consumption.
type RuleUsageStats struct {
	RuleID         string    `json:"rule_id"`
	RuleName       string    `json:"rule_name"`
	CurrentUses    int64     `json:"current_uses"`
	MaxUses        *int64    `json:"max_uses,omitempty"`
	UsageRemaining *int64    `json:"usage_remaining,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}
