package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	OrgID      snowflake.ID
	ProductID  string
	Category   string
	ActiveOnly bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rule *PricingRule) error
	FindByID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, id string) (*PricingRule, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]PricingRule, error)
	ListActive(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]PricingRule, error)
	Update(ctx context.Context, db *gorm.DB, rule *PricingRule) error
	// IncrementUsage bumps current_uses atomically at the storage layer so
	// concurrent price calculations cannot lose updates.
	IncrementUsage(ctx context.Context, db *gorm.DB, orgID snowflake.ID, id string) error
	ResetUsage(ctx context.Context, db *gorm.DB, orgID snowflake.ID, id string) error
}
