package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/smallbiznis/meridian/internal/pricing/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() pricingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rule *pricingdomain.PricingRule) error {
	return db.WithContext(ctx).Create(rule).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, id string) (*pricingdomain.PricingRule, error) {
	var rule pricingdomain.PricingRule
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&rule).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter pricingdomain.ListFilter) ([]pricingdomain.PricingRule, error) {
	stmt := db.WithContext(ctx).Model(&pricingdomain.PricingRule{}).
		Where("org_id = ?", filter.OrgID)

	if filter.ActiveOnly {
		stmt = stmt.Where("is_active = ?", true)
	}

	var rules []pricingdomain.PricingRule
	if err := stmt.Order("priority DESC, created_at ASC, id ASC").Find(&rules).Error; err != nil {
		return nil, err
	}

	// Product/category targeting lives in JSON columns; filter in memory.
	if filter.ProductID == "" && filter.Category == "" {
		return rules, nil
	}
	out := make([]pricingdomain.PricingRule, 0, len(rules))
	for _, rule := range rules {
		if rule.AppliesToAll ||
			(filter.ProductID != "" && contains(rule.ProductIDs, filter.ProductID)) ||
			(filter.Category != "" && contains(rule.Categories, filter.Category)) {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]pricingdomain.PricingRule, error) {
	var rules []pricingdomain.PricingRule
	err := db.WithContext(ctx).
		Where("org_id = ? AND is_active = ?", orgID, true).
		Order("priority DESC, created_at ASC, id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, rule *pricingdomain.PricingRule) error {
	rule.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).
		Where("org_id = ?", rule.OrgID).
		Save(rule).Error
}

func (r *repo) IncrementUsage(ctx context.Context, db *gorm.DB, orgID snowflake.ID, id string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE pricing_rules
		 SET current_uses = current_uses + 1, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		time.Now().UTC(), orgID, id,
	).Error
}

func (r *repo) ResetUsage(ctx context.Context, db *gorm.DB, orgID snowflake.ID, id string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE pricing_rules
		 SET current_uses = 0, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		time.Now().UTC(), orgID, id,
	).Error
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
