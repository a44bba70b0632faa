package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/meridian/internal/clock"
	"github.com/smallbiznis/meridian/internal/config"
	"github.com/smallbiznis/meridian/internal/orgcontext"
	pricingdomain "github.com/smallbiznis/meridian/internal/pricing/domain"
	productdomain "github.com/smallbiznis/meridian/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Cfg         config.Config
	Repo        pricingdomain.Repository
	ProductRepo productdomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	cfg         config.PricingConfig
	repo        pricingdomain.Repository
	productRepo productdomain.Repository
}

func New(p Params) pricingdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("pricing.service"),
		clock:       p.Clock,
		cfg:         p.Cfg.Pricing,
		repo:        p.Repo,
		productRepo: p.ProductRepo,
	}
}

func (s *Service) CreateRule(ctx context.Context, req pricingdomain.CreateRuleRequest) (*pricingdomain.PricingRule, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, pricingdomain.ErrInvalidOrganization
	}

	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rule := &pricingdomain.PricingRule{
		ID:               newRuleID(),
		OrgID:            orgID,
		Name:             strings.TrimSpace(req.Name),
		Description:      strings.TrimSpace(req.Description),
		DiscountType:     req.DiscountType,
		DiscountValue:    req.DiscountValue,
		AppliesToAll:     req.AppliesToAll,
		ProductIDs:       datatypes.NewJSONSlice(req.ProductIDs),
		Categories:       datatypes.NewJSONSlice(req.Categories),
		CustomerSegments: datatypes.NewJSONSlice(req.CustomerSegments),
		MinQuantity:      req.MinQuantity,
		StartsAt:         req.StartsAt,
		EndsAt:           req.EndsAt,
		MaxUses:          req.MaxUses,
		Priority:         req.Priority,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Insert(ctx, s.db, rule); err != nil {
		return nil, err
	}

	s.log.Info("pricing rule created",
		zap.String("rule_id", rule.ID),
		zap.String("discount_type", string(rule.DiscountType)),
	)
	return rule, nil
}

func (s *Service) validateCreate(req pricingdomain.CreateRuleRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: name is required", pricingdomain.ErrInvalidRule)
	}
	if !req.DiscountType.Valid() {
		return fmt.Errorf("%w: unknown discount type %q", pricingdomain.ErrInvalidRule, req.DiscountType)
	}
	if req.DiscountValue.IsNegative() {
		return fmt.Errorf("%w: discount value must not be negative", pricingdomain.ErrInvalidRule)
	}
	if req.DiscountType == pricingdomain.Percentage {
		max := decimal.NewFromInt(s.cfg.MaxDiscountPercent)
		if req.DiscountValue.GreaterThan(max) {
			return fmt.Errorf("%w: percentage discount cannot exceed %s", pricingdomain.ErrInvalidRule, max)
		}
	}
	if !req.AppliesToAll && len(req.ProductIDs) == 0 && len(req.Categories) == 0 {
		return fmt.Errorf("%w: rule must apply to at least something", pricingdomain.ErrInvalidRule)
	}
	if req.MinQuantity != nil && *req.MinQuantity < 1 {
		return fmt.Errorf("%w: min quantity must be at least 1", pricingdomain.ErrInvalidRule)
	}
	if req.StartsAt != nil && req.EndsAt != nil && !req.EndsAt.After(*req.StartsAt) {
		return fmt.Errorf("%w: ends_at must be after starts_at", pricingdomain.ErrInvalidRule)
	}
	if req.MaxUses != nil && *req.MaxUses < 0 {
		return fmt.Errorf("%w: max uses must not be negative", pricingdomain.ErrInvalidRule)
	}
	return nil
}

func (s *Service) GetRule(ctx context.Context, id string) (*pricingdomain.PricingRule, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, pricingdomain.ErrInvalidOrganization
	}
	return s.findRule(ctx, orgID, id)
}

func (s *Service) findRule(ctx context.Context, orgID snowflake.ID, id string) (*pricingdomain.PricingRule, error) {
	rule, err := s.repo.FindByID(ctx, s.db, orgID, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, fmt.Errorf("%w: pricing rule not found", pricingdomain.ErrRuleNotFound)
	}
	return rule, nil
}

func (s *Service) ListRules(ctx context.Context, req pricingdomain.ListRulesRequest) ([]pricingdomain.PricingRule, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, pricingdomain.ErrInvalidOrganization
	}

	return s.repo.List(ctx, s.db, pricingdomain.ListFilter{
		OrgID:      orgID,
		ProductID:  strings.TrimSpace(req.ProductID),
		Category:   strings.TrimSpace(req.Category),
		ActiveOnly: req.ActiveOnly,
	})
}

func (s *Service) UpdateRule(ctx context.Context, req pricingdomain.UpdateRuleRequest) (*pricingdomain.PricingRule, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, pricingdomain.ErrInvalidOrganization
	}

	rule, err := s.findRule(ctx, orgID, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		rule.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		rule.Description = strings.TrimSpace(*req.Description)
	}
	if req.DiscountValue != nil {
		if req.DiscountValue.IsNegative() {
			return nil, fmt.Errorf("%w: discount value must not be negative", pricingdomain.ErrInvalidRule)
		}
		if rule.DiscountType == pricingdomain.Percentage {
			max := decimal.NewFromInt(s.cfg.MaxDiscountPercent)
			if req.DiscountValue.GreaterThan(max) {
				return nil, fmt.Errorf("%w: percentage discount cannot exceed %s", pricingdomain.ErrInvalidRule, max)
			}
		}
		rule.DiscountValue = *req.DiscountValue
	}
	if req.MinQuantity != nil {
		rule.MinQuantity = req.MinQuantity
	}
	if req.StartsAt != nil {
		rule.StartsAt = req.StartsAt
	}
	if req.EndsAt != nil {
		rule.EndsAt = req.EndsAt
	}
	if rule.StartsAt != nil && rule.EndsAt != nil && !rule.EndsAt.After(*rule.StartsAt) {
		return nil, fmt.Errorf("%w: ends_at must be after starts_at", pricingdomain.ErrInvalidRule)
	}
	if req.MaxUses != nil {
		rule.MaxUses = req.MaxUses
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}

	if err := s.repo.Update(ctx, s.db, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Service) ActivateRule(ctx context.Context, id string) (*pricingdomain.PricingRule, error) {
	return s.setActive(ctx, id, true)
}

func (s *Service) DeactivateRule(ctx context.Context, id string) (*pricingdomain.PricingRule, error) {
	return s.setActive(ctx, id, false)
}

func (s *Service) setActive(ctx context.Context, id string, active bool) (*pricingdomain.PricingRule, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, pricingdomain.ErrInvalidOrganization
	}

	rule, err := s.findRule(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if rule.IsActive == active {
		return rule, nil
	}

	rule.IsActive = active
	if err := s.repo.Update(ctx, s.db, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Service) ResetRuleUsage(ctx context.Context, id string) (*pricingdomain.PricingRule, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, pricingdomain.ErrInvalidOrganization
	}

	rule, err := s.findRule(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.ResetUsage(ctx, s.db, orgID, rule.ID); err != nil {
		return nil, err
	}
	rule.CurrentUses = 0
	return rule, nil
}

func (s *Service) GetRuleUsageStats(ctx context.Context, id string) (*pricingdomain.RuleUsageStats, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, pricingdomain.ErrInvalidOrganization
	}

	rule, err := s.findRule(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	return &pricingdomain.RuleUsageStats{
		RuleID:         rule.ID,
		RuleName:       rule.Name,
		CurrentUses:    rule.CurrentUses,
		MaxUses:        rule.MaxUses,
		UsageRemaining: rule.UsageRemaining(),
		IsActive:       rule.IsActive,
		CreatedAt:      rule.CreatedAt,
	}, nil
}

func (s *Service) BulkActivateRules(ctx context.Context, ids []string) (*pricingdomain.BulkResult, error) {
	return s.bulkSetActive(ctx, ids, true)
}

func (s *Service) BulkDeactivateRules(ctx context.Context, ids []string) (*pricingdomain.BulkResult, error) {
	return s.bulkSetActive(ctx, ids, false)
}

// bulkSetActive applies the single-rule operation independently per id; one
// failure does not abort the rest.
func (s *Service) bulkSetActive(ctx context.Context, ids []string, active bool) (*pricingdomain.BulkResult, error) {
	if _, ok := orgcontext.OrgIDFromContext(ctx); !ok {
		return nil, pricingdomain.ErrInvalidOrganization
	}

	result := &pricingdomain.BulkResult{}
	for _, id := range ids {
		if _, err := s.setActive(ctx, id, active); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

// newRuleID generates a rule_<12 hex> identifier.
func newRuleID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the platform entropy source is broken.
		panic(err)
	}
	return "rule_" + hex.EncodeToString(buf)
}
