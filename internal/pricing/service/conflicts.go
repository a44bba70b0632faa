package service

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/smallbiznis/meridian/internal/orgcontext"
	pricingdomain "github.com/smallbiznis/meridian/internal/pricing/domain"
)

// DetectRuleConflicts reports advisory overlaps between active rules: pairs
// that can hit the same product during an overlapping validity window. The
// result never blocks rule creation.
func (s *Service) DetectRuleConflicts(ctx context.Context) ([]pricingdomain.RuleConflict, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, pricingdomain.ErrInvalidOrganization
	}

	rules, err := s.repo.ListActive(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}

	conflicts := []pricingdomain.RuleConflict{}
	for i := 0; i < len(rules); i++ {
		for j := i + 1; j < len(rules); j++ {
			a, b := &rules[i], &rules[j]
			if !targetsOverlap(a, b) || !windowsOverlap(a, b) {
				continue
			}

			conflict := pricingdomain.RuleConflict{
				Type:        "overlapping_target",
				RuleID1:     a.ID,
				RuleID2:     b.ID,
				Priority:    maxPriority(a.Priority, b.Priority),
				Description: fmt.Sprintf("rules %q and %q can apply to the same products at the same time", a.Name, b.Name),
			}
			if a.Priority == b.Priority {
				conflict.Type = "ambiguous_priority"
				conflict.Description = fmt.Sprintf("rules %q and %q overlap with equal priority %d; application order falls back to creation time", a.Name, b.Name, a.Priority)
			}
			conflicts = append(conflicts, conflict)
		}
	}
	return conflicts, nil
}

func targetsOverlap(a, b *pricingdomain.PricingRule) bool {
	if a.AppliesToAll || b.AppliesToAll {
		return true
	}
	if len(lo.Intersect([]string(a.ProductIDs), []string(b.ProductIDs))) > 0 {
		return true
	}
	return len(lo.Intersect([]string(a.Categories), []string(b.Categories))) > 0
}

// windowsOverlap treats a nil bound as open-ended.
func windowsOverlap(a, b *pricingdomain.PricingRule) bool {
	if a.EndsAt != nil && b.StartsAt != nil && a.EndsAt.Before(*b.StartsAt) {
		return false
	}
	if b.EndsAt != nil && a.StartsAt != nil && b.EndsAt.Before(*a.StartsAt) {
		return false
	}
	return true
}

func maxPriority(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
