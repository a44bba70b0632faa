package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/meridian/internal/audit/domain"
	"github.com/smallbiznis/meridian/internal/orgcontext"
	recondomain "github.com/smallbiznis/meridian/internal/reconciliation/domain"
	"github.com/smallbiznis/meridian/pkg/db/pagination"
)

func (s *Service) List(ctx context.Context, req recondomain.ListRequest) (recondomain.ListResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return recondomain.ListResponse{}, auditdomain.ErrInvalidOrganization
	}

	var cursor *recondomain.ListCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return recondomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return recondomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return recondomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		cursor = &recondomain.ListCursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	sessions, err := s.repo.List(ctx, s.db, recondomain.ListFilter{
		OrgID:         orgID,
		Status:        req.Status,
		BankAccountID: req.BankAccountID,
		Cursor:        cursor,
		Limit:         int(pageSize),
	})
	if err != nil {
		return recondomain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(sessions, pageSize, func(session recondomain.PaymentReconciliation) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        session.ID.String(),
			CreatedAt: session.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(sessions) > int(pageSize) {
		sessions = sessions[:pageSize]
	}

	return recondomain.ListResponse{
		PageInfo:        *pageInfo,
		Reconciliations: sessions,
	}, nil
}

// Summary aggregates sessions created in the trailing windowDays window.
// Discrepancy totals use absolute values; the average is over completed and
// approved sessions only, since in-progress sessions have no discrepancy yet.
func (s *Service) Summary(ctx context.Context, windowDays int) (*recondomain.Summary, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, auditdomain.ErrInvalidOrganization
	}
	if windowDays <= 0 {
		windowDays = 30
	}

	since := s.clock.Now().AddDate(0, 0, -windowDays)
	sessions, err := s.repo.ListSince(ctx, s.db, orgID, since)
	if err != nil {
		return nil, err
	}

	summary := &recondomain.Summary{
		WindowDays:    windowDays,
		TotalSessions: int64(len(sessions)),
		CountByStatus: map[recondomain.Status]int64{},
	}

	var settled int64
	for i := range sessions {
		session := &sessions[i]
		summary.CountByStatus[session.Status]++
		summary.TotalReconciledItems += int64(len(session.ReconciledItems))

		if session.Status == recondomain.StatusInProgress {
			continue
		}
		settled++
		discrepancy := session.DiscrepancyAmount
		if discrepancy < 0 {
			discrepancy = -discrepancy
		}
		summary.TotalDiscrepancy += discrepancy
	}
	if settled > 0 {
		summary.AverageDiscrepancy = float64(summary.TotalDiscrepancy) / float64(settled)
	}

	return summary, nil
}
