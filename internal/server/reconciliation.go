package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	recondomain "github.com/smallbiznis/meridian/internal/reconciliation/domain"
)

type startReconciliationRequest struct {
	BankAccountID    string    `json:"bank_account_id" binding:"required"`
	PeriodStart      time.Time `json:"period_start" binding:"required"`
	PeriodEnd        time.Time `json:"period_end" binding:"required"`
	OpeningBalance   int64     `json:"opening_balance"`
	StatementBalance int64     `json:"statement_balance"`
	StatementFileURL *string   `json:"statement_file_url,omitempty"`
}

func (s *Server) StartReconciliation(c *gin.Context) {
	var req startReconciliationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	accountID, err := snowflake.ParseString(strings.TrimSpace(req.BankAccountID))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	session, err := s.reconSvc.StartSession(c.Request.Context(), recondomain.StartSessionRequest{
		BankAccountID:    accountID,
		PeriodStart:      req.PeriodStart,
		PeriodEnd:        req.PeriodEnd,
		OpeningBalance:   req.OpeningBalance,
		StatementBalance: req.StatementBalance,
		StatementFileURL: req.StatementFileURL,
	})
	s.metrics.IncReconciliationOp("start", err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}

type addReconciledPaymentRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
	Notes     string `json:"notes"`
}

func (s *Server) AddReconciledPayment(c *gin.Context) {
	reconID, err := pathID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req addReconciledPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	paymentID, err := snowflake.ParseString(strings.TrimSpace(req.PaymentID))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	session, err := s.reconSvc.AddReconciledPayment(c.Request.Context(), recondomain.AddPaymentRequest{
		ReconciliationID: reconID,
		PaymentID:        paymentID,
		Notes:            req.Notes,
	})
	s.metrics.IncReconciliationOp("add_payment", err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}

type reconciliationNotesRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) CompleteReconciliation(c *gin.Context) {
	reconID, err := pathID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req reconciliationNotesRequest
	_ = c.ShouldBindJSON(&req)

	session, err := s.reconSvc.Complete(c.Request.Context(), recondomain.CompleteRequest{
		ReconciliationID: reconID,
		Notes:            req.Notes,
	})
	s.metrics.IncReconciliationOp("complete", err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}

func (s *Server) ApproveReconciliation(c *gin.Context) {
	reconID, err := pathID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req reconciliationNotesRequest
	_ = c.ShouldBindJSON(&req)

	session, err := s.reconSvc.Approve(c.Request.Context(), recondomain.ApproveRequest{
		ReconciliationID: reconID,
		Notes:            req.Notes,
	})
	s.metrics.IncReconciliationOp("approve", err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}

func (s *Server) ListReconciliations(c *gin.Context) {
	var req recondomain.ListRequest
	if err := c.ShouldBindQuery(&req.Pagination); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.Status = recondomain.Status(strings.TrimSpace(c.Query("status")))
	if raw := strings.TrimSpace(c.Query("bank_account_id")); raw != "" {
		accountID, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.BankAccountID = accountID
	}

	resp, err := s.reconSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Reconciliations,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) ReconciliationSummary(c *gin.Context) {
	windowDays := 30
	if raw := strings.TrimSpace(c.Query("window_days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		windowDays = parsed
	}

	summary, err := s.reconSvc.Summary(c.Request.Context(), windowDays)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func pathID(c *gin.Context) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(c.Param("id")))
}
