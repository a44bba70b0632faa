package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/meridian/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/meridian/internal/payment/domain"
	productdomain "github.com/smallbiznis/meridian/internal/product/domain"
	recondomain "github.com/smallbiznis/meridian/internal/reconciliation/domain"
)

type createBankAccountRequest struct {
	Name          string `json:"name" binding:"required"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number" binding:"required"`
	Currency      string `json:"currency"`
}

func (s *Server) CreateBankAccount(c *gin.Context) {
	var req createBankAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrMissingOrg)
		return
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	account := &paymentdomain.BankAccount{
		ID:            s.genID.Generate(),
		OrgID:         orgID,
		Name:          strings.TrimSpace(req.Name),
		BankName:      strings.TrimSpace(req.BankName),
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		Currency:      currency,
		IsActive:      true,
	}
	if err := s.paymentRepo.InsertBankAccount(c.Request.Context(), s.db, account); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": account})
}

type createManualPaymentRequest struct {
	BankAccountID string     `json:"bank_account_id" binding:"required"`
	Reference     string     `json:"reference"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	PaymentDate   *time.Time `json:"payment_date,omitempty"`
}

func (s *Server) CreateManualPayment(c *gin.Context) {
	var req createManualPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrMissingOrg)
		return
	}

	accountID, err := snowflake.ParseString(strings.TrimSpace(req.BankAccountID))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	account, err := s.paymentRepo.FindBankAccountByID(c.Request.Context(), s.db, orgID, accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if account == nil {
		AbortWithError(c, paymentdomain.ErrBankAccountNotFound)
		return
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = account.Currency
	}
	paymentDate := time.Now().UTC()
	if req.PaymentDate != nil {
		paymentDate = *req.PaymentDate
	}

	payment := &paymentdomain.ManualPayment{
		ID:            s.genID.Generate(),
		OrgID:         orgID,
		BankAccountID: accountID,
		Reference:     strings.TrimSpace(req.Reference),
		Amount:        req.Amount,
		Currency:      currency,
		Status:        paymentdomain.PaymentStatusPending,
		PaymentDate:   paymentDate,
	}
	if err := s.paymentRepo.InsertPayment(c.Request.Context(), s.db, payment); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

type retryPaymentRequest struct {
	MaxAttempts int `json:"max_attempts"`
}

func (s *Server) RetryPayment(c *gin.Context) {
	paymentID, err := pathID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req retryPaymentRequest
	_ = c.ShouldBindJSON(&req)

	result, err := s.reconSvc.RetryFailedPayment(c.Request.Context(), recondomain.RetryPaymentRequest{
		PaymentID:   paymentID,
		MaxAttempts: req.MaxAttempts,
	})
	s.metrics.IncPaymentRetry(err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"success":               result.Success,
		"payment_id":            result.PaymentID.String(),
		"attempts":              result.Attempts,
		"circuit_breaker_state": result.CircuitBreakerState,
		"recovery_context": gin.H{
			"state_key": result.RecoveryContext.StateKey(),
			"attempts":  result.RecoveryContext.Attempts(),
			"state":     result.RecoveryContext.State(),
		},
	}})
}

type createProductRequest struct {
	Name      string `json:"name" binding:"required"`
	Category  string `json:"category"`
	BasePrice int64  `json:"base_price" binding:"required"`
	Currency  string `json:"currency"`
}

func (s *Server) CreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrMissingOrg)
		return
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	product := &productdomain.Product{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		Name:      strings.TrimSpace(req.Name),
		Category:  strings.TrimSpace(req.Category),
		BasePrice: req.BasePrice,
		Currency:  currency,
		Active:    true,
	}
	if err := s.productRepo.Insert(c.Request.Context(), s.db, product); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": product})
}
