package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/meridian/internal/audit"
	auditdomain "github.com/smallbiznis/meridian/internal/audit/domain"
	"github.com/smallbiznis/meridian/internal/config"
	obsmetrics "github.com/smallbiznis/meridian/internal/observability/metrics"
	"github.com/smallbiznis/meridian/internal/payment"
	paymentdomain "github.com/smallbiznis/meridian/internal/payment/domain"
	"github.com/smallbiznis/meridian/internal/pricing"
	pricingdomain "github.com/smallbiznis/meridian/internal/pricing/domain"
	"github.com/smallbiznis/meridian/internal/product"
	productdomain "github.com/smallbiznis/meridian/internal/product/domain"
	"github.com/smallbiznis/meridian/internal/reconciliation"
	recondomain "github.com/smallbiznis/meridian/internal/reconciliation/domain"
	"github.com/smallbiznis/meridian/internal/recovery"
	"github.com/smallbiznis/meridian/internal/tax"
	taxcalculator "github.com/smallbiznis/meridian/internal/tax/calculator"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	tax.Module,
	recovery.Module,
	product.Module,
	pricing.Module,
	payment.Module,
	reconciliation.Module,
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin() *gin.Engine {
	return NewEngine()
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	auditSvc    auditdomain.Service
	taxCalc     *taxcalculator.Calculator
	pricingSvc  pricingdomain.Service
	reconSvc    recondomain.Service
	paymentRepo paymentdomain.Repository
	productRepo productdomain.Repository
	metrics     *obsmetrics.BillingMetrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	AuditSvc    auditdomain.Service
	TaxCalc     *taxcalculator.Calculator
	PricingSvc  pricingdomain.Service
	ReconSvc    recondomain.Service
	PaymentRepo paymentdomain.Repository
	ProductRepo productdomain.Repository
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		auditSvc:    p.AuditSvc,
		taxCalc:     p.TaxCalc,
		pricingSvc:  p.PricingSvc,
		reconSvc:    p.ReconSvc,
		paymentRepo: p.PaymentRepo,
		productRepo: p.ProductRepo,
		metrics: obsmetrics.BillingWithConfig(obsmetrics.Config{
			ServiceName: p.Cfg.AppName,
			Environment: p.Cfg.Environment,
		}),
	}
}

func registerRoutes(s *Server) {
	s.RegisterAPIRoutes()
}

func (s *Server) RegisterAPIRoutes() {
	v1 := s.engine.Group("/v1", OrgContext())

	recon := v1.Group("/reconciliations")
	recon.POST("", s.StartReconciliation)
	recon.GET("", s.ListReconciliations)
	recon.GET("/summary", s.ReconciliationSummary)
	recon.POST("/:id/payments", s.AddReconciledPayment)
	recon.POST("/:id/complete", s.CompleteReconciliation)
	recon.POST("/:id/approve", s.ApproveReconciliation)

	rules := v1.Group("/pricing")
	rules.POST("/rules", s.CreatePricingRule)
	rules.GET("/rules", s.ListPricingRules)
	rules.GET("/rules/:id", s.GetPricingRule)
	rules.PATCH("/rules/:id", s.UpdatePricingRule)
	rules.POST("/rules/:id/activate", s.ActivatePricingRule)
	rules.POST("/rules/:id/deactivate", s.DeactivatePricingRule)
	rules.POST("/rules/:id/reset-usage", s.ResetPricingRuleUsage)
	rules.GET("/rules/:id/usage", s.PricingRuleUsageStats)
	rules.POST("/rules/bulk-activate", s.BulkActivatePricingRules)
	rules.POST("/rules/bulk-deactivate", s.BulkDeactivatePricingRules)
	rules.POST("/calculate", s.CalculatePrice)
	rules.GET("/conflicts", s.DetectPricingConflicts)

	taxes := v1.Group("/tax")
	taxes.POST("/rates", s.AddTaxRate)
	taxes.POST("/calculate", s.CalculateTax)
	taxes.GET("/effective-rate", s.EffectiveTaxRate)

	payments := v1.Group("/payments")
	payments.POST("", s.CreateManualPayment)
	payments.POST("/:id/retry", s.RetryPayment)

	accounts := v1.Group("/bank-accounts")
	accounts.POST("", s.CreateBankAccount)

	products := v1.Group("/products")
	products.POST("", s.CreateProduct)
}
