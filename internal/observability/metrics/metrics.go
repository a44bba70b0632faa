package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels attached to every metric.
type Config struct {
	ServiceName string
	Environment string
}

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// BillingMetrics counts reconciliation and pricing operations by outcome.
type BillingMetrics struct {
	reconciliationOps *prometheus.CounterVec
	pricingRuleOps    *prometheus.CounterVec
	priceCalculations *prometheus.CounterVec
	taxCalculations   *prometheus.CounterVec
	paymentRetries    *prometheus.CounterVec
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

// Billing returns the singleton billing metrics registry.
func Billing() *BillingMetrics {
	return BillingWithConfig(Config{})
}

// BillingWithConfig returns the singleton billing metrics registry using
// config labels.
func BillingWithConfig(cfg Config) *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = newBillingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return billingMetrics
}

// ResetBillingMetricsForTest resets the billing metrics singleton for tests.
func ResetBillingMetricsForTest() {
	billingMetricsOnce = sync.Once{}
	billingMetrics = nil
}

func newBillingMetrics(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "meridian"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	reconciliationOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "meridian_reconciliation_operations_total",
		Help:        "Reconciliation session operations by name and outcome.",
		ConstLabels: constLabels,
	}, []string{"operation", "outcome"})
	pricingRuleOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "meridian_pricing_rule_operations_total",
		Help:        "Pricing rule mutations by name and outcome.",
		ConstLabels: constLabels,
	}, []string{"operation", "outcome"})
	priceCalculations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "meridian_price_calculations_total",
		Help:        "Price calculations by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	taxCalculations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "meridian_tax_calculations_total",
		Help:        "Tax calculations by mode and outcome.",
		ConstLabels: constLabels,
	}, []string{"mode", "outcome"})
	paymentRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "meridian_payment_retries_total",
		Help:        "Recovery-wrapped payment retries by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})

	for _, collector := range []prometheus.Collector{
		reconciliationOps,
		pricingRuleOps,
		priceCalculations,
		taxCalculations,
		paymentRetries,
	} {
		if err := registerer.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}

	return &BillingMetrics{
		reconciliationOps: reconciliationOps,
		pricingRuleOps:    pricingRuleOps,
		priceCalculations: priceCalculations,
		taxCalculations:   taxCalculations,
		paymentRetries:    paymentRetries,
	}
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

func (m *BillingMetrics) IncReconciliationOp(operation string, err error) {
	if m == nil || m.reconciliationOps == nil {
		return
	}
	m.reconciliationOps.WithLabelValues(operation, outcome(err)).Inc()
}

func (m *BillingMetrics) IncPricingRuleOp(operation string, err error) {
	if m == nil || m.pricingRuleOps == nil {
		return
	}
	m.pricingRuleOps.WithLabelValues(operation, outcome(err)).Inc()
}

func (m *BillingMetrics) IncPriceCalculation(err error) {
	if m == nil || m.priceCalculations == nil {
		return
	}
	m.priceCalculations.WithLabelValues(outcome(err)).Inc()
}

func (m *BillingMetrics) IncTaxCalculation(mode string, err error) {
	if m == nil || m.taxCalculations == nil {
		return
	}
	m.taxCalculations.WithLabelValues(mode, outcome(err)).Inc()
}

func (m *BillingMetrics) IncPaymentRetry(err error) {
	if m == nil || m.paymentRetries == nil {
		return
	}
	m.paymentRetries.WithLabelValues(outcome(err)).Inc()
}
