package calculator

import (
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/meridian/internal/tax/domain"
)

var hundred = decimal.NewFromInt(100)

// Calculator computes tax for monetary amounts. Configured rates are held
// in memory; jurisdiction lookups are cached until a rate is added for that
// jurisdiction. Safe for concurrent use.
type Calculator struct {
	mu    sync.RWMutex
	rates []taxdomain.TaxRate
	cache map[string][]taxdomain.TaxRate
}

func New() *Calculator {
	return &Calculator{
		cache: make(map[string][]taxdomain.TaxRate),
	}
}

// AddRate registers a tax rate and invalidates the cached lookup for its
// jurisdiction. A global rate invalidates every cached jurisdiction.
func (c *Calculator) AddRate(rate taxdomain.TaxRate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rates = append(c.rates, rate)
	if rate.Jurisdiction == taxdomain.JurisdictionGlobal {
		c.cache = make(map[string][]taxdomain.TaxRate)
		return
	}
	delete(c.cache, rate.Jurisdiction)
}

// RatesFor resolves the configured rates for a jurisdiction, including
// global rates. Threshold filtering happens per amount at calculation time.
func (c *Calculator) RatesFor(jurisdiction string) []taxdomain.TaxRate {
	c.mu.RLock()
	if cached, ok := c.cache[jurisdiction]; ok {
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.cache[jurisdiction]; ok {
		return cached
	}

	resolved := lo.Filter(c.rates, func(r taxdomain.TaxRate, _ int) bool {
		return r.Jurisdiction == jurisdiction || r.Jurisdiction == taxdomain.JurisdictionGlobal
	})
	c.cache[jurisdiction] = resolved
	return resolved
}

// Calculate computes exclusive tax on amount for a jurisdiction.
func (c *Calculator) Calculate(amount int64, jurisdiction string) taxdomain.CalculationResult {
	return c.CalculateWithRates(amount, c.RatesFor(jurisdiction), false)
}

// ReverseCalculate treats totalAmount as tax-inclusive and extracts the tax
// portion, deriving the subtotal by division.
func (c *Calculator) ReverseCalculate(totalAmount int64, jurisdiction string) taxdomain.CalculationResult {
	return c.CalculateWithRates(totalAmount, c.RatesFor(jurisdiction), true)
}

// CalculateWithRates computes tax on amount using an explicit rate set,
// bypassing the jurisdiction lookup. Non-compound rates apply against the
// base subtotal; compound rates then apply, in order, against the running
// subtotal-plus-tax. Each line is rounded half-up to a minor unit before
// summing.
func (c *Calculator) CalculateWithRates(amount int64, rates []taxdomain.TaxRate, inclusive bool) taxdomain.CalculationResult {
	if amount <= 0 {
		return taxdomain.CalculationResult{Breakdown: []taxdomain.TaxLine{}}
	}

	if inclusive {
		return calculateInclusive(amount, rates)
	}
	return calculateExclusive(amount, rates)
}

func calculateExclusive(amount int64, rates []taxdomain.TaxRate) taxdomain.CalculationResult {
	applicable := filterByThreshold(rates, decimal.NewFromInt(amount))
	lines, taxAmount := breakdown(decimal.NewFromInt(amount), applicable)

	return taxdomain.CalculationResult{
		Subtotal:    amount,
		TaxAmount:   taxAmount,
		TotalAmount: amount + taxAmount,
		Breakdown:   lines,
	}
}

func calculateInclusive(totalAmount int64, rates []taxdomain.TaxRate) taxdomain.CalculationResult {
	total := decimal.NewFromInt(totalAmount)

	// Derive the base with all candidate rates first, then drop rates whose
	// threshold the derived base does not reach and derive again.
	base := total.Div(combinedFactor(rates))
	applicable := filterByThreshold(rates, base)
	if len(applicable) != len(rates) {
		base = total.Div(combinedFactor(applicable))
	}

	lines, taxAmount := breakdown(base, applicable)

	return taxdomain.CalculationResult{
		Subtotal:    totalAmount - taxAmount,
		TaxAmount:   taxAmount,
		TotalAmount: totalAmount,
		Breakdown:   lines,
	}
}

// breakdown computes per-rate tax lines against a base amount: non-compound
// rates each against the base, compound rates in order against the running
// total of base plus previously applied tax.
func breakdown(base decimal.Decimal, rates []taxdomain.TaxRate) ([]taxdomain.TaxLine, int64) {
	lines := make([]taxdomain.TaxLine, 0, len(rates))
	var taxAmount int64

	for _, rate := range rates {
		if rate.IsCompound {
			continue
		}
		amount := base.Mul(rate.Rate).Div(hundred).Round(0).IntPart()
		taxAmount += amount
		lines = append(lines, taxLine(rate, amount))
	}

	running := base.Add(decimal.NewFromInt(taxAmount))
	for _, rate := range rates {
		if !rate.IsCompound {
			continue
		}
		amount := running.Mul(rate.Rate).Div(hundred).Round(0).IntPart()
		taxAmount += amount
		running = running.Add(decimal.NewFromInt(amount))
		lines = append(lines, taxLine(rate, amount))
	}

	return lines, taxAmount
}

// EffectiveRate returns the combined percentage rate for a jurisdiction:
// the sum of non-compound rates, with each compound rate multiplying the
// accumulated factor in order.
func (c *Calculator) EffectiveRate(jurisdiction string) decimal.Decimal {
	return effectiveRate(c.RatesFor(jurisdiction))
}

func effectiveRate(rates []taxdomain.TaxRate) decimal.Decimal {
	return combinedFactor(rates).Sub(decimal.NewFromInt(1)).Mul(hundred)
}

// combinedFactor is (1 + sum of non-compound rates/100) multiplied by
// (1 + rate/100) for each compound rate in order.
func combinedFactor(rates []taxdomain.TaxRate) decimal.Decimal {
	sum := decimal.Zero
	for _, rate := range rates {
		if !rate.IsCompound {
			sum = sum.Add(rate.Rate)
		}
	}

	factor := decimal.NewFromInt(1).Add(sum.Div(hundred))
	for _, rate := range rates {
		if rate.IsCompound {
			factor = factor.Mul(decimal.NewFromInt(1).Add(rate.Rate.Div(hundred)))
		}
	}
	return factor
}

func filterByThreshold(rates []taxdomain.TaxRate, base decimal.Decimal) []taxdomain.TaxRate {
	return lo.Filter(rates, func(r taxdomain.TaxRate, _ int) bool {
		if r.ThresholdAmount == nil {
			return true
		}
		return base.GreaterThanOrEqual(decimal.NewFromInt(*r.ThresholdAmount))
	})
}

func taxLine(rate taxdomain.TaxRate, amount int64) taxdomain.TaxLine {
	return taxdomain.TaxLine{
		Name:         rate.Name,
		Rate:         rate.Rate,
		Amount:       amount,
		Jurisdiction: rate.Jurisdiction,
		IsCompound:   rate.IsCompound,
	}
}

// ratesForClass narrows a rate set by line-item tax class.
func ratesForClass(rates []taxdomain.TaxRate, taxClass string) []taxdomain.TaxRate {
	switch strings.ToLower(strings.TrimSpace(taxClass)) {
	case taxdomain.TaxClassZero:
		return nil
	case taxdomain.TaxClassReduced:
		return lo.Filter(rates, func(r taxdomain.TaxRate, _ int) bool {
			return strings.Contains(strings.ToLower(r.Name), taxdomain.TaxClassReduced)
		})
	default:
		return rates
	}
}
