package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// JurisdictionGlobal marks a rate that applies in every jurisdiction.
const JurisdictionGlobal = "*"

type TaxType string

const (
	TaxTypeSales TaxType = "sales"
	TaxTypeVAT   TaxType = "vat"
	TaxTypeGST   TaxType = "gst"
)

// Tax classes recognised by line-item calculation.
const (
	TaxClassStandard = "standard"
	TaxClassReduced  = "reduced"
	TaxClassZero     = "zero"
)

var (
	ErrInvalidRate = errors.New("invalid_tax_rate")
)

// TaxRate is an immutable description of a single tax.
// Rate is a percentage in [0, 100].
type TaxRate struct {
	Name            string
	Rate            decimal.Decimal
	Jurisdiction    string
	TaxType         TaxType
	IsCompound      bool
	IsInclusive     bool
	ThresholdAmount *int64
}

// NewTaxRate validates the percentage bounds at construction time.
func NewTaxRate(jurisdiction, name string, rate decimal.Decimal, taxType TaxType) (TaxRate, error) {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return TaxRate{}, ErrInvalidRate
	}
	return TaxRate{
		Name:         name,
		Rate:         rate,
		Jurisdiction: jurisdiction,
		TaxType:      taxType,
	}, nil
}

// AppliesAbove returns the rate with a minimum base amount attached.
func (r TaxRate) AppliesAbove(threshold int64) TaxRate {
	r.ThresholdAmount = &threshold
	return r
}

// Compound marks the rate as computed on subtotal plus prior taxes.
func (r TaxRate) Compound() TaxRate {
	r.IsCompound = true
	return r
}

// Inclusive marks the rate as already contained in quoted amounts.
func (r TaxRate) Inclusive() TaxRate {
	r.IsInclusive = true
	return r
}

// TaxLine is one entry of a tax breakdown. Amount is in minor currency units.
type TaxLine struct {
	Name         string          `json:"name"`
	Rate         decimal.Decimal `json:"rate"`
	Amount       int64           `json:"amount"`
	Jurisdiction string          `json:"jurisdiction"`
	IsCompound   bool            `json:"is_compound"`
}

// CalculationResult is the outcome of a tax calculation. All amounts are in
// minor currency units and TotalAmount == Subtotal + TaxAmount always holds.
type CalculationResult struct {
	Subtotal    int64     `json:"subtotal"`
	TaxAmount   int64     `json:"tax_amount"`
	TotalAmount int64     `json:"total_amount"`
	Breakdown   []TaxLine `json:"tax_breakdown"`
}

// LineItem is one invoice line submitted for per-item tax calculation.
type LineItem struct {
	Amount      int64  `json:"amount"`
	IsTaxExempt bool   `json:"is_tax_exempt"`
	TaxClass    string `json:"tax_class"`
}

// LineItemTax is a line item with its computed tax attached.
type LineItemTax struct {
	LineItem
	TaxAmount int64           `json:"tax_amount"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	Breakdown []TaxLine       `json:"tax_breakdown"`
}
