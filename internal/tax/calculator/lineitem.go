package calculator

import (
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/meridian/internal/tax/domain"
)

// CalculateLineItems computes exclusive tax per line item. Tax-exempt items
// and items with the "zero" class carry no tax; the "reduced" class narrows
// the applicable rates to those whose name marks them as reduced.
func (c *Calculator) CalculateLineItems(items []taxdomain.LineItem, jurisdiction string) (int64, []taxdomain.LineItemTax) {
	rates := c.RatesFor(jurisdiction)

	var totalTax int64
	results := make([]taxdomain.LineItemTax, 0, len(items))

	for _, item := range items {
		if item.IsTaxExempt {
			results = append(results, taxdomain.LineItemTax{
				LineItem:  item,
				TaxRate:   decimal.Zero,
				Breakdown: []taxdomain.TaxLine{},
			})
			continue
		}

		classRates := ratesForClass(rates, item.TaxClass)
		result := c.CalculateWithRates(item.Amount, classRates, false)

		results = append(results, taxdomain.LineItemTax{
			LineItem:  item,
			TaxAmount: result.TaxAmount,
			TaxRate:   effectiveRate(filterByThreshold(classRates, decimal.NewFromInt(item.Amount))),
			Breakdown: result.Breakdown,
		})
		totalTax += result.TaxAmount
	}

	return totalTax, results
}
