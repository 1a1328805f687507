package domain

import "github.com/shopspring/decimal"

// DisplayPlaces is the number of decimal places kept on displayed amounts.
const DisplayPlaces = 2

var hundred = decimal.NewFromInt(100)

// percentFactor returns 1 + sign*p/100 without rounding.
func percentFactor(p decimal.Decimal, sign int64) decimal.Decimal {
	return decimal.NewFromInt(1).Add(p.Div(hundred).Mul(decimal.NewFromInt(sign)))
}

// LineTotal computes quantity * unit price with the item discount applied
// first and the tax applied on the discounted value. Only the result is
// rounded.
func LineTotal(item ServiceItem) decimal.Decimal {
	return item.Quantity.
		Mul(item.UnitPrice).
		Mul(percentFactor(item.DiscountPercentage, -1)).
		Mul(percentFactor(item.TaxPercentage, 1)).
		Round(DisplayPlaces)
}

// ServiceTotal is the sum of the line totals of a service.
func ServiceTotal(s Service) decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.Items {
		total = total.Add(LineTotal(it))
	}
	return total
}

// BudgetSubtotal is the sum of the service totals of a budget.
func BudgetSubtotal(b Budget) decimal.Decimal {
	total := decimal.Zero
	for _, s := range b.Services {
		total = total.Add(ServiceTotal(s))
	}
	return total
}

// BudgetTotal applies the global discount to the subtotal.
func BudgetTotal(b Budget) decimal.Decimal {
	return BudgetSubtotal(b).Mul(percentFactor(b.DiscountPercentage, -1)).Round(DisplayPlaces)
}

// Recalculate refreshes every cached total of the aggregate in place.
func Recalculate(b *Budget) {
	for i := range b.Services {
		s := &b.Services[i]
		for j := range s.Items {
			s.Items[j].Total = LineTotal(s.Items[j])
		}
		s.Total = ServiceTotal(*s)
	}
	b.Subtotal = BudgetSubtotal(*b)
	b.Total = BudgetTotal(*b)
	b.DiscountAmount = b.Subtotal.Sub(b.Total)
}
