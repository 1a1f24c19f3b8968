package order

import "github.com/shopspring/decimal"

// DefaultTaxRate is the flat tax applied to every subtotal.
var DefaultTaxRate = decimal.RequireFromString("0.05")

// Pricing turns a subtotal and a coupon discount into order totals.
type Pricing struct {
	TaxRate decimal.Decimal
	// ClampDiscount caps the discount at subtotal+tax so totals are never
	// negative. Off by default: a fixed coupon larger than the order yields a
	// negative total.
	ClampDiscount bool
}

// Totals are the monetary fields of an order, each rounded to cents.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Price computes tax and total: total = subtotal + tax - discount.
func (p Pricing) Price(subtotal, discount decimal.Decimal) Totals {
	subtotal = subtotal.Round(2)
	discount = discount.Round(2)
	tax := subtotal.Mul(p.TaxRate).Round(2)

	gross := subtotal.Add(tax)
	if p.ClampDiscount && discount.GreaterThan(gross) {
		discount = gross
	}

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Discount: discount,
		Total:    gross.Sub(discount),
	}
}

// LineTotal is price × quantity.
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}
