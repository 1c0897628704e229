package sales

import "github.com/shopspring/decimal"

// Totals is the monetary breakdown of a set of lines.
type Totals struct {
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Tax        decimal.Decimal
	Total      decimal.Decimal
	GrandTotal decimal.Decimal
}

// ComputeTotals returns subtotal = Σ price×qty, total = subtotal - discount and
// grandTotal = total + tax. A discount above the subtotal is rejected.
func ComputeTotals(items []LineItem, discount, tax decimal.Decimal) (Totals, error) {
	discount = discount.Round(2)
	tax = tax.Round(2)
	if discount.IsNegative() || tax.IsNegative() {
		return Totals{}, ErrInvalidAmount
	}
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Total())
	}
	subtotal = subtotal.Round(2)
	if discount.GreaterThan(subtotal) {
		return Totals{}, ErrDiscountExceedsSubtotal
	}
	total := subtotal.Sub(discount)
	return Totals{
		Subtotal:   subtotal,
		Discount:   discount,
		Tax:        tax,
		Total:      total,
		GrandTotal: total.Add(tax),
	}, nil
}

// RemainingAmount is what is still owed on a credit sale. Cash sales owe nothing.
func RemainingAmount(s Sale) decimal.Decimal {
	if !s.IsCredit {
		return decimal.Zero
	}
	rest := s.GrandTotal.Sub(s.PaidAmount)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// PaymentStatusOf derives the payment status from a sale snapshot.
func PaymentStatusOf(s Sale) PaymentStatus {
	switch {
	case !s.IsCredit:
		return PaymentStatusPaid
	case s.PaidAmount.IsZero():
		return PaymentStatusUnpaid
	case s.PaidAmount.GreaterThanOrEqual(s.GrandTotal):
		return PaymentStatusPaid
	default:
		return PaymentStatusPartial
	}
}

// FullyPaid reports whether the derived payment status is paid. A credit sale with a zero
// grand total and no payments stays unpaid.
func FullyPaid(s Sale) bool {
	return PaymentStatusOf(s) == PaymentStatusPaid
}

// Settled reports whether nothing is owed, whatever the credit flag says.
func Settled(s Sale) bool {
	return s.PaidAmount.GreaterThanOrEqual(s.GrandTotal)
}

// applyPayment clamps amount to the open balance, appends the record and flips the
// credit flag once the sale is paid off. It returns the amount actually applied.
func applyPayment(s *Sale, rec PaymentRecord) decimal.Decimal {
	open := s.GrandTotal.Sub(s.PaidAmount)
	applied := rec.Amount
	if applied.GreaterThan(open) {
		applied = open
	}
	rec.Amount = applied
	s.Payments = append(s.Payments, rec)
	s.PaidAmount = s.PaidAmount.Add(applied)
	if Settled(*s) {
		s.IsCredit = false
	}
	return applied
}
