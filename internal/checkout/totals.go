package checkout

import (
	"github.com/rembon2016/cts-merchant-sub001/internal/model"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Totals are kept unrounded; rounding happens once, in Display or in the order payload.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	TaxPct   decimal.Decimal `json:"tax_pct"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals returns total = subtotal + subtotal*(taxPct/100).
func ComputeTotals(subtotal, taxPct decimal.Decimal) Totals {
	tax := subtotal.Mul(taxPct).Div(hundred)
	return Totals{
		Subtotal: subtotal,
		TaxPct:   taxPct,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}

// Display rounds every amount to whole rupiah for rendering.
func (t Totals) Display() Totals {
	return Totals{
		Subtotal: t.Subtotal.Round(0),
		TaxPct:   t.TaxPct,
		Tax:      t.Tax.Round(0),
		Total:    t.Total.Round(0),
	}
}

// SelectedSubtotal sums the subtotals of the selected items.
func SelectedSubtotal(items []model.SelectedCartItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal)
	}
	return total
}

// BuildPayload assembles the order from a session snapshot. Subtotal and tax are rounded
// up; the discount is always zero and the raw session cart goes out as items.
func BuildPayload(sess *model.Session, in SaveOrderInput) model.OrderPayload {
	totals := ComputeTotals(SelectedSubtotal(sess.Cart), sess.Tax)
	subTotal := totals.Subtotal.Ceil()
	taxAmount := totals.Tax.Ceil()

	payment := in.PaymentAmount
	if payment.IsZero() {
		payment = subTotal.Add(taxAmount)
	}

	return model.OrderPayload{
		BranchID:        sess.BranchActive,
		UserID:          sess.UserID,
		SubTotal:        subTotal,
		TaxAmount:       taxAmount,
		DiscountAmount:  decimal.Zero,
		PaymentMethodID: in.PaymentMethodID,
		PaymentAmount:   payment,
		DiscountID:      nil,
		CustomerID:      nil,
		Items:           sess.Cart,
	}
}
