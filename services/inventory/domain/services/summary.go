package services

import (
	"github.com/shopspring/decimal"

	"github.com/ghuser/farmstand/services/inventory/domain/models"
)

// CartSummary is the aggregate shown next to a cart.
type CartSummary struct {
	TotalItems int             `json:"total_items"`
	TotalPrice decimal.Decimal `json:"total_price"`
	LineCount  int             `json:"line_count"`
}

// Summarize totals a cart using the prices locked in on each line. A nil or
// empty cart yields a zero summary.
func Summarize(cart *models.Cart) CartSummary {
	sum := CartSummary{TotalPrice: decimal.Zero}
	if cart == nil {
		return sum
	}
	for _, line := range cart.Items {
		sum.TotalItems += line.Quantity
		sum.TotalPrice = sum.TotalPrice.Add(line.Subtotal())
	}
	sum.LineCount = len(cart.Items)
	return sum
}
