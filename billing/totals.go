package billing

import (
	"fmt"
	"strings"

	"github.com/yourusername/billdesk/models"
	"github.com/yourusername/billdesk/money"
)

// quantityPlaces matches the decimal(18,4) column.
const quantityPlaces = 4

// buildLineItems validates item inputs and prices them in minor units of c.
func buildLineItems(items []LineItemInput, c money.Currency) ([]models.LineItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("an invoice needs at least one line item")
	}
	lines := make([]models.LineItem, 0, len(items))
	for i, item := range items {
		desc := strings.TrimSpace(item.Description)
		if desc == "" {
			return nil, fmt.Errorf("item %d: description is required", i+1)
		}
		if !item.Quantity.IsPositive() {
			return nil, fmt.Errorf("item %d: quantity must be positive", i+1)
		}
		if !item.Quantity.Equal(item.Quantity.Truncate(quantityPlaces)) {
			return nil, fmt.Errorf("item %d: quantity allows at most %d decimals", i+1, quantityPlaces)
		}
		if item.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("item %d: unit price must not be negative", i+1)
		}
		unit, err := money.ToMinor(item.UnitPrice, c)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		total, err := money.LineTotal(item.Quantity, unit)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		lines = append(lines, models.LineItem{
			Position:    i + 1,
			Description: desc,
			Quantity:    item.Quantity,
			UnitPrice:   unit,
			LineTotal:   total,
		})
	}
	return lines, nil
}

// ComputeTotals returns subtotal, tax and total for the given lines. Tax is
// modeled but always zero.
func ComputeTotals(lines []models.LineItem) (subtotal, tax, total int64, err error) {
	amounts := make([]int64, len(lines))
	for i, l := range lines {
		amounts[i] = l.LineTotal
	}
	if subtotal, err = money.Sum(amounts...); err != nil {
		return 0, 0, 0, fmt.Errorf("invoice subtotal: %w", err)
	}
	return subtotal, 0, subtotal, nil
}

// applyLines replaces the invoice lines and recomputes its totals.
func applyLines(inv *models.Invoice, lines []models.LineItem) error {
	subtotal, tax, total, err := ComputeTotals(lines)
	if err != nil {
		return err
	}
	for i := range lines {
		lines[i].InvoiceID = inv.ID
	}
	inv.Items = lines
	inv.Subtotal, inv.Tax, inv.Total = subtotal, tax, total
	return nil
}

// checkTotals verifies the stored line and invoice totals agree.
func checkTotals(inv *models.Invoice) error {
	for _, l := range inv.Items {
		want, err := money.LineTotal(l.Quantity, l.UnitPrice)
		if err != nil {
			return fmt.Errorf("line %d: %w", l.Position, err)
		}
		if l.LineTotal != want {
			return fmt.Errorf("line %d total %d, expected %d", l.Position, l.LineTotal, want)
		}
	}
	subtotal, _, _, err := ComputeTotals(inv.Items)
	if err != nil {
		return err
	}
	if subtotal != inv.Subtotal {
		return fmt.Errorf("subtotal %d, lines sum to %d", inv.Subtotal, subtotal)
	}
	if want, err := money.Sum(inv.Subtotal, inv.Tax); err != nil || want != inv.Total {
		return fmt.Errorf("total %d does not equal subtotal %d plus tax %d", inv.Total, inv.Subtotal, inv.Tax)
	}
	return nil
}
