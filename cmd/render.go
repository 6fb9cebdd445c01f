package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/yourusername/billdesk/billing"
	"github.com/yourusername/billdesk/models"
	"github.com/yourusername/billdesk/money"
)

var (
	accent  = lipgloss.Color("#2563EB")
	dim     = lipgloss.Color("#6B7280")
	success = lipgloss.Color("#22C55E")
	danger  = lipgloss.Color("#EF4444")
	warning = lipgloss.Color("#F59E0B")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	labelStyle   = lipgloss.NewStyle().Foreground(dim).Width(12)
	dimStyle     = lipgloss.NewStyle().Foreground(dim)
	successStyle = lipgloss.NewStyle().Foreground(success)
	errorStyle   = lipgloss.NewStyle().Foreground(danger).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(warning)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 2)

	statusColors = map[models.InvoiceStatus]lipgloss.Color{
		models.StatusDraft:            dim,
		models.StatusSent:             accent,
		models.StatusPaymentSubmitted: warning,
		models.StatusPartial:          warning,
		models.StatusPaid:             success,
		models.StatusCancelled:        danger,
	}
)

func statusBadge(s models.InvoiceStatus) string {
	return lipgloss.NewStyle().Bold(true).Foreground(statusColors[s]).Render(string(s))
}

func currencyFor(t money.Table, code string) money.Currency {
	c, err := t.Lookup(code)
	if err != nil {
		return money.Currency{Code: code, MinorUnits: 2, Symbol: code + " "}
	}
	return c
}

func renderBalance(inv *models.Invoice, bal *billing.Balance, currencies money.Table) string {
	cur := currencyFor(currencies, bal.Currency)
	rows := []string{
		titleStyle.Render(inv.InvoiceNumber) + "  " + statusBadge(inv.Status),
		"",
		labelStyle.Render("Total") + money.Format(bal.Total, cur),
		labelStyle.Render("Paid") + money.Format(bal.Paid, cur),
		labelStyle.Render("Remaining") + lipgloss.NewStyle().Bold(true).Render(money.Format(bal.Remaining, cur)),
		labelStyle.Render("Due") + inv.DueDate.Format(time.DateOnly),
	}
	return boxStyle.Render(strings.Join(rows, "\n")) + "\n"
}

func renderTickReport(report *billing.TickReport, now time.Time, currencies money.Table) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Recurrence tick"))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render(now.Format(time.RFC3339)))
	b.WriteString("\n\n")

	if len(report.Generated) == 0 {
		b.WriteString("  " + dimStyle.Render("No invoices were due.") + "\n")
	}
	for _, inv := range report.Generated {
		cur := currencyFor(currencies, inv.Currency)
		fmt.Fprintf(&b, "  %s %s  %s  %s  %s\n",
			successStyle.Render("✓"),
			inv.InvoiceNumber,
			inv.IssueDate.Format(time.DateOnly),
			money.Format(inv.Total, cur),
			statusBadge(inv.Status),
		)
	}
	for _, f := range report.Failures {
		period := "-"
		if !f.Period.IsZero() {
			period = f.Period.Format(time.DateOnly)
		}
		fmt.Fprintf(&b, "  %s template %s  period %s  %s\n",
			errorStyle.Render("✗"),
			f.TemplateID,
			period,
			warnStyle.Render(f.Err.Error()),
		)
	}

	b.WriteString("\n")
	summary := fmt.Sprintf("%d generated, %d failed", len(report.Generated), len(report.Failures))
	if len(report.Failures) > 0 {
		b.WriteString("  " + errorStyle.Render(summary) + "\n")
	} else {
		b.WriteString("  " + successStyle.Render(summary) + "\n")
	}
	return b.String()
}
