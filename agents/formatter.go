package agents

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"stock-council/models"
)

var (
	billion = decimal.NewFromInt(1_000_000_000)
	million = decimal.NewFromInt(1_000_000)
)

// ContextFormatter renders reference data as the plain-text market context
// every prompt receives.
type ContextFormatter struct{}

func NewContextFormatter() *ContextFormatter {
	return &ContextFormatter{}
}

// Format returns an empty string for nil data
func (f *ContextFormatter) Format(data *models.ReferenceData) string {
	if data == nil || data.Quote == nil {
		return ""
	}
	q := data.Quote

	var sb strings.Builder
	if q.Name != "" {
		fmt.Fprintf(&sb, "Name: %s (%s)\n", q.Name, q.Symbol)
	} else {
		fmt.Fprintf(&sb, "Symbol: %s\n", q.Symbol)
	}
	fmt.Fprintf(&sb, "Price: %s CNY\n", q.Price.StringFixed(2))
	fmt.Fprintf(&sb, "Change: %s (%s%%)\n", signed(q.Change), signed(q.ChangePercent))
	fmt.Fprintf(&sb, "Open: %s | Previous close: %s\n", q.Open.StringFixed(2), q.PreClose.StringFixed(2))
	fmt.Fprintf(&sb, "High: %s | Low: %s\n", q.High.StringFixed(2), q.Low.StringFixed(2))
	fmt.Fprintf(&sb, "Volume: %d shares\n", q.Volume)
	fmt.Fprintf(&sb, "Turnover: %s CNY\n", humanize(q.Amount))
	if !q.Timestamp.IsZero() {
		fmt.Fprintf(&sb, "Quote time: %s\n", q.Timestamp.Format("2006-01-02 15:04:05"))
	}

	if len(data.Headlines) > 0 {
		sb.WriteString("\nRecent headlines:\n")
		for _, h := range data.Headlines {
			sb.WriteString("- ")
			if h.PublishedAt != "" {
				sb.WriteString(h.PublishedAt)
				sb.WriteString(" ")
			}
			sb.WriteString(h.Title)
			sb.WriteString("\n")
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}

func humanize(d decimal.Decimal) string {
	switch {
	case d.Abs().GreaterThanOrEqual(billion):
		return d.Div(billion).StringFixed(2) + "B"
	case d.Abs().GreaterThanOrEqual(million):
		return d.Div(million).StringFixed(2) + "M"
	default:
		return d.StringFixed(2)
	}
}
