package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"stock-council/history"
	"stock-council/models"
)

// UI styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Background(lipgloss.Color("#1F2937")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1).
			Width(80)

	roleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	inProgressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)
)

func statusStyle(s models.Status) lipgloss.Style {
	switch s {
	case models.StatusCompleted:
		return successStyle
	case models.StatusError:
		return errorStyle
	case models.StatusFetchingData, models.StatusRunning:
		return inProgressStyle
	default:
		return pendingStyle
	}
}

func decisionStyle(d models.Decision) lipgloss.Style {
	switch d {
	case models.DecisionBuy:
		return successStyle
	case models.DecisionSell:
		return errorStyle
	case models.DecisionHold:
		return inProgressStyle
	default:
		return pendingStyle
	}
}

// renderProgress is one line per state change during a run.
func renderProgress(state models.RunState) string {
	line := fmt.Sprintf("[%d/%d] %s", state.CurrentStep, models.FinalStep,
		statusStyle(state.Status).Render(string(state.Status)))
	if state.StockSymbol != "" {
		line += " " + state.StockSymbol
	}
	if n := len(state.Outputs); n > 0 {
		line += pendingStyle.Render(fmt.Sprintf(" (%d reports)", n))
	}
	return line
}

// renderReport prints the market context and every participant's output.
func renderReport(state models.RunState) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Stock Council: "+state.StockSymbol) + "\n\n")
	if state.Status == models.StatusError {
		b.WriteString(errorStyle.Render("Error: "+state.Error) + "\n")
	}
	if state.StockDataContext != "" {
		b.WriteString(sectionStyle.Render(state.StockDataContext) + "\n")
	}
	b.WriteString(renderOutputs(state.Outputs))

	if gm, ok := state.Outputs[models.RoleGeneralManager]; ok {
		d := history.ClassifyDecision(gm)
		b.WriteString("\nDecision: " + decisionStyle(d).Render(strings.ToUpper(string(d))) + "\n")
	}
	return b.String()
}

func renderOutputs(outputs map[models.Role]string) string {
	var b strings.Builder
	for _, role := range sortedRoles(outputs) {
		b.WriteString(roleStyle.Render(string(role)) + "\n")
		b.WriteString(sectionStyle.Render(strings.TrimSpace(outputs[role])) + "\n")
	}
	return b.String()
}

// renderHistory is a compact table of past runs.
func renderHistory(items []models.HistoryRecord) string {
	if len(items) == 0 {
		return pendingStyle.Render("No past runs")
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("History") + "\n")
	for _, rec := range items {
		decision := rec.GMDecision
		if decision == "" {
			decision = models.DecisionAnalyzing
		}
		fmt.Fprintf(&b, "%s  %-9s %s %s %s\n",
			pendingStyle.Render(rec.ID),
			rec.StockSymbol,
			formatMillis(rec.Timestamp),
			statusStyle(rec.Status).Render(fmt.Sprintf("%-10s", rec.Status)),
			decisionStyle(decision).Render(string(decision)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderRecord prints a past run in full.
func renderRecord(rec models.HistoryRecord) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(rec.StockSymbol+" "+formatMillis(rec.Timestamp)) + "\n")
	fmt.Fprintf(&b, "Status: %s  Step: %d/%d\n",
		statusStyle(rec.Status).Render(string(rec.Status)), rec.CurrentStep, models.FinalStep)
	if rec.CompletedAt != nil {
		b.WriteString("Completed: " + formatMillis(*rec.CompletedAt) + "\n")
	}
	if rec.GMDecision != "" {
		b.WriteString("Decision: " + decisionStyle(rec.GMDecision).Render(strings.ToUpper(string(rec.GMDecision))) + "\n")
	}
	b.WriteString("\n" + renderOutputs(rec.Outputs))
	return b.String()
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}
