package history

import (
	"strings"

	"stock-council/models"
)

// Classifier derives a decision label from the final participant's output.
type Classifier func(text string) models.Decision

var decisionMarkers = []struct {
	marker   string
	decision models.Decision
}{
	{"DECISION: BUY", models.DecisionBuy},
	{"DECISION: SELL", models.DecisionSell},
	{"DECISION: HOLD", models.DecisionHold},
}

// ClassifyDecision looks for the first decision marker in text, ignoring
// case. Text without a marker is still being analyzed.
func ClassifyDecision(text string) models.Decision {
	upper := strings.ToUpper(text)
	for _, m := range decisionMarkers {
		if strings.Contains(upper, m.marker) {
			return m.decision
		}
	}
	return models.DecisionAnalyzing
}
