package models

type Decision string

const (
	DecisionBuy       Decision = "buy"
	DecisionSell      Decision = "sell"
	DecisionHold      Decision = "hold"
	DecisionAnalyzing Decision = "analyzing"
)

type HistoryRecord struct {
	ID          string          `json:"id"`
	StockSymbol string          `json:"stockSymbol"`
	Status      Status          `json:"status"`
	CurrentStep int             `json:"currentStep"`
	Timestamp   int64           `json:"timestamp"`
	CompletedAt *int64          `json:"completedAt,omitempty"`
	GMDecision  Decision        `json:"gmDecision,omitempty"`
	Outputs     map[Role]string `json:"outputs"`
}

// HistoryLedger is the versioned on-disk form of the history list.
type HistoryLedger struct {
	Version string          `json:"version"`
	Items   []HistoryRecord `json:"items"`
}
