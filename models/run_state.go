package models

type Status string

const (
	StatusIdle         Status = "idle"
	StatusFetchingData Status = "fetching_data"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
)

// Valid reports whether s is one of the known run statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusFetchingData, StatusRunning, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Active reports whether a run is in flight.
func (s Status) Active() bool {
	return s == StatusFetchingData || s == StatusRunning
}

// FinalStep is the step reached once the decision stage has folded its output.
const FinalStep = 5

// RunState describes one analysis run. It is owned by a single caller and
// passed by value between operations.
type RunState struct {
	Status           Status            `json:"status"`
	CurrentStep      int               `json:"currentStep"`
	StockSymbol      string            `json:"stockSymbol"`
	StockDataContext string            `json:"stockDataContext"`
	Outputs          map[Role]string   `json:"outputs"`
	AgentConfigs     AgentConfigs      `json:"agentConfigs"`
	APIKeys          map[string]string `json:"-"`
	Error            string            `json:"error,omitempty"`
}

// NewRunState returns an idle state seeded with a copy of defaults.
func NewRunState(defaults AgentConfigs) RunState {
	return RunState{
		Status:       StatusIdle,
		Outputs:      map[Role]string{},
		AgentConfigs: defaults.Clone(),
		APIKeys:      map[string]string{},
	}
}

// Clone returns a deep copy of s.
func (s RunState) Clone() RunState {
	out := s
	out.Outputs = CopyOutputs(s.Outputs)
	out.AgentConfigs = s.AgentConfigs.Clone()
	out.APIKeys = CopyCredentials(s.APIKeys)
	return out
}

// Persistable strips credentials and the error message.
func (s RunState) Persistable() PersistedState {
	return PersistedState{
		Status:           s.Status,
		CurrentStep:      s.CurrentStep,
		StockSymbol:      s.StockSymbol,
		StockDataContext: s.StockDataContext,
		Outputs:          CopyOutputs(s.Outputs),
		AgentConfigs:     s.AgentConfigs.Clone(),
	}
}

// PersistedState is the subset of RunState written to durable storage.
// It has no credential or error fields so neither can leak into a snapshot.
type PersistedState struct {
	Status           Status          `json:"status"`
	CurrentStep      int             `json:"currentStep"`
	StockSymbol      string          `json:"stockSymbol"`
	StockDataContext string          `json:"stockDataContext"`
	Outputs          map[Role]string `json:"outputs"`
	AgentConfigs     AgentConfigs    `json:"agentConfigs"`
}

// PersistedSnapshot is the versioned on-disk form of the current run.
type PersistedSnapshot struct {
	Version   string         `json:"version"`
	Timestamp int64          `json:"timestamp"`
	State     PersistedState `json:"state"`
}

func CopyOutputs(in map[Role]string) map[Role]string {
	out := make(map[Role]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func CopyCredentials(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// StageInput is what every stage executor receives.
type StageInput struct {
	Symbol       string
	PriorOutputs map[Role]string
	AgentConfigs AgentConfigs
	Credentials  map[string]string
	Context      string
}
