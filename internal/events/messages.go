package events

// Event types.
const (
	SimulationStarted   = "simulation:started"
	SimulationCompleted = "simulation:completed"
	SimulationFailed    = "simulation:failed"
	PlayerRefreshed     = "player:refreshed"
	DataReloaded        = "data:reloaded"
	CacheSwept          = "cache:swept"
)

// SimulationStartedEvent is sent when a run leaves the queue.
type SimulationStartedEvent struct {
	RunID      string  `json:"runId"`
	User       string  `json:"user,omitempty"`
	Mode       string  `json:"mode"`
	Preference string  `json:"preference"`
	Target     float64 `json:"target"`
}

// SimulationCompletedEvent is sent when a run produced an output, including
// stuck and error outcomes.
type SimulationCompletedEvent struct {
	RunID        string  `json:"runId"`
	User         string  `json:"user,omitempty"`
	Phase        string  `json:"phase"`
	FinalOverall float64 `json:"finalOverall"`
	Iterations   int     `json:"iterations"`
	DurationMs   float64 `json:"durationMs"`
	Error        string  `json:"error,omitempty"`
}

// PlayerRefreshedEvent is sent after upstream records were fetched.
type PlayerRefreshedEvent struct {
	User      string `json:"user"`
	B30Count  int    `json:"b30Count"`
	N20Count  int    `json:"n20Count"`
	FromCache bool   `json:"fromCache"`
}

// DataReloadedEvent is sent when a watched data file changed.
type DataReloadedEvent struct {
	File      string `json:"file"`
	NewSongs  int    `json:"newSongs"`
	Overrides int    `json:"overrides"`
	Error     string `json:"error,omitempty"`
}

// CacheSweptEvent is sent after expired cache rows were removed.
type CacheSweptEvent struct {
	Payloads    int64 `json:"payloads"`
	Simulations int64 `json:"simulations"`
}
