package status

import "time"

// RunPhase represents the phase of a sync run
type RunPhase string

const (
	// RunPhaseSyncing means a run is in progress or was interrupted
	RunPhaseSyncing RunPhase = "Syncing"

	// RunPhaseComplete means the run finished; individual sources or packages may still have failed
	RunPhaseComplete RunPhase = "Complete"

	// RunPhaseFailed means the run aborted
	RunPhaseFailed RunPhase = "Failed"
)

// Counts tallies packages by outcome
type Counts struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Pruned  int `json:"pruned"`
}

// SourceState records the fetch result of one source
type SourceState struct {
	Name     string `json:"name"`
	Revision string `json:"revision,omitempty"`
	Packages int    `json:"packages"`
	Excluded int    `json:"excluded,omitempty"`
	Error    string `json:"error,omitempty"`
}

// PackageFailure records a package that could not be written
type PackageFailure struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Error  string `json:"error"`
}

// RunStatus is the report of the last sync run
type RunStatus struct {
	// RunID identifies the run in logs
	RunID string `json:"runId"`

	// Phase represents the outcome of the run
	Phase RunPhase `json:"phase"`

	// Message provides additional information about the run
	Message string `json:"message,omitempty"`

	// Policy is the merge policy the run used
	Policy string `json:"policy"`

	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	// LastSuccessAt is carried over from earlier runs until a run completes
	LastSuccessAt *time.Time `json:"lastSuccessAt,omitempty"`

	// ConsecutiveFailures counts failed runs since the last complete one
	ConsecutiveFailures int `json:"consecutiveFailures,omitempty"`

	Counts         Counts           `json:"counts"`
	Sources        []SourceState    `json:"sources,omitempty"`
	FailedPackages []PackageFailure `json:"failedPackages,omitempty"`
}

// FailedSources returns the names of sources that failed to fetch
func (s *RunStatus) FailedSources() []string {
	var failed []string
	for _, src := range s.Sources {
		if src.Error != "" {
			failed = append(failed, src.Name)
		}
	}
	return failed
}
