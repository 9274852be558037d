package sync

import (
	"context"
	"time"

	"github.com/openwrt-feedsync/feedsync/internal/logger"
	"github.com/openwrt-feedsync/feedsync/internal/status"
)

// loadPreviousStatus returns the last persisted status, empty when there is none
// or it cannot be read
func (m *Manager) loadPreviousStatus(ctx context.Context) *status.RunStatus {
	previous, err := m.persistence.Load(ctx)
	if err != nil {
		logger.Warnf("Ignoring unreadable run status: %v", err)
		return &status.RunStatus{}
	}
	return previous
}

func (m *Manager) syncingStatus(runID string, start time.Time, previous *status.RunStatus) *status.RunStatus {
	return &status.RunStatus{
		RunID:               runID,
		Phase:               status.RunPhaseSyncing,
		Message:             "Sync in progress",
		Policy:              m.cfg.Policy,
		StartedAt:           &start,
		LastSuccessAt:       previous.LastSuccessAt,
		ConsecutiveFailures: previous.ConsecutiveFailures,
	}
}

func (m *Manager) finalStatus(result *Result, syncErr *Error, start time.Time, previous *status.RunStatus) *status.RunStatus {
	finished := m.now()
	s := &status.RunStatus{
		RunID:          result.RunID,
		Policy:         result.Policy,
		StartedAt:      &start,
		FinishedAt:     &finished,
		LastSuccessAt:  previous.LastSuccessAt,
		Counts:         result.Counts,
		Sources:        result.Sources,
		FailedPackages: result.FailedPackages,
	}

	if syncErr != nil {
		s.Phase = status.RunPhaseFailed
		s.Message = syncErr.Message
		s.ConsecutiveFailures = previous.ConsecutiveFailures + 1
		return s
	}

	s.Phase = status.RunPhaseComplete
	s.Message = "Sync completed successfully"
	if failed := result.FailedSources(); len(failed) > 0 || result.Counts.Failed > 0 {
		s.Message = "Sync completed with failures"
	}
	s.LastSuccessAt = &finished
	return s
}

// saveStatus persists s unless running dry. Failures are logged, never fatal.
func (m *Manager) saveStatus(ctx context.Context, s *status.RunStatus) {
	if m.dryRun {
		return
	}
	if err := m.persistence.Save(ctx, s); err != nil {
		logger.Warnf("Failed to persist run status: %v", err)
	}
}
