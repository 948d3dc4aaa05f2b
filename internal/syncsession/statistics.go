package syncsession

import (
	"time"

	"synccal/internal/model"
)

// Statistics is the dashboard summary derived from session state.
type Statistics struct {
	TotalSyncs        int        `json:"totalSyncs"`
	SyncsLast24Hours  int        `json:"syncsLast24Hours"`
	SuccessfulSyncs   int        `json:"successfulSyncs"`
	FailedSyncs       int        `json:"failedSyncs"`
	PendingConflicts  int        `json:"pendingConflicts"`
	ResolvedConflicts int        `json:"resolvedConflicts"`
	LastSyncTime      *time.Time `json:"lastSyncTime"`
	NextSyncTime      *time.Time `json:"nextSyncTime"`
	IsActive          bool       `json:"isActive"`
}

// Statistics summarizes the current state.
func (s *Session) Statistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Compute(s.state.clone(), s.now())
}

// Compute derives Statistics from st as of now. History counts only cover
// the retained window. Every conflict that is not pending counts as
// resolved.
func Compute(st State, now time.Time) Statistics {
	stats := Statistics{
		TotalSyncs:   len(st.History),
		LastSyncTime: st.LastSync,
		NextSyncTime: st.NextSync,
		IsActive:     st.IsActive,
	}

	dayAgo := now.Add(-24 * time.Hour)
	for _, e := range st.History {
		if e.Timestamp.After(dayAgo) && !e.Timestamp.After(now) {
			stats.SyncsLast24Hours++
		}
		if e.Success {
			stats.SuccessfulSyncs++
		} else {
			stats.FailedSyncs++
		}
	}

	for _, c := range st.Conflicts {
		if c.Status == model.ConflictPending {
			stats.PendingConflicts++
		} else {
			stats.ResolvedConflicts++
		}
	}
	return stats
}
