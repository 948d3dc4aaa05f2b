package syncsession

import (
	"context"
	"errors"
	"fmt"

	"synccal/internal/conflict"
	appLog "synccal/internal/log"
	"synccal/internal/model"
)

// ResolveConflict resolves the conflict with the given id.
//
// An unknown id yields ErrNotFound and an unusable request (bad strategy,
// conflict no longer pending) yields ErrInvalidRequest; neither records
// history. Otherwise the resolution is handed to the Applier first: if that
// fails, a failed entry is recorded and the conflict stays pending.
func (s *Session) ResolveConflict(ctx context.Context, id string, strategy model.Strategy) (conflict.Resolution, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return conflict.Resolution{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	res, err := conflict.Resolve(s.state.Conflicts[i], strategy, s.now())
	applier := s.applier
	s.mu.Unlock()
	if err != nil {
		return conflict.Resolution{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if applier != nil {
		if err := applier.Apply(ctx, res); err != nil {
			s.recordApplyFailure(ctx, res, err)
			return conflict.Resolution{}, fmt.Errorf("apply %s to conflict %s: %w", strategy, id, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The lock was released around Apply; another caller may have won.
	i = s.indexLocked(id)
	if i < 0 {
		return conflict.Resolution{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.state.Conflicts[i].Status != model.ConflictPending {
		return conflict.Resolution{}, fmt.Errorf("%w: %w: %s", ErrInvalidRequest, conflict.ErrNotPending, id)
	}

	s.state.Conflicts[i] = res.Conflict
	res.Entry = s.appendLocked(res.Entry, res.Entry.Timestamp)
	s.metrics.RecordResolved(strategy)
	s.metrics.SetPendingConflicts(s.pendingLocked())

	appLog.Info("conflict resolved",
		"conflict_id", id,
		"event_id", res.Conflict.EventID,
		"type", string(res.Conflict.ConflictType),
		"strategy", string(strategy),
	)
	s.persistLocked(ctx)
	return res, nil
}

func (s *Session) recordApplyFailure(ctx context.Context, res conflict.Resolution, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(model.SyncHistoryEntry{
		Action:  model.ActionConflictResolved,
		EventID: res.Conflict.EventID,
		Details: fmt.Sprintf("Failed to resolve %s conflict on %q with %s",
			res.Conflict.ConflictType, res.Conflict.LocalEvent.Title, res.Strategy),
		Success: false,
		Error:   cause.Error(),
	}, s.now())
	appLog.Error("conflict resolution failed", cause,
		"conflict_id", res.Conflict.ID,
		"strategy", string(res.Strategy),
	)
	s.persistLocked(ctx)
}

// ItemFailure is one conflict that bulk resolution could not resolve.
type ItemFailure struct {
	ConflictID string `json:"conflictId"`
	EventID    string `json:"eventId"`
	Error      string `json:"error"`

	Err error `json:"-"`
}

// BulkResult reports the per-item outcome of ResolveAll. Successful items
// stay resolved regardless of later failures.
type BulkResult struct {
	Strategy  model.Strategy `json:"strategy"`
	Attempted int            `json:"attempted"`
	Resolved  []string       `json:"resolved"`
	Failures  []ItemFailure  `json:"failures"`
}

// OK reports whether every attempted conflict was resolved.
func (r BulkResult) OK() bool {
	return len(r.Failures) == 0
}

// ResolveAll applies strategy to every conflict that is pending when the
// call starts. Each item is resolved independently.
func (s *Session) ResolveAll(ctx context.Context, strategy model.Strategy) (BulkResult, error) {
	if !strategy.Valid() {
		return BulkResult{}, fmt.Errorf("%w: %w: %q", ErrInvalidRequest, conflict.ErrUnknownStrategy, strategy)
	}

	pending := s.Conflicts(model.ConflictPending)
	result := BulkResult{
		Strategy:  strategy,
		Attempted: len(pending),
		Resolved:  []string{},
		Failures:  []ItemFailure{},
	}

	for _, c := range pending {
		if err := ctx.Err(); err != nil {
			result.Failures = append(result.Failures, ItemFailure{
				ConflictID: c.ID, EventID: c.EventID, Error: err.Error(), Err: err,
			})
			continue
		}
		if _, err := s.ResolveConflict(ctx, c.ID, strategy); err != nil {
			result.Failures = append(result.Failures, ItemFailure{
				ConflictID: c.ID, EventID: c.EventID, Error: err.Error(), Err: err,
			})
			continue
		}
		result.Resolved = append(result.Resolved, c.ID)
	}

	if !result.OK() {
		appLog.Warn("bulk resolution partially failed",
			"strategy", string(strategy),
			"attempted", result.Attempted,
			"failed", len(result.Failures),
		)
	}
	return result, nil
}

// IsClientError reports whether err stems from the request itself rather
// than from applying it.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidRequest)
}
