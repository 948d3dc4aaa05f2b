package conflict

import "synccal/internal/model"

type key struct {
	eventID    string
	kind       model.ConflictType
	externalID string
}

func keyOf(c model.EventConflict) key {
	k := key{eventID: c.EventID, kind: c.ConflictType}
	if c.ExternalEvent != nil {
		k.externalID = c.ExternalEvent.ExternalID()
		if k.externalID == "" {
			k.externalID = c.ExternalEvent.ID
		}
	}
	return k
}

// Fresh drops detected conflicts that duplicate a pending conflict in
// existing, or an earlier entry of detected.
func Fresh(existing, detected []model.EventConflict) []model.EventConflict {
	seen := make(map[key]struct{}, len(existing)+len(detected))
	for _, c := range existing {
		if c.Status == model.ConflictPending {
			seen[keyOf(c)] = struct{}{}
		}
	}

	out := make([]model.EventConflict, 0, len(detected))
	for _, c := range detected {
		k := keyOf(c)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}
