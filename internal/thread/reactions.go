package thread

import "storyloom/internal/model"

// Tally is the aggregate of a thread's reaction rows for one viewer.
type Tally struct {
	Counts map[string]int  `json:"counts"`
	Mine   map[string]bool `json:"mine"`
}

// TallyReactions folds the raw reaction rows into per-kind totals and the
// viewer's own membership. Counts are zero-filled over the fixed kinds; rows
// with kinds outside the enumeration are ignored. A nil viewer (guest) gets
// an all-false membership set.
func TallyReactions(rows []*model.Reaction, viewerID *string) Tally {
	t := Tally{
		Counts: make(map[string]int, len(model.ReactionKinds)),
		Mine:   make(map[string]bool, len(model.ReactionKinds)),
	}
	for _, kind := range model.ReactionKinds {
		t.Counts[kind] = 0
		t.Mine[kind] = false
	}
	for _, r := range rows {
		if _, known := t.Counts[r.Kind]; !known {
			continue
		}
		t.Counts[r.Kind]++
		if viewerID != nil && r.UserID == *viewerID {
			t.Mine[r.Kind] = true
		}
	}
	return t
}
