// Package thread turns flat comment and reaction rows into the renderable
// shape a thread view needs: roots, per-parent reply lists, display order,
// and reaction tallies. Everything here is pure; the engine owns all I/O.
package thread

import (
	"sort"

	"storyloom/internal/content"
	"storyloom/internal/model"
)

// SortMode selects the display order of root comments.
type SortMode string

const (
	SortNew SortMode = "new" // newest first, as fetched
	SortOld SortMode = "old" // oldest first, as fetched
	SortTop SortMode = "top" // pinned first, then most loaded replies
)

// IsValidSortMode reports whether mode is one of the supported orders.
func IsValidSortMode(mode SortMode) bool {
	return mode == SortNew || mode == SortOld || mode == SortTop
}

// Assembled is the partition of one fetched comment set.
type Assembled struct {
	Roots           []*model.Comment
	RepliesByParent map[string][]*model.Comment
}

// Assemble partitions comments into roots and per-parent reply lists and
// applies the display order. Only one nesting level exists: replies are never
// looked up as parents. Reply lists are chronological regardless of the root
// order, so pages fetched newest-first still render conversations forward.
func Assemble(comments []*model.Comment, mode SortMode) Assembled {
	roots := make([]*model.Comment, 0, len(comments))
	replies := make(map[string][]*model.Comment)

	for _, c := range comments {
		if c.ParentID == nil {
			roots = append(roots, c)
		} else {
			replies[*c.ParentID] = append(replies[*c.ParentID], c)
		}
	}

	for parentID := range replies {
		list := replies[parentID]
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		})
	}

	if mode == SortTop {
		orderTop(roots, replies)
	}

	return Assembled{Roots: roots, RepliesByParent: replies}
}

// orderTop re-sorts the already-fetched roots in place: pinned before
// unpinned, then more loaded replies first, stable otherwise. Reply counts
// come from the loaded set only, not a global count.
func orderTop(roots []*model.Comment, replies map[string][]*model.Comment) {
	sort.SliceStable(roots, func(i, j int) bool {
		pi, pj := content.IsPinned(roots[i]), content.IsPinned(roots[j])
		if pi != pj {
			return pi
		}
		return len(replies[roots[i].ID]) > len(replies[roots[j].ID])
	})
}
