package thread

import (
	"testing"

	"storyloom/internal/model"

	"github.com/stretchr/testify/assert"
)

func reaction(userID, kind string) *model.Reaction {
	return &model.Reaction{ChapterID: "ch1", UserID: userID, Kind: kind}
}

func TestTallyReactionsZeroFilled(t *testing.T) {
	tally := TallyReactions(nil, nil)

	assert.Equal(t, map[string]int{"like": 0, "love": 0, "laugh": 0}, tally.Counts)
	assert.Equal(t, map[string]bool{"like": false, "love": false, "laugh": false}, tally.Mine)
}

func TestTallyReactionsCountsAndMembership(t *testing.T) {
	rows := []*model.Reaction{
		reaction("u1", model.ReactionLike),
		reaction("u2", model.ReactionLike),
		reaction("u1", model.ReactionLove),
	}

	viewer := "u1"
	tally := TallyReactions(rows, &viewer)

	assert.Equal(t, 2, tally.Counts["like"])
	assert.Equal(t, 1, tally.Counts["love"])
	assert.Equal(t, 0, tally.Counts["laugh"])
	assert.True(t, tally.Mine["like"])
	assert.True(t, tally.Mine["love"])
	assert.False(t, tally.Mine["laugh"])
}

func TestTallyReactionsGuestViewer(t *testing.T) {
	rows := []*model.Reaction{reaction("u1", model.ReactionLike)}

	tally := TallyReactions(rows, nil)

	assert.Equal(t, 1, tally.Counts["like"])
	assert.False(t, tally.Mine["like"])
}

func TestTallyReactionsIgnoresUnknownKinds(t *testing.T) {
	rows := []*model.Reaction{
		reaction("u1", model.ReactionLike),
		reaction("u2", "angry"),
	}

	tally := TallyReactions(rows, nil)

	assert.Equal(t, 1, tally.Counts["like"])
	_, exists := tally.Counts["angry"]
	assert.False(t, exists)
}
