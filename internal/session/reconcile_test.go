package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mygpt-backend/internal/model"
)

func pendingMessages(v View) []Message {
	var out []Message
	for _, m := range v.Messages {
		if m.Pending {
			out = append(out, m)
		}
	}
	return out
}

func TestMergeShowsUnconfirmedState(t *testing.T) {
	history := []model.Turn{userTurn("earlier")}
	s := Snapshot{
		State:        StateGenerating,
		Mode:         model.ModeText,
		Question:     "new question",
		CapturedText: "new question",
		Answer:       "partial",
	}

	v := Merge(history, s)
	require.Len(t, v.Messages, 3)

	pending := pendingMessages(v)
	require.Len(t, pending, 2)
	assert.Equal(t, model.RoleUser, pending[0].Role)
	assert.Equal(t, "new question", pending[0].Text)
	assert.Equal(t, model.RoleModel, pending[1].Role)
	assert.Equal(t, "partial", pending[1].Text)
	assert.False(t, v.Thinking)
}

func TestMergeHidesConfirmedTurns(t *testing.T) {
	history := []model.Turn{
		userTurn("question"),
		{Role: model.RoleModel, Text: "answer", ModelUsed: model.ModeText},
	}
	s := Snapshot{
		State:        StatePersisting,
		Question:     "question",
		CapturedText: "question",
		Answer:       "answer",
		Reveal:       true,
	}

	v := Merge(history, s)
	assert.Len(t, v.Messages, 2)
	assert.Empty(t, pendingMessages(v))
}

func TestMergeMatchesCapturedImage(t *testing.T) {
	history := []model.Turn{{Role: model.RoleUser, Text: "look", Img: "/a.png"}}

	v := Merge(history, Snapshot{Question: "look", CapturedText: "look", CapturedImage: "/b.png", State: StateGenerating})
	require.Len(t, pendingMessages(v), 1)
	assert.Equal(t, "/b.png", pendingMessages(v)[0].Img)

	v = Merge(history, Snapshot{Question: "look", CapturedText: "look", CapturedImage: "/a.png", State: StateGenerating})
	assert.Empty(t, pendingMessages(v))
}

func TestMergeAnswerVisibility(t *testing.T) {
	tests := []struct {
		name  string
		snap  Snapshot
		shown bool
	}{
		{"idle without reveal", Snapshot{State: StateIdle, Answer: "text"}, false},
		{"idle with reveal", Snapshot{State: StateIdle, Answer: "text", Reveal: true}, true},
		{"generating", Snapshot{State: StateGenerating, Answer: "text"}, true},
		{"persisting", Snapshot{State: StatePersisting, Answer: "text"}, true},
		{"blank answer", Snapshot{State: StateGenerating, Answer: "  ", Reveal: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Merge(nil, tt.snap)
			assert.Equal(t, tt.shown, len(pendingMessages(v)) == 1)
		})
	}
}

func TestMergeThinking(t *testing.T) {
	v := Merge(nil, Snapshot{State: StateGenerating})
	assert.True(t, v.Thinking)

	v = Merge(nil, Snapshot{State: StatePersisting})
	assert.False(t, v.Thinking)
}

func TestMergeModeHint(t *testing.T) {
	v := Merge(nil, Snapshot{Mode: model.ModeImage, Answer: MsgImageModeHint, Reveal: true})
	pending := pendingMessages(v)
	require.Len(t, pending, 1)
	assert.Equal(t, MsgImageModeHint, pending[0].Text)
	assert.Equal(t, model.ModeImage, pending[0].ModelUsed)
}
