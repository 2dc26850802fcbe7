package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/deckd/internal/layout"
	"github.com/jmylchreest/deckd/internal/model"
)

var deck = layout.Geometry{Rows: 3, Cols: 5}

func TestRoute_Confirmation(t *testing.T) {
	it, err := model.NewConfirmationItem("a", model.Confirmation{Choices: []model.Choice{
		{Label: "Allow", Behavior: model.BehaviorAllow},
		{Label: "Deny", Behavior: model.BehaviorDeny},
		{Label: "Always", Behavior: model.BehaviorAllow, Toggle: true},
	}})
	require.NoError(t, err)

	assert.Equal(t, Action{Kind: ActionChoose, Index: 0}, Route(it, 14, deck))
	assert.Equal(t, Action{Kind: ActionChoose, Index: 1}, Route(it, 12, deck))
	assert.Equal(t, Action{Kind: ActionToggle, Index: 2}, Route(it, 13, deck))
	assert.Equal(t, ActionNone, Route(it, 0, deck).Kind)
	assert.Equal(t, ActionNone, Route(it, 15, deck).Kind)
	assert.Equal(t, ActionNone, Route(it, -1, deck).Kind)
	assert.Equal(t, ActionNone, Route(nil, 14, deck).Kind)
}

func TestRoute_ConfirmationFollowsGeometry(t *testing.T) {
	it := confirmation(t, "a")
	small := layout.Geometry{Rows: 2, Cols: 3}
	assert.Equal(t, Action{Kind: ActionChoose, Index: 0}, Route(it, 5, small))
	assert.Equal(t, Action{Kind: ActionChoose, Index: 1}, Route(it, 4, small))
	assert.Equal(t, ActionNone, Route(it, 14, small).Kind)
}

func TestRoute_Interactive(t *testing.T) {
	it, err := model.NewInteractiveItem("a", model.Interactive{Questions: []model.Question{
		{Prompt: "q0", Options: []model.Option{{Label: "A"}, {Label: "B"}}},
		{Prompt: "q1", Options: []model.Option{{Label: "W"}, {Label: "X"}}},
	}})
	require.NoError(t, err)

	assert.Equal(t, Action{Kind: ActionSelect, Index: 1}, Route(it, 1, deck))
	assert.Equal(t, ActionCancel, Route(it, 4, deck).Kind)
	assert.Equal(t, ActionNext, Route(it, 14, deck).Kind)
	assert.Equal(t, ActionNone, Route(it, 2, deck).Kind)

	require.NoError(t, it.Answers.Next())
	assert.Equal(t, ActionBack, Route(it, 4, deck).Kind)

	require.NoError(t, it.Answers.Next())
	assert.Equal(t, ActionBack, Route(it, 4, deck).Kind)
	assert.Equal(t, ActionSubmit, Route(it, 14, deck).Kind)
	assert.Equal(t, ActionNone, Route(it, 0, deck).Kind)
}

func TestRoute_NoticeAnyKey(t *testing.T) {
	it := status(t, "a")
	assert.Equal(t, ActionDismiss, Route(it, 0, deck).Kind)
	assert.Equal(t, ActionDismiss, Route(it, 14, deck).Kind)
	assert.Equal(t, ActionNone, Route(it, 15, deck).Kind)
}

func TestApply_ToggleReplacesAllow(t *testing.T) {
	it, err := model.NewConfirmationItem("a", model.Confirmation{Choices: []model.Choice{
		{Label: "Allow", Behavior: model.BehaviorAllow},
		{Label: "Deny", Behavior: model.BehaviorDeny},
		{Label: "Always", Behavior: model.BehaviorAllow, Toggle: true},
	}})
	require.NoError(t, err)

	out := apply(it, Action{Kind: ActionToggle, Index: 2})
	assert.False(t, out.resolved)
	assert.True(t, it.ToggleActive)
	assert.Equal(t, uint64(1), it.Rev)

	out = apply(it, Action{Kind: ActionChoose, Index: 1})
	require.True(t, out.resolved)
	assert.Equal(t, "Deny", out.result.Decision.Choice.Label, "deny is never replaced")

	out = apply(it, Action{Kind: ActionChoose, Index: 0})
	require.True(t, out.resolved)
	assert.Equal(t, "Always", out.result.Decision.Choice.Label)
}

func TestApply_Paging(t *testing.T) {
	it, err := model.NewInteractiveItem("a", model.Interactive{Questions: []model.Question{
		{Prompt: "q0", Options: []model.Option{{Label: "A"}}},
	}})
	require.NoError(t, err)

	assert.False(t, apply(it, Action{Kind: ActionBack}).paged, "back on first page is a no-op")
	assert.True(t, apply(it, Action{Kind: ActionNext}).paged)
	assert.False(t, apply(it, Action{Kind: ActionCancel}).resolved, "cancel only on first page")

	out := apply(it, Action{Kind: ActionSubmit})
	require.True(t, out.resolved)
	assert.Empty(t, out.result.Decision.Answers)
}
