package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoQuestions() []Question {
	return []Question{
		{Prompt: "q0", Options: []Option{{Label: "A"}, {Label: "B"}}},
		{Prompt: "q1", MultiSelect: true, Options: []Option{{Label: "Z"}, {Label: "X"}, {Label: "Y"}}},
	}
}

func TestAnswerState_RoundTrip(t *testing.T) {
	s := NewAnswerState(twoQuestions())
	assert.Equal(t, PhaseAnswering, s.Phase())
	assert.Equal(t, 0, s.Page())

	require.NoError(t, s.Select(0))
	require.NoError(t, s.Next())
	require.NoError(t, s.Select(1))
	require.NoError(t, s.Next())
	assert.Equal(t, PhaseConfirm, s.Phase())
	assert.Equal(t, 2, s.Page())

	answers, err := s.Submit()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"q0": "A", "q1": "X"}, answers)
	assert.Equal(t, PhaseResolved, s.Phase())
}

func TestAnswerState_SingleSelectReplaces(t *testing.T) {
	s := NewAnswerState(twoQuestions())
	require.NoError(t, s.Select(0))
	require.NoError(t, s.Select(1))
	assert.False(t, s.Selected(0))
	assert.True(t, s.Selected(1))
	assert.Equal(t, "B", s.Answers()["q0"])
}

func TestAnswerState_MultiSelectSortsAndToggles(t *testing.T) {
	s := NewAnswerState(twoQuestions())
	require.NoError(t, s.Next())
	require.NoError(t, s.Select(0))
	require.NoError(t, s.Select(2))
	require.NoError(t, s.Select(1))
	assert.Equal(t, "X, Y, Z", s.Answers()["q1"])

	require.NoError(t, s.Select(2))
	assert.Equal(t, "X, Z", s.Answers()["q1"])
}

func TestAnswerState_AnswersSurviveNavigation(t *testing.T) {
	s := NewAnswerState(twoQuestions())
	require.NoError(t, s.Select(1))
	require.NoError(t, s.Next())
	require.NoError(t, s.Next())
	require.NoError(t, s.Back())
	assert.Equal(t, 1, s.Page())
	require.NoError(t, s.Back())
	assert.Equal(t, 0, s.Page())
	assert.True(t, s.Selected(1))
}

func TestAnswerState_InvalidTransitions(t *testing.T) {
	s := NewAnswerState(twoQuestions())

	assert.ErrorIs(t, s.Back(), ErrInvalidTransition)
	_, err := s.Submit()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, s.Select(5), ErrInvalidTransition)

	require.NoError(t, s.Next())
	assert.ErrorIs(t, s.Cancel(), ErrInvalidTransition, "cancel only on first page")

	require.NoError(t, s.Next())
	assert.ErrorIs(t, s.Select(0), ErrInvalidTransition)
	assert.ErrorIs(t, s.Next(), ErrInvalidTransition)
}

func TestAnswerState_Cancel(t *testing.T) {
	s := NewAnswerState(twoQuestions())
	require.NoError(t, s.Cancel())
	assert.Equal(t, PhaseCancelled, s.Phase())
	assert.ErrorIs(t, s.Next(), ErrInvalidTransition)
}

func TestAnswerState_PartialSubmit(t *testing.T) {
	s := NewAnswerState(twoQuestions())
	require.NoError(t, s.Next())
	require.NoError(t, s.Next())
	answers, err := s.Submit()
	require.NoError(t, err)
	assert.Empty(t, answers)
}
