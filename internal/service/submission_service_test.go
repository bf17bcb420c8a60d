package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-exam-engine/internal/model"
	"github.com/stemsi/exstem-exam-engine/internal/service"
)

func trueFalse(options []string, key model.Value) model.Question {
	return model.Question{ID: "tf", Type: model.QuestionTypeMultipleChoice, Options: options, CorrectAnswer: key, Points: 1}
}

func TestCoerceTrueFalse(t *testing.T) {
	c := service.NewCoercer([2]string{"Benar", "Salah"})

	cases := []struct {
		name string
		q    model.Question
		in   model.Value
		want model.Value
	}{
		{"arabic true", trueFalse([]string{"صحيح", "خطأ"}, model.Bool(true)), model.String("صحيح"), model.Bool(true)},
		{"arabic false", trueFalse([]string{"صحيح", "خطأ"}, model.Bool(true)), model.String("خطأ"), model.Bool(false)},
		{"english mixed case", trueFalse([]string{"True", "False"}, model.Bool(false)), model.String("FALSE"), model.Bool(false)},
		{"reversed options", trueFalse([]string{"False", "True"}, model.Bool(false)), model.String("true"), model.Bool(true)},
		{"configured labels", trueFalse([]string{"Benar", "Salah"}, model.Bool(true)), model.String("Salah"), model.Bool(false)},
		{"string key keeps label", trueFalse([]string{"True", "False"}, model.String("True")), model.String("True"), model.String("True")},
		{"not a true/false pair", trueFalse([]string{"Yes", "No"}, model.Bool(true)), model.String("Yes"), model.String("Yes")},
		{"three options", trueFalse([]string{"true", "false", "maybe"}, model.Bool(true)), model.String("true"), model.String("true")},
		{"unknown label kept", trueFalse([]string{"true", "false"}, model.Bool(true)), model.String("perhaps"), model.String("perhaps")},
		{"already boolean", trueFalse([]string{"true", "false"}, model.Bool(true)), model.Bool(false), model.Bool(false)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, c.Coerce(tc.q, tc.in))
		})
	}
}

func TestBuildPayloadDropsEmptyAndKeepsOrder(t *testing.T) {
	c := service.NewCoercer([2]string{})
	questions := []model.Question{
		{ID: "q1", Type: model.QuestionTypeMultipleChoice, Options: []string{"a", "b"}},
		{ID: "q2", Type: model.QuestionTypeEssay, Options: []string{}},
		{ID: "q3", Type: model.QuestionTypeMultipleChoice, Options: []string{"true", "false"}, CorrectAnswer: model.Bool(false)},
		{ID: "q4", Type: model.QuestionTypeEssay, Options: []string{}},
	}
	answers := model.Answers{
		"q4":    model.String("essay text"),
		"q3":    model.String("false"),
		"q2":    model.String(""),
		"q1":    model.Null(),
		"stray": model.String("x"),
	}

	got := c.BuildPayload(questions, answers)
	require.Equal(t, []model.SubmittedAnswer{
		{QuestionID: "q3", SelectedAnswer: model.Bool(false)},
		{QuestionID: "q4", SelectedAnswer: model.String("essay text")},
	}, got.Answers)

	require.Equal(t, 2, service.CountUnanswered(questions, answers))
}

func TestSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.FixedZone("WIB", 7*3600))

	snap := service.Snapshot(model.SubmitResult{Score: 2, TotalScore: 3}, now)
	require.Equal(t, 67, snap.Percentage)
	require.Equal(t, time.UTC, snap.CompletedAt.Location())
	require.True(t, now.Equal(snap.CompletedAt))

	require.Zero(t, service.Snapshot(model.SubmitResult{Score: 5, TotalScore: 0}, now).Percentage)
	require.Equal(t, 100, service.Snapshot(model.SubmitResult{Score: 100, TotalScore: 100}, now).Percentage)
}
