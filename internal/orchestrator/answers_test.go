package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		name   string
		kind   ChoiceKind
		input  string
		want   Answer
		wantOK bool
	}{
		{"letter A", ChoiceOversplit, "A", AnswerA, true},
		{"lowercase b", ChoiceOversplit, "b", AnswerB, true},
		{"digit", ChoiceOversplit, "1", AnswerA, true},
		{"option phrase with spaces", ChoiceOversplit, "Option B", AnswerB, true},
		{"plan phrase", ChoiceOversplit, "plan a", AnswerA, true},
		{"chinese option", ChoiceOversplit, "方案B", AnswerB, true},
		{"trailing punctuation", ChoiceOversplit, "A!", AnswerA, true},
		{"fullwidth punctuation", ChoiceOversplit, "选a。", AnswerA, true},
		{"surrounding whitespace", ChoiceOversplit, "  b \n", AnswerB, true},
		{"unrelated text", ChoiceOversplit, "xyz", "", false},
		{"retry word is not an option", ChoiceOversplit, "confirm", "", false},
		{"empty", ChoiceOversplit, "   ", "", false},

		{"yes", ChoiceRetry, "Yes", AnswerConfirm, true},
		{"ok with period", ChoiceRetry, "ok.", AnswerConfirm, true},
		{"chinese confirm", ChoiceRetry, "确认", AnswerConfirm, true},
		{"no", ChoiceRetry, "NO", AnswerCancel, true},
		{"chinese cancel", ChoiceRetry, "取消！", AnswerCancel, true},
		{"skip", ChoiceRetry, "skip", AnswerCancel, true},
		{"option letter is not a retry answer", ChoiceRetry, "A", "", false},
		{"sentence", ChoiceRetry, "yes please do it", "", false},

		{"create", ChoiceWorkspace, "Create", AnswerCreate, true},
		{"chinese create", ChoiceWorkspace, "帮我创建", AnswerCreate, true},
		{"yes creates", ChoiceWorkspace, "y", AnswerCreate, true},
		{"reenter", ChoiceWorkspace, "re-enter", AnswerReenter, true},
		{"chinese reenter", ChoiceWorkspace, "重新 输入", AnswerReenter, true},
		{"no reenters", ChoiceWorkspace, "no", AnswerReenter, true},
		{"option letter is not a workspace answer", ChoiceWorkspace, "B", "", false},

		{"unknown kind", ChoiceKind("other"), "A", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseAnswer(tt.kind, tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeAnswer(t *testing.T) {
	assert.Equal(t, "optiona", normalizeAnswer(" Option\tA ."))
	assert.Equal(t, "好的", normalizeAnswer("好 的！"))
	assert.Equal(t, "", normalizeAnswer("!!"))
}

func TestAnswerHelpNamesTheAnswers(t *testing.T) {
	assert.Contains(t, answerHelp(ChoiceOversplit), "Reply A or B.")
	assert.Contains(t, answerHelp(ChoiceRetry), "Reply confirm or cancel.")
	assert.Contains(t, answerHelp(ChoiceWorkspace), "Reply create or reenter.")
	assert.NotEmpty(t, answerHelp(ChoiceKind("other")))
}
