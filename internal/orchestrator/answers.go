package orchestrator

import (
	"strings"
	"unicode"
)

// ChoiceKind identifies which answer grammar applies to a choice.
type ChoiceKind string

const (
	ChoiceOversplit ChoiceKind = "oversplit"
	ChoiceRetry     ChoiceKind = "retry"
	ChoiceWorkspace ChoiceKind = "workspace"
)

// Answer is a parsed reply to an open choice.
type Answer string

const (
	AnswerA       Answer = "A"
	AnswerB       Answer = "B"
	AnswerConfirm Answer = "confirm"
	AnswerCancel  Answer = "cancel"
	AnswerCreate  Answer = "create"
	AnswerReenter Answer = "reenter"
)

type answerRule struct {
	answer   Answer
	synonyms []string
}

// answerGrammar lists, per choice kind, the normalized replies accepted for
// each answer. Matching is exact after normalization.
var answerGrammar = map[ChoiceKind][]answerRule{
	ChoiceOversplit: {
		{AnswerA, []string{"a", "1", "方案a", "选a", "a方案", "选择a", "a执行", "optiona", "plana", "choosea"}},
		{AnswerB, []string{"b", "2", "方案b", "选b", "b方案", "选择b", "b执行", "optionb", "planb", "chooseb"}},
	},
	ChoiceRetry: {
		{AnswerConfirm, []string{"确认", "同意", "yes", "y", "ok", "好的", "继续", "confirm", "retry", "sure"}},
		{AnswerCancel, []string{"取消", "拒绝", "no", "n", "不用", "停止", "cancel", "stop", "skip"}},
	},
	ChoiceWorkspace: {
		{AnswerCreate, []string{"创建", "帮我创建", "可以创建", "确认", "同意", "create", "yes", "y", "mkdir"}},
		{AnswerReenter, []string{"重输", "重新输入", "我重输", "取消", "不用", "reenter", "re-enter", "no", "n"}},
	},
}

// ParseAnswer maps free text to an answer for the given choice kind.
func ParseAnswer(kind ChoiceKind, text string) (Answer, bool) {
	normalized := normalizeAnswer(text)
	if normalized == "" {
		return "", false
	}
	for _, rule := range answerGrammar[kind] {
		for _, s := range rule.synonyms {
			if normalized == s {
				return rule.answer, true
			}
		}
	}
	return "", false
}

// normalizeAnswer lowercases text, drops all whitespace and strips trailing
// sentence punctuation.
func normalizeAnswer(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimRight(b.String(), ".!。！")
}

// answerHelp is the re-prompt shown when a reply does not parse.
func answerHelp(kind ChoiceKind) string {
	switch kind {
	case ChoiceOversplit:
		return "A plan is waiting for your choice.\nReply A or B.\nA: single-task plan\nB: original split plan"
	case ChoiceRetry:
		return "A retry plan is waiting for confirmation.\nReply confirm or cancel.\nconfirm: create the retry task\ncancel: do not create it"
	case ChoiceWorkspace:
		return "A workspace directory does not exist.\nReply create or reenter.\ncreate: create the directories and dispatch\nreenter: cancel and wait for a new path"
	default:
		return "A decision is waiting for your answer."
	}
}
