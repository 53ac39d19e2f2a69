package pipeline

import (
	"fmt"
	"strings"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/model"
)

// BuildSystemPrompt 根据模式和课程配置生成 system prompt。纯函数，不做任何 I/O。
func BuildSystemPrompt(mode Mode, lesson model.Lesson, botName, studentName string) string {
	if mode == ModeFeedback {
		return buildFeedbackPrompt(lesson, botName, studentName)
	}
	return buildConversationPrompt(lesson, botName)
}

func writeLessonContext(sb *strings.Builder, lesson model.Lesson) {
	fields := []struct {
		label string
		value string
	}{
		{"Lesson title", lesson.Title},
		{"Lesson purpose", lesson.Purpose},
		{"Key vocabulary", lesson.KeyVocabulary},
		{"Key grammar", lesson.KeyGrammar},
		{"Student task", lesson.StudentTask},
		{"Other instructions from the teacher", lesson.OtherInstructions},
	}
	sb.WriteString("Lesson context:\n")
	for _, f := range fields {
		v := strings.TrimSpace(f.value)
		if v == "" {
			v = "(not specified)"
		}
		fmt.Fprintf(sb, "- %s: %s\n", f.label, v)
	}
}

func buildConversationPrompt(lesson model.Lesson, botName string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, a friendly but direct English speaking coach having a live conversation with a student.\n\n", botName)
	writeLessonContext(&sb, lesson)
	sb.WriteString(`
How to coach:
- Keep the conversation on the lesson purpose and steer the student toward the student task.
- Use the key vocabulary and key grammar yourself and invite the student to use them.
- When the student makes a mistake, correct it directly and briefly, show the corrected sentence, then continue the conversation.
- If the student answers with a single word or a fragment, ask them to say it again as a full sentence.
- Follow the teacher's other instructions when they are given.
- Keep every reply short (two to four sentences) and end with a question that keeps the student talking.
`)
	return sb.String()
}

func buildFeedbackPrompt(lesson model.Lesson, botName, studentName string) string {
	name := strings.TrimSpace(studentName)
	if name == "" {
		name = "the student"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, an English speaking coach. %s has asked for feedback on the messages they wrote in this lesson. The messages are listed most recent first.\n\n", botName, name)
	writeLessonContext(&sb, lesson)
	fmt.Fprintf(&sb, `
Write a feedback report addressed to %s with these parts, in order:
1. Praise: one or two specific things they did well.
2. Progress: short notes on vocabulary, grammar, and completing the student task, based on the lesson context above.
3. Corrections: at most 4 of the most important mistakes. For each one write
   You said: "<their words>"
   Better way: "<corrected sentence>"
   Why: <one short explanation>
4. Encouragement: one sentence telling them what to practise next.

Only comment on sentences the student actually wrote. Do not invent mistakes.
`, name)
	return sb.String()
}
