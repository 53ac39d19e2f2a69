package pipeline

import "strings"

// Mode 是反馈阶段的两种行为。
type Mode int

const (
	ModeConversation Mode = iota
	ModeFeedback
)

// FeedbackCommand 是学生消息中唯一识别的控制指令。
const FeedbackCommand = "!feedback"

func (m Mode) String() string {
	if m == ModeFeedback {
		return "FEEDBACK"
	}
	return "CONVERSATION"
}

// DetectMode 不区分大小写地查找 !feedback 子串。
func DetectMode(content string) Mode {
	if strings.Contains(strings.ToLower(content), FeedbackCommand) {
		return ModeFeedback
	}
	return ModeConversation
}
