package model

// TextReplyEvent 发布到 text-message-channel。
type TextReplyEvent struct {
	AIFeedback    string `json:"aiFeedback"`
	ChatSessionID string `json:"chatSessionId"`
	UserID        string `json:"userId"`
}

// AudioReplyEvent 发布到 audio-message-channel。
type AudioReplyEvent struct {
	AIFeedback    string `json:"aiFeedback"`
	URL           string `json:"url"`
	ChatSessionID string `json:"chatSessionId"`
	UserID        string `json:"userId"`
}

// FailureEvent 在无法生成回复时发布，客户端据此显示失败而不是一直等待。
type FailureEvent struct {
	Error         string `json:"error"`
	ChatSessionID string `json:"chatSessionId"`
	UserID        string `json:"userId"`
}
