package model

import "time"

// Message 是持久化的聊天记录，只追加不修改。
type Message struct {
	ID            uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatSessionID string      `gorm:"type:varchar(64);not null;index:idx_session_created,priority:1" json:"chatSessionId"`
	ClassroomID   string      `gorm:"type:varchar(64);not null" json:"classroomId"`
	LessonID      string      `gorm:"type:varchar(64);not null" json:"lessonId"`
	SenderID      *string     `gorm:"type:varchar(64);index" json:"senderId"` // 机器人消息为 NULL
	IsBot         bool        `gorm:"not null;default:false" json:"isBot"`
	MessageType   MessageType `gorm:"type:varchar(16);not null" json:"messageType"`
	Content       string      `gorm:"type:text;not null" json:"content"`
	AudioURL      string      `gorm:"type:varchar(1024)" json:"audioUrl,omitempty"`
	// Sequence 是会话内单调递增的序号，弥补 createdAt 在时钟漂移下的排序问题。
	Sequence  int64     `gorm:"not null;default:0" json:"sequence"`
	JobID     string    `gorm:"type:varchar(64);index" json:"jobId"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_session_created,priority:2" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}
