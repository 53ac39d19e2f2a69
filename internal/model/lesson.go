package model

import "time"

// Lesson 是反馈阶段读取的课程配置快照，由教师端维护，这里只读。
type Lesson struct {
	ID                string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ClassroomID       string    `gorm:"type:varchar(64);index" json:"classroomId"`
	Title             string    `gorm:"type:varchar(255)" json:"title"`
	Purpose           string    `gorm:"type:text" json:"purpose"`
	KeyVocabulary     string    `gorm:"type:text" json:"keyVocabulary"`
	KeyGrammar        string    `gorm:"type:text" json:"keyGrammar"`
	StudentTask       string    `gorm:"type:text" json:"studentTask"`
	OtherInstructions string    `gorm:"type:text" json:"otherInstructions"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (Lesson) TableName() string {
	return "lessons"
}

// Student 仅用于在反馈模式的提示词中称呼学生。
type Student struct {
	ID   string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name string `gorm:"type:varchar(255)" json:"name"`
}

func (Student) TableName() string {
	return "users"
}
