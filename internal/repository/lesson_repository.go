// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/model"
)

// ErrLessonNotFound 表示课程不存在，重试无法修复。
var ErrLessonNotFound = errors.New("lesson not found")

// LessonRepository 是课程配置的只读访问接口。
type LessonRepository interface {
	GetLesson(ctx context.Context, lessonID string) (*model.Lesson, error)
	GetStudentName(ctx context.Context, userID string) (string, error)
}

type lessonRepository struct {
	db *gorm.DB
}

// NewLessonRepository 创建一个新的 LessonRepository 实例。
func NewLessonRepository(db *gorm.DB) LessonRepository {
	return &lessonRepository{db: db}
}

// GetLesson 按 ID 读取课程配置快照。
func (r *lessonRepository) GetLesson(ctx context.Context, lessonID string) (*model.Lesson, error) {
	var lesson model.Lesson
	err := r.db.WithContext(ctx).Where("id = ?", lessonID).First(&lesson).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrLessonNotFound, lessonID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lesson %s: %w", lessonID, err)
	}
	return &lesson, nil
}

// GetStudentName 返回学生姓名；找不到时返回空字符串而不是错误。
func (r *lessonRepository) GetStudentName(ctx context.Context, userID string) (string, error) {
	var student model.Student
	err := r.db.WithContext(ctx).Select("id", "name").Where("id = ?", userID).First(&student).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load student %s: %w", userID, err)
	}
	return student.Name, nil
}
