// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/model"
	"github.com/sahilahluwalia/bolchaal-sub000/internal/service"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/log"
)

// maxAudioBytes 是单条语音上传的大小上限。
const maxAudioBytes = 10 << 20

// MessageHandler 处理学生消息的提交与查询。
type MessageHandler struct {
	service service.MessageService
}

// NewMessageHandler 创建一个新的 MessageHandler。
func NewMessageHandler(service service.MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

// Submit 接收一条 TEXT 或 AUDIO 消息并放入流水线。
func (h *MessageHandler) Submit(c *gin.Context) {
	var req service.SubmitMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "请求参数错误: " + err.Error(), "data": nil})
		return
	}
	job, err := h.service.Submit(c.Request.Context(), req)
	h.respondSubmitted(c, job, err)
}

// SubmitAudio 接收 multipart 语音上传，字段与 Submit 的 JSON 请求体同名，文件字段为 audio。
func (h *MessageHandler) SubmitAudio(c *gin.Context) {
	req := service.SubmitMessageRequest{
		Type:          model.MessageTypeAudio,
		ClassroomID:   c.PostForm("classroomId"),
		LessonID:      c.PostForm("lessonId"),
		UserID:        c.PostForm("userId"),
		ChatSessionID: c.Param("chatSessionId"),
	}

	fileHeader, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "缺少语音文件", "data": nil})
		return
	}
	if fileHeader.Size > maxAudioBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"code": http.StatusRequestEntityTooLarge, "message": "语音文件过大", "data": nil})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无法读取语音文件", "data": nil})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxAudioBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无法读取语音文件", "data": nil})
		return
	}

	job, err := h.service.SubmitAudio(c.Request.Context(), req, service.AudioUpload{
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	})
	h.respondSubmitted(c, job, err)
}

func (h *MessageHandler) respondSubmitted(c *gin.Context, job model.Job, err error) {
	if errors.Is(err, model.ErrInvalidJob) {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error(), "data": nil})
		return
	}
	if err != nil {
		log.Errorf("提交消息失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "消息提交失败，请稍后重试", "data": nil})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"code":    http.StatusAccepted,
		"message": "accepted",
		"data":    gin.H{"id": job.ID, "chatSessionId": job.ChatSessionID},
	})
}

// History 返回会话的持久化记录，客户端据此补齐断线期间错过的回复。
func (h *MessageHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	messages, err := h.service.History(c.Request.Context(), c.Param("chatSessionId"), limit)
	if err != nil {
		log.Errorf("查询会话记录失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "Failed to retrieve messages", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": messages})
}
