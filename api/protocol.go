package api

import (
	"time"

	"kanban-sync/domain"
)

const (
	maxMessageSize = 64 * 1024 // 64 KiB
	replyBuffer    = 16

	defaultQueueSize    = 256
	defaultWriteTimeout = 10 * time.Second
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type taskResponse struct {
	Task   *domain.Task `json:"task,omitempty"`
	Column string       `json:"column,omitempty"`
	Seq    uint64       `json:"seq"`
}

type moveResponse struct {
	Task       *domain.Task `json:"task"`
	FromColumn string       `json:"fromColumn"`
	ToColumn   string       `json:"toColumn"`
	Seq        uint64       `json:"seq"`
}

type deleteResponse struct {
	Message string `json:"message"`
	TaskID  string `json:"taskId"`
	Column  string `json:"column"`
	Seq     uint64 `json:"seq"`
}

type attachmentResponse struct {
	Attachment domain.Attachment `json:"attachment"`
	Task       *domain.Task      `json:"task"`
	Seq        uint64            `json:"seq"`
}
