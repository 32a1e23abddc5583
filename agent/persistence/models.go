package persistence

import "time"

// 会话状态.
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// SessionRecord 对应 chat_sessions 表.
type SessionRecord struct {
	ID                string     `gorm:"primaryKey;size:64" json:"id"`
	Status            string     `gorm:"size:16;not null;index" json:"status"`
	TerminationReason string     `gorm:"size:32" json:"termination_reason,omitempty"`
	Turns             int        `gorm:"not null;default:0" json:"turns"`
	StartedAt         time.Time  `gorm:"not null" json:"started_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (SessionRecord) TableName() string { return "chat_sessions" }

// MessageRecord 对应 chat_messages 表. (session_id, seq) 唯一，seq 即历史位置.
type MessageRecord struct {
	ID         string    `gorm:"primaryKey;size:64"`
	SessionID  string    `gorm:"size:64;not null;uniqueIndex:idx_chat_messages_session_seq"`
	Seq        int       `gorm:"not null;uniqueIndex:idx_chat_messages_session_seq"`
	Source     string    `gorm:"size:64;not null"`
	Kind       string    `gorm:"size:16;not null"`
	Content    string    `gorm:"type:text"`
	ToolName   string    `gorm:"size:64"`
	ToolCallID string    `gorm:"size:64"`
	ToolArgs   string    `gorm:"type:text"`
	Target     string    `gorm:"size:64"`
	Metadata   string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (MessageRecord) TableName() string { return "chat_messages" }
