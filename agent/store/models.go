package store

import (
	"time"

	"github.com/uptrace/bun"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
)

const (
	MaxTitleLength       = 500
	MaxDescriptionLength = 2000
)

type Task struct {
	bun.BaseModel `bun:"table:tasks,alias:t"`

	ID          int64     `bun:"id,pk,autoincrement" json:"task_id"`
	OwnerID     string    `bun:"owner_id,notnull" json:"-"`
	Title       string    `bun:"title,notnull" json:"title"`
	Description string    `bun:"description,notnull" json:"description"`
	Completed   bool      `bun:"completed,notnull" json:"completed"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

type Conversation struct {
	bun.BaseModel `bun:"table:conversations,alias:c"`

	ID        string    `bun:"id,pk"`
	OwnerID   string    `bun:"owner_id,notnull"`
	Adapter   string    `bun:"adapter,notnull"`
	TurnCount int64     `bun:"turn_count,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// Message is one persisted turn. Seq is the ordinal within its conversation.
type Message struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID             int64          `bun:"id,pk,autoincrement"`
	ConversationID string         `bun:"conversation_id,notnull"`
	OwnerID        string         `bun:"owner_id,notnull"`
	Role           contractx.Role `bun:"role,notnull"`
	Content        string         `bun:"content,notnull"`
	Seq            int64          `bun:"seq,notnull"`
	CreatedAt      time.Time      `bun:"created_at,notnull"`
}

type TaskFilter string

const (
	TaskFilterAll       TaskFilter = "all"
	TaskFilterPending   TaskFilter = "pending"
	TaskFilterCompleted TaskFilter = "completed"
)

// TaskPatch holds the fields an update may change; nil leaves a field as is.
type TaskPatch struct {
	Title       *string
	Description *string
}

// ConversationRef addresses the conversation an append targets. ExpectTurns
// is the turn count the caller loaded; appends to an existing conversation
// that has moved past it are rejected.
type ConversationRef struct {
	ID          string
	OwnerID     string
	Adapter     string
	Create      bool
	ExpectTurns int64
}

type NewMessage struct {
	Role    contractx.Role
	Content string
}

type AccountOverview struct {
	PendingTasks   int `json:"pending_tasks"`
	CompletedTasks int `json:"completed_tasks"`
	Conversations  int `json:"conversations"`
}
