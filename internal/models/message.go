package models

import (
	"slices"
	"time"
)

// Роли участников разговора
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Message одно сообщение внутри разговора.
// ID уникален в пределах разговора и совпадает на всех устройствах.
type Message struct {
	CreatedAt  time.Time  `json:"created_at"`           // CreatedAt время создания сообщения
	ID         string     `json:"id"`                   // ID идентификатор сообщения
	Role       string     `json:"role"`                 // Role "user", "assistant", "system", "tool"
	Content    string     `json:"content"`              // Content текст сообщения
	Model      string     `json:"model,omitempty"`      // Model модель, сгенерировавшая ответ
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"` // ToolCalls вызовы инструментов
	TokenCount int64      `json:"token_count,omitempty"`
}

// ToolCall вызов инструмента ассистентом
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
	Result    string `json:"result,omitempty"`
	Status    string `json:"status,omitempty"`
}

// Clone создает глубокую копию сообщения
func (m Message) Clone() Message {
	m.ToolCalls = slices.Clone(m.ToolCalls)
	return m
}

// Equal сравнивает два сообщения по содержимому
func (m Message) Equal(other Message) bool {
	return m.ID == other.ID &&
		m.Role == other.Role &&
		m.Content == other.Content &&
		m.Model == other.Model &&
		m.TokenCount == other.TokenCount &&
		m.CreatedAt.Equal(other.CreatedAt) &&
		slices.Equal(m.ToolCalls, other.ToolCalls)
}
