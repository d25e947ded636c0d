package models

import (
	"slices"
	"time"
)

// Conversation представляет чат-сессию с ассистентом.
// Это полезная нагрузка реплицируемой записи: все поля переносятся между
// устройствами как есть, идентификатор стабилен на всех репликах.
type Conversation struct {
	CreatedAt    time.Time    `json:"created_at"`           // CreatedAt время начала разговора
	UpdatedAt    time.Time    `json:"updated_at"`           // UpdatedAt время последнего изменения
	DeletedAt    *time.Time   `json:"deleted_at,omitempty"` // DeletedAt время пометки удаления (tombstone)
	ID           string       `json:"id"`                   // ID стабильный идентификатор разговора
	Title        string       `json:"title"`                // Title заголовок
	Source       string       `json:"source"`               // Source откуда импортирован: "cursor", "export" и т.д.
	Workspace    string       `json:"workspace,omitempty"`  // Workspace путь проекта
	Messages     []Message    `json:"messages"`             // Messages упорядоченный список сообщений
	ModelUsage   []ModelUsage `json:"model_usage,omitempty"`
	TotalTokens  int64        `json:"total_tokens"`
	LinesAdded   int64        `json:"lines_added"`
	LinesRemoved int64        `json:"lines_removed"`
	Deleted      bool         `json:"deleted"` // Deleted флаг tombstone, физически записи не удаляются
}

// ModelUsage агрегированная статистика по одной модели
type ModelUsage struct {
	Model        string `json:"model"`
	Requests     int64  `json:"requests"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// Clone создает глубокую копию разговора
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}

	clone := *c

	if c.DeletedAt != nil {
		deletedAt := *c.DeletedAt
		clone.DeletedAt = &deletedAt
	}

	if c.Messages != nil {
		clone.Messages = make([]Message, len(c.Messages))
		for i := range c.Messages {
			clone.Messages[i] = c.Messages[i].Clone()
		}
	}

	clone.ModelUsage = slices.Clone(c.ModelUsage)

	return &clone
}

// MarkDeleted помечает разговор удаленным. Повторный вызов не меняет DeletedAt.
func (c *Conversation) MarkDeleted(at time.Time) {
	if c.Deleted && c.DeletedAt != nil {
		return
	}
	c.Deleted = true
	c.DeletedAt = &at
}

// MessageIndex возвращает позицию сообщения по ID или -1
func (c *Conversation) MessageIndex(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// RecomputeTokens пересчитывает TotalTokens по сообщениям.
// Если у сообщений нет счетчиков, значение не трогается.
func (c *Conversation) RecomputeTokens() {
	var total int64
	for _, m := range c.Messages {
		total += m.TokenCount
	}
	if total > 0 {
		c.TotalTokens = total
	}
}
