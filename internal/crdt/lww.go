package crdt

import (
	"bytes"
	"encoding/json"

	"github.com/iudanet/chatsync/internal/models"
)

// scalarFields скалярная часть разговора, которая разрешается по правилу
// Last-Write-Wins при конкурентных правках.
type scalarFields struct {
	Title        string              `json:"title"`
	Source       string              `json:"source"`
	Workspace    string              `json:"workspace"`
	ModelUsage   []models.ModelUsage `json:"model_usage"`
	TotalTokens  int64               `json:"total_tokens"`
	LinesAdded   int64               `json:"lines_added"`
	LinesRemoved int64               `json:"lines_removed"`
}

func scalarsOf(c *models.Conversation) scalarFields {
	return scalarFields{
		Title:        c.Title,
		Source:       c.Source,
		Workspace:    c.Workspace,
		ModelUsage:   c.ModelUsage,
		TotalTokens:  c.TotalTokens,
		LinesAdded:   c.LinesAdded,
		LinesRemoved: c.LinesRemoved,
	}
}

// latestWriter выбирает запись, чьи скалярные поля побеждают.
// Порядок: больший UpdatedAt, затем байтовое сравнение отпечатков.
// Оба ключа переходят в результат слияния без изменений, поэтому
// выбор не зависит ни от порядка аргументов, ни от порядка слияний.
// Сумма часов растет при слиянии и ключом быть не может.
func latestWriter(a, b *Record) *Record {
	au, bu := a.Conversation.UpdatedAt, b.Conversation.UpdatedAt
	if au.After(bu) {
		return a
	}
	if bu.After(au) {
		return b
	}

	if bytes.Compare(fingerprint(scalarsOf(&a.Conversation)), fingerprint(scalarsOf(&b.Conversation))) >= 0 {
		return a
	}
	return b
}

// messageWins true, если версия a должна заменить версию b сообщения с тем же ID
func messageWins(a, b models.Message) bool {
	if a.CreatedAt.After(b.CreatedAt) {
		return true
	}
	if b.CreatedAt.After(a.CreatedAt) {
		return false
	}
	return bytes.Compare(fingerprint(a), fingerprint(b)) > 0
}

// fingerprint детерминированное байтовое представление значения
func fingerprint(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Модели состоят только из сериализуемых полей
		panic(err)
	}
	return data
}
