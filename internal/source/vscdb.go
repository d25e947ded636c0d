package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/iudanet/chatsync/internal/models"
)

// SourceCursor метка разговоров из базы редактора
const SourceCursor = "cursor"

const (
	composerPrefix = "composerData:"
	bubblePrefix   = "bubbleId:"

	// типы пузырей в базе редактора
	bubbleUser      = 1
	bubbleAssistant = 2
)

// VSCDB читатель state.vscdb редактора (таблица cursorDiskKV).
// База открывается только на чтение, редактор может писать в нее параллельно.
type VSCDB struct {
	logger *slog.Logger
	Path   string
}

// NewVSCDB создает источник для файла базы path
func NewVSCDB(path string, logger *slog.Logger) *VSCDB {
	return &VSCDB{Path: path, logger: logger}
}

// Name имя источника для логов
func (v *VSCDB) Name() string {
	return "vscdb:" + v.Path
}

// Conversations читает все composerData записи
func (v *VSCDB) Conversations(ctx context.Context) ([]*models.Conversation, error) {
	db, err := v.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT key, value FROM cursorDiskKV WHERE key LIKE ? ORDER BY key`, composerPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to query composers: %w", err)
	}

	type composer struct {
		key  string
		data string
	}
	var composers []composer
	for rows.Next() {
		var (
			key   string
			value sql.NullString
		)
		if err := rows.Scan(&key, &value); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan composer: %w", err)
		}
		if value.Valid {
			composers = append(composers, composer{key: key, data: value.String})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read composers: %w", err)
	}
	rows.Close()

	conversations := make([]*models.Conversation, 0, len(composers))
	for _, c := range composers {
		conv, err := v.parseComposer(ctx, db, strings.TrimPrefix(c.key, composerPrefix), c.data)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			v.logger.Warn("Skipping composer", "key", c.key, "error", err)
			continue
		}
		if conv == nil {
			continue
		}
		conversations = append(conversations, conv)
	}

	return conversations, nil
}

func (v *VSCDB) open(ctx context.Context) (*sql.DB, error) {
	dsn := (&url.URL{
		Scheme:   "file",
		Path:     v.Path,
		RawQuery: "mode=ro&_pragma=busy_timeout(5000)",
	}).String()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open editor database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open editor database: %w", err)
	}
	return db, nil
}

// parseComposer собирает разговор из composerData.
// Пузыри берутся из inline поля conversation, иначе из строк bubbleId:<composer>:<bubble>.
// Пустой композер без сообщений возвращает nil.
func (v *VSCDB) parseComposer(ctx context.Context, db *sql.DB, key, data string) (*models.Conversation, error) {
	if !gjson.Valid(data) {
		return nil, errors.New("malformed composer json")
	}
	root := gjson.Parse(data)

	id := root.Get("composerId").String()
	if id == "" {
		id = key
	}

	conv := &models.Conversation{
		ID:           id,
		Title:        root.Get("name").String(),
		Source:       SourceCursor,
		CreatedAt:    parseTime(root.Get("createdAt")),
		UpdatedAt:    parseTime(root.Get("lastUpdatedAt")),
		LinesAdded:   root.Get("totalLinesAdded").Int(),
		LinesRemoved: root.Get("totalLinesRemoved").Int(),
	}

	bubbles := root.Get("conversation").Array()
	if len(bubbles) == 0 {
		var err error
		bubbles, err = v.loadBubbles(ctx, db, id, root.Get("fullConversationHeadersOnly").Array())
		if err != nil {
			return nil, err
		}
	}

	usage := map[string]*models.ModelUsage{}
	var order []string
	for _, b := range bubbles {
		msg, ok := parseBubble(b)
		if !ok {
			continue
		}
		conv.Messages = append(conv.Messages, msg)

		if msg.Model != "" && msg.Role == models.RoleAssistant {
			u, exists := usage[msg.Model]
			if !exists {
				u = &models.ModelUsage{Model: msg.Model}
				usage[msg.Model] = u
				order = append(order, msg.Model)
			}
			u.Requests++
			u.InputTokens += b.Get("tokenCount.inputTokens").Int()
			u.OutputTokens += b.Get("tokenCount.outputTokens").Int()
		}
	}
	if len(conv.Messages) == 0 {
		return nil, nil
	}
	for _, m := range order {
		conv.ModelUsage = append(conv.ModelUsage, *usage[m])
	}

	if conv.Title == "" {
		conv.Title = titleFrom(conv.Messages)
	}
	normalize(conv, SourceCursor)
	return conv, nil
}

// loadBubbles читает пузыри по заголовкам в порядке заголовков
func (v *VSCDB) loadBubbles(ctx context.Context, db *sql.DB, composerID string, headers []gjson.Result) ([]gjson.Result, error) {
	bubbles := make([]gjson.Result, 0, len(headers))
	for _, h := range headers {
		bubbleID := h.Get("bubbleId").String()
		if bubbleID == "" {
			continue
		}

		var value sql.NullString
		err := db.QueryRowContext(ctx, `SELECT value FROM cursorDiskKV WHERE key = ?`,
			bubblePrefix+composerID+":"+bubbleID).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !value.Valid) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read bubble %s: %w", bubbleID, err)
		}
		if !gjson.Valid(value.String) {
			v.logger.Debug("Skipping malformed bubble", "composer_id", composerID, "bubble_id", bubbleID)
			continue
		}
		bubbles = append(bubbles, gjson.Parse(value.String))
	}
	return bubbles, nil
}

func parseBubble(b gjson.Result) (models.Message, bool) {
	var role string
	switch b.Get("type").Int() {
	case bubbleUser:
		role = models.RoleUser
	case bubbleAssistant:
		role = models.RoleAssistant
	default:
		return models.Message{}, false
	}

	msg := models.Message{
		ID:        b.Get("bubbleId").String(),
		Role:      role,
		Content:   b.Get("text").String(),
		CreatedAt: parseTime(b.Get("createdAt")),
		Model:     b.Get("modelInfo.modelName").String(),
	}
	msg.TokenCount = b.Get("tokenCount.inputTokens").Int() + b.Get("tokenCount.outputTokens").Int()

	if tool := b.Get("toolFormerData"); tool.Exists() {
		msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{
			ID:        tool.Get("toolCallId").String(),
			Name:      tool.Get("name").String(),
			Arguments: tool.Get("rawArgs").String(),
			Result:    tool.Get("result").String(),
			Status:    tool.Get("status").String(),
		})
	}

	if msg.Content == "" && len(msg.ToolCalls) == 0 {
		return models.Message{}, false
	}
	return msg, true
}

// parseTime принимает unix миллисекунды или RFC3339
func parseTime(r gjson.Result) time.Time {
	switch r.Type {
	case gjson.Number:
		if ms := r.Int(); ms > 0 {
			return time.UnixMilli(ms).UTC()
		}
	case gjson.String:
		if t, err := time.Parse(time.RFC3339Nano, r.String()); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// titleFrom первая строка первого сообщения пользователя
func titleFrom(messages []models.Message) string {
	const maxTitle = 80

	for _, m := range messages {
		if m.Role != models.RoleUser {
			continue
		}
		line, _, _ := strings.Cut(strings.TrimSpace(m.Content), "\n")
		if r := []rune(line); len(r) > maxTitle {
			line = string(r[:maxTitle])
		}
		return line
	}
	return ""
}
