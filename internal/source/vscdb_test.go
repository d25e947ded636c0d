package source

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/iudanet/chatsync/internal/models"
)

// newEditorDB создает базу в формате редактора с парами key/value
func newEditorDB(t *testing.T, rows map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "state.vscdb")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE cursorDiskKV (key TEXT UNIQUE ON CONFLICT REPLACE, value BLOB)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE ItemTable (key TEXT UNIQUE ON CONFLICT REPLACE, value BLOB)`)
	require.NoError(t, err)

	for k, v := range rows {
		_, err := db.Exec(`INSERT INTO cursorDiskKV (key, value) VALUES (?, ?)`, k, v)
		require.NoError(t, err)
	}
	return path
}

func TestVSCDB_InlineConversation(t *testing.T) {
	path := newEditorDB(t, map[string]string{
		"composerData:11111111-aaaa": `{
			"composerId": "11111111-aaaa",
			"name": "Fix the parser",
			"createdAt": 1735725600000,
			"lastUpdatedAt": 1735729200000,
			"totalLinesAdded": 12,
			"totalLinesRemoved": 4,
			"conversation": [
				{"type": 1, "bubbleId": "b1", "text": "why does it panic?"},
				{"type": 2, "bubbleId": "b2", "text": "nil map", "modelInfo": {"modelName": "gpt-x"},
				 "tokenCount": {"inputTokens": 10, "outputTokens": 5}},
				{"type": 2, "bubbleId": "b3", "text": "", "toolFormerData": {"toolCallId": "t1", "name": "edit_file", "rawArgs": "{}", "status": "completed"}},
				{"type": 3, "bubbleId": "b4", "text": "unknown kind"},
				{"type": 1, "bubbleId": "b5", "text": ""}
			]
		}`,
		"composerData:22222222-empty": `{"composerId": "22222222-empty", "conversation": []}`,
		"composerData:broken":         `{"composerId":`,
	})

	conversations, err := NewVSCDB(path, testLogger()).Conversations(context.Background())
	require.NoError(t, err)
	require.Len(t, conversations, 1)

	conv := conversations[0]
	assert.Equal(t, "11111111-aaaa", conv.ID)
	assert.Equal(t, "Fix the parser", conv.Title)
	assert.Equal(t, SourceCursor, conv.Source)
	assert.Equal(t, time.UnixMilli(1735725600000).UTC(), conv.CreatedAt)
	assert.Equal(t, time.UnixMilli(1735729200000).UTC(), conv.UpdatedAt)
	assert.Equal(t, int64(12), conv.LinesAdded)
	assert.Equal(t, int64(4), conv.LinesRemoved)
	assert.Equal(t, int64(15), conv.TotalTokens)

	require.Len(t, conv.Messages, 3)
	assert.Equal(t, models.Message{ID: "b1", Role: models.RoleUser, Content: "why does it panic?"}, conv.Messages[0])
	assert.Equal(t, "gpt-x", conv.Messages[1].Model)
	assert.Equal(t, int64(15), conv.Messages[1].TokenCount)
	require.Len(t, conv.Messages[2].ToolCalls, 1)
	assert.Equal(t, "edit_file", conv.Messages[2].ToolCalls[0].Name)

	assert.Equal(t, []models.ModelUsage{{Model: "gpt-x", Requests: 1, InputTokens: 10, OutputTokens: 5}}, conv.ModelUsage)
}

func TestVSCDB_BubbleRows(t *testing.T) {
	path := newEditorDB(t, map[string]string{
		"composerData:c-42": `{
			"composerId": "c-42",
			"fullConversationHeadersOnly": [
				{"bubbleId": "x1", "type": 1},
				{"bubbleId": "missing", "type": 2},
				{"bubbleId": "x2", "type": 2},
				{"type": 2}
			]
		}`,
		"bubbleId:c-42:x1": `{"type": 1, "bubbleId": "x1", "text": "refactor this\nplease", "createdAt": "2025-01-01T10:00:00Z"}`,
		"bubbleId:c-42:x2": `{"type": 2, "bubbleId": "x2", "text": "done", "createdAt": "2025-01-01T10:00:05Z"}`,
		"bubbleId:other:x1": `{"type": 1, "bubbleId": "x1", "text": "not mine"}`,
	})

	conversations, err := NewVSCDB(path, testLogger()).Conversations(context.Background())
	require.NoError(t, err)
	require.Len(t, conversations, 1)

	conv := conversations[0]
	assert.Equal(t, "refactor this", conv.Title, "title from first user message")
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "x1", conv.Messages[0].ID)
	assert.Equal(t, "x2", conv.Messages[1].ID)
	assert.Equal(t, time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), conv.CreatedAt)
	assert.Equal(t, time.Date(2025, 1, 1, 10, 0, 5, 0, time.UTC), conv.UpdatedAt)
}

func TestVSCDB_MissingDatabase(t *testing.T) {
	src := NewVSCDB(filepath.Join(t.TempDir(), "absent.vscdb"), testLogger())

	_, err := src.Conversations(context.Background())
	require.Error(t, err)
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		expected time.Time
	}{
		{name: "millis", json: `1700000000000`, expected: time.UnixMilli(1700000000000).UTC()},
		{name: "rfc3339", json: `"2025-02-03T04:05:06.789Z"`, expected: time.Date(2025, 2, 3, 4, 5, 6, 789000000, time.UTC)},
		{name: "zero", json: `0`},
		{name: "garbage", json: `"yesterday"`},
		{name: "null", json: `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseTime(gjson.Parse(tt.json)))
		})
	}
}
