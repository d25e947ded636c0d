package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/iudanet/chatsync/internal/models"
)

// SourceExport метка разговоров из каталога экспортов
const SourceExport = "export"

// Dir каталог JSON экспортов, один разговор на файл.
// Файл без id получает id по имени файла.
type Dir struct {
	logger *slog.Logger
	Path   string
}

// NewDir создает источник из каталога path
func NewDir(path string, logger *slog.Logger) *Dir {
	return &Dir{Path: path, logger: logger}
}

// Name имя источника для логов
func (d *Dir) Name() string {
	return "dir:" + d.Path
}

// Conversations читает все *.json файлы каталога в порядке имен.
// Нечитаемый каталог это ошибка источника, битый файл только пропускается.
func (d *Dir) Conversations(ctx context.Context) ([]*models.Conversation, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isExportFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	conversations := make([]*models.Conversation, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		conv, err := d.readFile(filepath.Join(d.Path, name))
		if err != nil {
			d.logger.Warn("Skipping export file", "file", name, "error", err)
			continue
		}
		conversations = append(conversations, conv)
	}

	return conversations, nil
}

func (d *Dir) readFile(path string) (*models.Conversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var conv models.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("malformed export: %w", err)
	}

	if strings.TrimSpace(conv.ID) == "" {
		conv.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	normalize(&conv, SourceExport)
	return &conv, nil
}

// isExportFile *.json без скрытых и временных файлов редакторов
func isExportFile(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}
