// Package identity хранит идентификатор устройства.
// Идентификатор генерируется один раз и больше не меняется, пока файл читается.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/chatsync/internal/validation"
)

// FileName имя файла идентичности в каталоге данных
const FileName = "device.json"

var (
	// ErrCorrupt файл существует, но не разбирается. Новый id в этом случае
	// не создается, чтобы не потерять историю часов устройства.
	ErrCorrupt = errors.New("device identity is corrupt")
)

// Device идентичность устройства
type Device struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"device_id"`
	Name      string    `json:"name,omitempty"`
}

// Path путь к файлу идентичности в каталоге dir
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load читает идентичность. Отсутствие файла возвращается как os.ErrNotExist.
func Load(path string) (*Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var dev Device
	if err := json.Unmarshal(data, &dev); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}
	dev.ID = strings.TrimSpace(dev.ID)
	if dev.ID == "" {
		return nil, fmt.Errorf("%w: %s: empty device id", ErrCorrupt, path)
	}
	return &dev, nil
}

// LoadOrCreate возвращает сохраненную идентичность или создает новую.
// created сообщает, что id был сгенерирован сейчас.
// Непустое name обновляет имя устройства, id при этом не меняется.
func LoadOrCreate(dir, name string) (dev *Device, created bool, err error) {
	if name != "" {
		if err := validation.ValidateDeviceName(name); err != nil {
			return nil, false, fmt.Errorf("invalid device name: %w", err)
		}
	}

	path := Path(dir)
	dev, err = Load(path)
	switch {
	case err == nil:
		if name == "" || name == dev.Name {
			return dev, false, nil
		}
		dev.Name = name
		if err := save(path, dev); err != nil {
			return nil, false, err
		}
		return dev, false, nil

	case errors.Is(err, os.ErrNotExist):
		// создаем ниже

	default:
		return nil, false, err
	}

	dev = &Device{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, false, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := save(path, dev); err != nil {
		return nil, false, err
	}
	return dev, true, nil
}

// DisplayName имя для Status, по умолчанию сам id
func (d *Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// save пишет файл через временный файл и rename
func save(path string, dev *Device) error {
	data, err := json.MarshalIndent(dev, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal device identity: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".device-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write device identity: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync device identity: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save device identity: %w", err)
	}
	return nil
}
