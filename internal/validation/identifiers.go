package validation

import (
	"fmt"
	"regexp"
	"unicode"
)

// ConversationIDPattern определяет допустимый формат идентификатора разговора.
// UUID, ключи IDE ("composer-…") и имена экспортов укладываются в этот формат.
var ConversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)

const (
	// MaxDeviceNameLen максимальная длина имени устройства
	MaxDeviceNameLen = 64
	// MaxPullLimit верхняя граница limit в запросе Pull
	MaxPullLimit = 5000
)

// ValidateConversationID проверяет идентификатор разговора
func ValidateConversationID(id string) error {
	if id == "" {
		return fmt.Errorf("conversation id cannot be empty")
	}

	if !ConversationIDPattern.MatchString(id) {
		return fmt.Errorf("conversation id %q must be 1-128 characters of letters, digits, '.', '_', ':' or '-'", id)
	}

	return nil
}

// ValidateDeviceName проверяет человекочитаемое имя устройства
// Длина: 1-64 символа, без управляющих символов
func ValidateDeviceName(name string) error {
	if name == "" {
		return fmt.Errorf("device name cannot be empty")
	}

	if len([]rune(name)) > MaxDeviceNameLen {
		return fmt.Errorf("device name must not exceed %d characters", MaxDeviceNameLen)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("device name cannot contain control characters")
		}
	}

	return nil
}

// ValidatePullLimit проверяет limit запроса Pull
func ValidatePullLimit(limit int) error {
	if limit <= 0 {
		return fmt.Errorf("limit must be positive")
	}

	if limit > MaxPullLimit {
		return fmt.Errorf("limit must not exceed %d", MaxPullLimit)
	}

	return nil
}
