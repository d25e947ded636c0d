package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConversationID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
		errMsg  string
	}{
		{name: "uuid", id: "6f1c0a52-8f7e-4b8e-9c55-0d7f1ad4c1a2"},
		{name: "composer key", id: "composer:abc_123"},
		{name: "dotted name", id: "export.2025-01-01"},
		{name: "max length", id: strings.Repeat("a", 128)},
		{name: "empty", id: "", wantErr: true, errMsg: "conversation id cannot be empty"},
		{name: "too long", id: strings.Repeat("a", 129), wantErr: true},
		{name: "leading dash", id: "-abc", wantErr: true},
		{name: "space", id: "a b", wantErr: true},
		{name: "slash", id: "a/b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConversationID(tt.id)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.errMsg != "" {
				assert.Equal(t, tt.errMsg, err.Error())
			}
		})
	}
}

func TestValidateDeviceName(t *testing.T) {
	tests := []struct {
		name       string
		deviceName string
		wantErr    bool
		errMsg     string
	}{
		{name: "hostname", deviceName: "laptop-01"},
		{name: "unicode", deviceName: "Ноутбук Алисы"},
		{name: "max length unicode", deviceName: strings.Repeat("ж", MaxDeviceNameLen)},
		{name: "empty", deviceName: "", wantErr: true, errMsg: "device name cannot be empty"},
		{name: "too long", deviceName: strings.Repeat("a", MaxDeviceNameLen+1), wantErr: true, errMsg: "device name must not exceed 64 characters"},
		{name: "control character", deviceName: "bad\nname", wantErr: true, errMsg: "device name cannot contain control characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDeviceName(tt.deviceName)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.errMsg, err.Error())
		})
	}
}

func TestValidatePullLimit(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		wantErr bool
	}{
		{name: "one", limit: 1},
		{name: "max", limit: MaxPullLimit},
		{name: "zero", limit: 0, wantErr: true},
		{name: "negative", limit: -5, wantErr: true},
		{name: "above max", limit: MaxPullLimit + 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePullLimit(tt.limit)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
