package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/chatsync/internal/storage"
)

func TestNewService(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults applied", cfg: Config{DeviceID: "dev-a"}},
		{name: "explicit values", cfg: Config{DeviceID: "dev-a", DeviceName: "laptop", PullLimit: 50, PushBatchSize: 10}},
		{name: "missing device id", cfg: Config{DeviceName: "laptop"}, wantErr: true},
		{name: "control chars in name", cfg: Config{DeviceID: "dev-a", DeviceName: "bad\nname"}, wantErr: true},
		{name: "pull limit too large", cfg: Config{DeviceID: "dev-a", PullLimit: 100000}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(tt.cfg, &storage.RecordStorageMock{}, testLogger())
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, svc)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cfg.DeviceID, svc.DeviceID())
			assert.Equal(t, StateIdle, svc.State())
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{DeviceID: "dev-a"}.withDefaults()

	assert.Equal(t, "dev-a", cfg.DeviceName)
	assert.Equal(t, DefaultPullLimit, cfg.PullLimit)
	assert.Equal(t, DefaultPushBatchSize, cfg.PushBatchSize)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, DefaultResyncInterval, cfg.ResyncInterval)
	assert.Equal(t, 5*time.Minute, cfg.ResyncInterval)
}

func TestState_String(t *testing.T) {
	tests := []struct {
		expected string
		state    State
	}{
		{"idle", StateIdle},
		{"importing", StateImporting},
		{"persisting", StatePersisting},
		{"exchanging", StateExchanging},
		{"failed", StateFailed},
		{"unknown", State(99)},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.state.String())
	}
}
