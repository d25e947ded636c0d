package swarm

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_Discover(t *testing.T) {
	static := NewStatic([]string{"10.0.0.1:7946", "", "10.0.0.2:7946", "127.0.0.1:7946"}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	found := make(chan PeerInfo)
	done := make(chan error, 1)
	go func() {
		done <- static.Discover(ctx, PeerInfo{DeviceID: "self", Addr: "127.0.0.1:7946"}, found)
	}()

	var addrs []string
	for len(addrs) < 4 {
		select {
		case info := <-found:
			assert.Empty(t, info.DeviceID)
			addrs = append(addrs, info.Addr)
		case <-time.After(waitTimeout):
			t.Fatal("timed out waiting for static peers")
		}
	}

	// Список повторяется, пустой адрес и свой адрес пропускаются
	assert.Equal(t, []string{"10.0.0.1:7946", "10.0.0.2:7946", "10.0.0.1:7946", "10.0.0.2:7946"}, addrs)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestNewStatic_DefaultInterval(t *testing.T) {
	assert.Equal(t, DefaultAnnounceInterval, NewStatic(nil, 0).Interval)
	assert.Equal(t, DefaultAnnounceInterval, NewMDNS(-time.Second, testLogger()).Interval)
	assert.Equal(t, ServiceType, NewMDNS(0, testLogger()).Service)
}

func TestPeerFromEntry(t *testing.T) {
	entry := func(port int, ips []net.IP, text ...string) *zeroconf.ServiceEntry {
		e := zeroconf.NewServiceEntry("chatsync-x", ServiceType, "local.")
		e.Port = port
		e.AddrIPv4 = ips
		e.Text = text
		return e
	}
	lan := []net.IP{net.ParseIP("192.168.1.20"), net.ParseIP("10.0.0.5")}

	tests := []struct {
		entry    *zeroconf.ServiceEntry
		name     string
		expected PeerInfo
		ok       bool
	}{
		{
			name:     "full record",
			entry:    entry(7946, lan, "device_id=dev-x", "name=laptop"),
			expected: PeerInfo{DeviceID: "dev-x", Name: "laptop", Addr: "192.168.1.20:7946"},
			ok:       true,
		},
		{
			name:     "name is optional",
			entry:    entry(7000, lan[1:], "txtv=0", "device_id=dev-y"),
			expected: PeerInfo{DeviceID: "dev-y", Addr: "10.0.0.5:7000"},
			ok:       true,
		},
		{name: "no device id", entry: entry(7946, lan, "name=laptop")},
		{name: "empty device id", entry: entry(7946, lan, "device_id=")},
		{name: "no ipv4 address", entry: entry(7946, nil, "device_id=dev-x")},
		{name: "no port", entry: entry(0, lan, "device_id=dev-x")},
		{name: "nil entry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, ok := peerFromEntry(tt.entry)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, info)
		})
	}
}

func TestMDNS_InvalidListenAddress(t *testing.T) {
	m := NewMDNS(time.Second, testLogger())

	err := m.Discover(context.Background(), PeerInfo{DeviceID: "dev-a", Addr: "no-port"}, make(chan PeerInfo))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid listen address")
}

type failingDiscoverer struct{ err error }

func (f failingDiscoverer) Discover(context.Context, PeerInfo, chan<- PeerInfo) error {
	return f.err
}

func TestMulti_Discover(t *testing.T) {
	boom := errors.New("multicast unavailable")
	multi := Multi{
		failingDiscoverer{err: boom},
		nil,
		NewStatic([]string{"10.0.0.9:7946"}, time.Hour),
	}

	ctx, cancel := context.WithCancel(context.Background())
	found := make(chan PeerInfo)
	done := make(chan error, 1)
	go func() {
		done <- multi.Discover(ctx, PeerInfo{DeviceID: "self"}, found)
	}()

	// отказ одного не мешает остальным
	select {
	case info := <-found:
		assert.Equal(t, "10.0.0.9:7946", info.Addr)
	case <-time.After(waitTimeout):
		t.Fatal("static peer not reported")
	}

	cancel()
	err := <-done
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, context.Canceled)
}

func TestMulti_CancelledWithoutErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Multi{NewStatic(nil, time.Hour)}.Discover(ctx, PeerInfo{}, make(chan PeerInfo))
	assert.ErrorIs(t, err, context.Canceled)
}
