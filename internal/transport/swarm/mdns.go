package swarm

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType тип mDNS-сервиса chatsync
	ServiceType = "_chatsync._tcp"
	mdnsDomain  = "local."

	txtDeviceID = "device_id="
	txtName     = "name="
)

// MDNS обнаружение пиров в локальной сети через zeroconf.
// Узел регистрирует себя и раунд за раундом просматривает сеть,
// поэтому живые пиры регулярно сообщаются заново.
type MDNS struct {
	logger   *slog.Logger
	Service  string
	Interval time.Duration
}

// NewMDNS создает mDNS Discoverer
func NewMDNS(interval time.Duration, logger *slog.Logger) *MDNS {
	if interval <= 0 {
		interval = DefaultAnnounceInterval
	}
	return &MDNS{Service: ServiceType, Interval: interval, logger: logger}
}

// Discover регистрирует локальный узел и просматривает сеть до отмены ctx
func (m *MDNS) Discover(ctx context.Context, self PeerInfo, found chan<- PeerInfo) error {
	_, portStr, err := net.SplitHostPort(self.Addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", self.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid listen port %q: %w", portStr, err)
	}

	server, err := zeroconf.Register(
		"chatsync-"+self.DeviceID,
		m.Service,
		mdnsDomain,
		port,
		[]string{txtDeviceID + self.DeviceID, txtName + self.Name},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	defer server.Shutdown()

	m.logger.Info("mDNS service registered", "service", m.Service, "port", port)

	for {
		if err := m.browse(ctx, self.DeviceID, found); err != nil {
			m.logger.Warn("mDNS browse failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(m.Interval):
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// browse один раунд просмотра длиной Interval
func (m *MDNS) browse(ctx context.Context, selfID string, found chan<- PeerInfo) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to initialize mDNS resolver: %w", err)
	}

	roundCtx, cancel := context.WithTimeout(ctx, m.Interval)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(roundCtx, m.Service, mdnsDomain, entries); err != nil {
		return fmt.Errorf("failed to browse mDNS services: %w", err)
	}

	// Канал закрывается резолвером по окончании раунда.
	// Резолвер пишет в канал без учета ctx, поэтому читаем до закрытия.
	for entry := range entries {
		info, ok := peerFromEntry(entry)
		if !ok || info.DeviceID == selfID || ctx.Err() != nil {
			continue
		}
		select {
		case found <- info:
		case <-ctx.Done():
		}
	}
	return nil
}

// peerFromEntry извлекает пира из mDNS-записи.
// Записи без device_id или без IPv4-адреса пропускаются.
func peerFromEntry(entry *zeroconf.ServiceEntry) (PeerInfo, bool) {
	if entry == nil || len(entry.AddrIPv4) == 0 || entry.Port == 0 {
		return PeerInfo{}, false
	}

	var info PeerInfo
	for _, txt := range entry.Text {
		switch {
		case strings.HasPrefix(txt, txtDeviceID):
			info.DeviceID = strings.TrimPrefix(txt, txtDeviceID)
		case strings.HasPrefix(txt, txtName):
			info.Name = strings.TrimPrefix(txt, txtName)
		}
	}
	if info.DeviceID == "" {
		return PeerInfo{}, false
	}

	info.Addr = net.JoinHostPort(entry.AddrIPv4[0].String(), strconv.Itoa(entry.Port))
	return info, true
}
