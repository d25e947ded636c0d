package swarm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// PeerInfo найденный в сети пир.
// DeviceID может быть пустым, если адрес задан статически.
type PeerInfo struct {
	DeviceID string
	Name     string
	Addr     string // host:port swarm-листенера
}

// Discoverer источник обнаружения пиров.
// Discover блокируется до отмены ctx и периодически шлет найденных пиров в found.
// self описывает локальный узел, Addr содержит фактический адрес листенера.
type Discoverer interface {
	Discover(ctx context.Context, self PeerInfo, found chan<- PeerInfo) error
}

// Static обнаружение по фиксированному списку адресов для сетей без multicast
type Static struct {
	Addrs    []string
	Interval time.Duration
}

// NewStatic создает статический Discoverer
func NewStatic(addrs []string, interval time.Duration) *Static {
	if interval <= 0 {
		interval = DefaultAnnounceInterval
	}
	return &Static{Addrs: addrs, Interval: interval}
}

// Discover повторяет список адресов каждые Interval, первый раз сразу
func (s *Static) Discover(ctx context.Context, self PeerInfo, found chan<- PeerInfo) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		for _, addr := range s.Addrs {
			if addr == "" || addr == self.Addr {
				continue
			}
			select {
			case found <- PeerInfo{Addr: addr}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Multi объединяет несколько Discoverer, например mDNS и статический список.
// Ошибка одного не останавливает остальные.
type Multi []Discoverer

// Discover запускает все Discoverer и ждет их завершения
func (m Multi) Discover(ctx context.Context, self PeerInfo, found chan<- PeerInfo) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, d := range m {
		if d == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Discover(ctx, self, found); err != nil && !errors.Is(err, ctx.Err()) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}
	return ctx.Err()
}
