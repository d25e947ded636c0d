// Package sync drives replication of conversation records: seeding from the
// local source, merging inbound records and exchanging them with peers.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/iudanet/chatsync/internal/storage"
	"github.com/iudanet/chatsync/internal/validation"
)

//go:generate moq -out source_mock.go . Source
//go:generate moq -out peer_mock.go . Peer
//go:generate moq -out sender_mock.go . Sender

var (
	// ErrPeerUnreachable транспортная ошибка при обмене с пиром.
	// Цикл продолжается с остальными пирами, пир повторяется в следующем цикле.
	ErrPeerUnreachable = errors.New("peer unreachable")

	// ErrStore ошибка хранилища, цикл прерывается
	ErrStore = errors.New("store failure")

	// ErrInvalidRecord структурно некорректная входящая запись
	ErrInvalidRecord = errors.New("invalid record")

	// ErrConversationDeleted попытка изменить удаленный разговор
	ErrConversationDeleted = errors.New("conversation is deleted")

	// ErrConversationExists разговор с таким ID уже есть
	ErrConversationExists = errors.New("conversation already exists")

	// ErrSelfPeer пир сообщил наш собственный device id
	ErrSelfPeer = errors.New("peer reports our own device id")

	// ErrRequestTimeout пир не ответил за RequestTimeout
	ErrRequestTimeout = errors.New("request timed out")
)

// Default values for Config
const (
	DefaultPullLimit      = 500
	DefaultPushBatchSize  = 100
	DefaultRequestTimeout = 30 * time.Second
	DefaultResyncInterval = 5 * time.Minute
)

// Config параметры оркестратора
type Config struct {
	DeviceID       string
	DeviceName     string
	Version        string
	PullLimit      int
	PushBatchSize  int
	RequestTimeout time.Duration
	ResyncInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.DeviceName == "" {
		c.DeviceName = c.DeviceID
	}
	if c.PullLimit <= 0 {
		c.PullLimit = DefaultPullLimit
	}
	if c.PushBatchSize <= 0 {
		c.PushBatchSize = DefaultPushBatchSize
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.ResyncInterval <= 0 {
		c.ResyncInterval = DefaultResyncInterval
	}
	return c
}

// Option настраивает Service
type Option func(*Service)

// WithSource подключает локальный источник разговоров для импорта
func WithSource(src Source) Option {
	return func(s *Service) {
		s.source = src
	}
}

// WithPeerStorage включает сохранение учета пиров между перезапусками
func WithPeerStorage(ps storage.PeerStorage) Option {
	return func(s *Service) {
		s.peerStore = ps
	}
}

// WithClock подменяет источник времени (для тестов)
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service оркестратор синхронизации одного устройства.
// Идентификатор устройства хранится здесь и передается явно, глобального состояния нет.
type Service struct {
	store     storage.RecordStorage
	peerStore storage.PeerStorage
	source    Source
	peers     *PeerBook
	logger    *slog.Logger
	now       func() time.Time
	cfg       Config
	cycleMu   stdsync.Mutex // один цикл за раз
	state     atomic.Int32
}

// NewService creates a new sync service
func NewService(cfg Config, store storage.RecordStorage, logger *slog.Logger, opts ...Option) (*Service, error) {
	if cfg.DeviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	cfg = cfg.withDefaults()
	if err := validation.ValidateDeviceName(cfg.DeviceName); err != nil {
		return nil, fmt.Errorf("invalid device name: %w", err)
	}
	if err := validation.ValidatePullLimit(cfg.PullLimit); err != nil {
		return nil, fmt.Errorf("invalid pull limit: %w", err)
	}

	s := &Service{
		cfg:    cfg,
		store:  store,
		peers:  NewPeerBook(),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DeviceID возвращает идентификатор этого устройства
func (s *Service) DeviceID() string {
	return s.cfg.DeviceID
}

// DeviceName возвращает имя этого устройства
func (s *Service) DeviceName() string {
	return s.cfg.DeviceName
}

// Version версия сборки, отдается в /health
func (s *Service) Version() string {
	return s.cfg.Version
}

// State возвращает текущее состояние оркестратора
func (s *Service) State() State {
	return State(s.state.Load())
}

// Peers возвращает учет пиров
func (s *Service) Peers() *PeerBook {
	return s.peers
}

// Close останавливает учет пиров. Хранилище закрывает владелец.
func (s *Service) Close() {
	s.peers.Close()
}

func (s *Service) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		s.logger.Debug("Sync state changed", "from", prev.String(), "to", st.String())
	}
}

// RestorePeers загружает сохраненный учет пиров. Ошибка не критична:
// без учета мы лишь повторно отправим данные.
func (s *Service) RestorePeers(ctx context.Context) error {
	if s.peerStore == nil {
		return nil
	}
	snaps, err := s.peerStore.ListPeers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load peers: %w", err)
	}
	s.peers.Restore(snaps)
	s.logger.Debug("Restored peer bookkeeping", "peers", len(snaps))
	return nil
}

func (s *Service) savePeer(ctx context.Context, peerID string) {
	if s.peerStore == nil {
		return
	}
	snap, ok := s.peers.Snapshot(peerID)
	if !ok {
		return
	}
	if err := s.peerStore.SavePeer(ctx, snap); err != nil {
		s.logger.Warn("Failed to persist peer bookkeeping", "peer_id", peerID, "error", err)
	}
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
