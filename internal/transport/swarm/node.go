// Package swarm асинхронный транспорт синхронизации в локальной сети.
// Пиры находятся через mDNS или статический список, обмен идет кадрами
// api.Frame поверх websocket. Узел только производит события transport.Event
// и отправляет кадры, состояние обмена принадлежит циклу оркестратора.
package swarm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/iudanet/chatsync/internal/transport"
	"github.com/iudanet/chatsync/pkg/api"
)

// Path путь websocket-эндпоинта
const Path = "/swarm"

const (
	DefaultPeerTTL          = 2 * time.Minute
	DefaultAnnounceInterval = 10 * time.Second
	DefaultDialTimeout      = 5 * time.Second
	DefaultMaxMessageSize   = 64 << 20

	eventBuffer = 64
)

var (
	// ErrUnknownPeer нет активного соединения с пиром
	ErrUnknownPeer = errors.New("no link to peer")
	// ErrHandshake первый кадр соединения не является корректным Hello
	ErrHandshake = errors.New("swarm handshake failed")
	// ErrNodeClosed узел остановлен
	ErrNodeClosed = errors.New("swarm node closed")
)

// Config параметры узла
type Config struct {
	DeviceID       string
	DeviceName     string
	ListenAddr     string
	PeerTTL        time.Duration
	DialTimeout    time.Duration
	MaxMessageSize int64
}

func (c Config) withDefaults() Config {
	if c.PeerTTL <= 0 {
		c.PeerTTL = DefaultPeerTTL
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.DeviceName == "" {
		c.DeviceName = c.DeviceID
	}
	return c
}

// link установленное соединение с пиром после обмена Hello
type link struct {
	lastSeen time.Time
	conn     *websocket.Conn
	peerID   string
	name     string
	addr     string
	mu       sync.Mutex
	outbound bool
}

func (l *link) touch(at time.Time) {
	l.mu.Lock()
	l.lastSeen = at
	l.mu.Unlock()
}

func (l *link) seenAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeen
}

// Node узел swarm-сети
type Node struct {
	discoverer Discoverer
	logger     *slog.Logger
	listener   net.Listener
	events     chan transport.Event
	links      map[string]*link
	dialing    map[string]bool
	addrIDs    map[string]string // адрес статического пира -> DeviceID после первого Hello
	cfg        Config
	wg         sync.WaitGroup
	mu         sync.Mutex
	closed     bool
}

// NewNode создает узел. discoverer может быть nil, тогда узел только принимает соединения.
func NewNode(cfg Config, discoverer Discoverer, logger *slog.Logger) (*Node, error) {
	if cfg.DeviceID == "" {
		return nil, errors.New("device id is required")
	}
	return &Node{
		cfg:        cfg.withDefaults(),
		discoverer: discoverer,
		logger:     logger,
		events:     make(chan transport.Event, eventBuffer),
		links:      make(map[string]*link),
		dialing:    make(map[string]bool),
		addrIDs:    make(map[string]string),
	}, nil
}

// Events поток событий для цикла оркестратора.
// Канал закрывается после остановки Run.
func (n *Node) Events() <-chan transport.Event {
	return n.events
}

// Listen открывает листенер. Вызывается неявно из Run.
func (n *Node) Listen() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.cfg.ListenAddr, err)
	}
	n.listener = ln
	return nil
}

// Addr фактический адрес листенера или пустая строка до Listen
func (n *Node) Addr() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.listener == nil {
		return ""
	}
	return n.listener.Addr().String()
}

// Peers идентификаторы пиров с активным соединением
func (n *Node) Peers() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	ids := make([]string, 0, len(n.links))
	for id := range n.links {
		ids = append(ids, id)
	}
	return ids
}

// Run обслуживает входящие соединения, обнаружение и истечение пиров до отмены ctx.
// По завершении все соединения закрыты, канал Events закрыт.
func (n *Node) Run(ctx context.Context) error {
	if err := n.Listen(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc(Path, n.handleSwarm)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(n.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	self := PeerInfo{DeviceID: n.cfg.DeviceID, Name: n.cfg.DeviceName, Addr: n.Addr()}
	found := make(chan PeerInfo, 16)
	if n.discoverer != nil && n.track() {
		go func() {
			defer n.wg.Done()
			if err := n.discoverer.Discover(ctx, self, found); err != nil && ctx.Err() == nil {
				n.logger.Error("Peer discovery stopped", "error", err)
			}
		}()
	}

	n.logger.Info("Swarm node started", "device_id", n.cfg.DeviceID, "addr", self.Addr)

	expiry := time.NewTicker(max(n.cfg.PeerTTL/3, 10*time.Millisecond))
	defer expiry.Stop()

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err = <-serveErr:
			n.logger.Error("Swarm listener failed", "error", err)
			break loop
		case info := <-found:
			n.maybeDial(ctx, info)
		case <-expiry.C:
			n.expire(ctx)
		}
	}

	cancel()
	n.shutdown(srv)
	n.logger.Info("Swarm node stopped", "device_id", n.cfg.DeviceID)
	return err
}

// track регистрирует фоновую горутину, false после остановки узла
func (n *Node) track() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return false
	}
	n.wg.Add(1)
	return true
}

func (n *Node) shutdown(srv *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		n.logger.Warn("Swarm listener shutdown error", "error", err)
	}

	n.mu.Lock()
	n.closed = true
	links := make([]*link, 0, len(n.links))
	for _, l := range n.links {
		links = append(links, l)
	}
	n.mu.Unlock()

	for _, l := range links {
		_ = l.conn.CloseNow()
	}

	n.wg.Wait()
	close(n.events)
}

// SendRequest отправляет запрос пиру и возвращает ID кадра для сопоставления ответа
func (n *Node) SendRequest(ctx context.Context, peerID string, req api.Request) (string, error) {
	id := uuid.NewString()
	if err := n.send(ctx, peerID, api.Frame{ID: id, Request: &req}); err != nil {
		return "", err
	}
	return id, nil
}

// SendResponse отвечает на запрос requestID
func (n *Node) SendResponse(ctx context.Context, peerID, requestID string, resp api.Response) error {
	return n.send(ctx, peerID, api.Frame{ID: requestID, Response: &resp})
}

func (n *Node) send(ctx context.Context, peerID string, frame api.Frame) error {
	n.mu.Lock()
	l, ok := n.links[peerID]
	closed := n.closed
	n.mu.Unlock()

	if closed {
		return ErrNodeClosed
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peerID)
	}

	frame.From = n.cfg.DeviceID
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, n.cfg.DialTimeout)
	defer cancel()
	if err := l.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to write frame to %s: %w", peerID, err)
	}
	return nil
}

// maybeDial устанавливает исходящее соединение, если оно нужно.
// Пиры из mDNS видят друг друга, поэтому звонит только устройство с меньшим ID.
// Статический адрес звонится всегда, пока с ним нет соединения.
func (n *Node) maybeDial(ctx context.Context, info PeerInfo) {
	if info.Addr == "" || info.DeviceID == n.cfg.DeviceID {
		return
	}
	if info.DeviceID != "" && !dialsFirst(n.cfg.DeviceID, info.DeviceID) {
		return
	}

	n.mu.Lock()
	peerID := info.DeviceID
	if peerID == "" {
		peerID = n.addrIDs[info.Addr]
	}
	_, connected := n.links[peerID]
	if connected || n.dialing[info.Addr] || n.closed {
		n.mu.Unlock()
		return
	}
	n.dialing[info.Addr] = true
	n.wg.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.wg.Done()
		defer func() {
			n.mu.Lock()
			delete(n.dialing, info.Addr)
			n.mu.Unlock()
		}()
		n.dial(ctx, info)
	}()
}

func (n *Node) dial(ctx context.Context, info PeerInfo) {
	dialCtx, cancel := context.WithTimeout(ctx, n.cfg.DialTimeout)
	defer cancel()

	url := "ws://" + info.Addr + Path
	conn, resp, err := websocket.Dial(dialCtx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		n.logger.Debug("Failed to dial peer", "addr", info.Addr, "device_id", info.DeviceID, "error", err)
		return
	}

	n.serveConn(ctx, conn, info.Addr, true)
}

func (n *Node) handleSwarm(w http.ResponseWriter, r *http.Request) {
	if !n.track() {
		http.Error(w, ErrNodeClosed.Error(), http.StatusServiceUnavailable)
		return
	}
	defer n.wg.Done()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		n.logger.Warn("Failed to accept swarm connection", "remote", r.RemoteAddr, "error", err)
		return
	}

	n.serveConn(r.Context(), conn, r.RemoteAddr, false)
}

// serveConn выполняет обмен Hello и читает кадры до разрыва соединения
func (n *Node) serveConn(ctx context.Context, conn *websocket.Conn, addr string, outbound bool) {
	conn.SetReadLimit(n.cfg.MaxMessageSize)

	hello, err := n.handshake(ctx, conn)
	if err != nil {
		n.logger.Debug("Swarm handshake failed", "addr", addr, "error", err)
		_ = conn.Close(websocket.StatusPolicyViolation, "handshake failed")
		return
	}
	if hello.DeviceID == n.cfg.DeviceID {
		_ = conn.Close(websocket.StatusNormalClosure, "self")
		return
	}
	if outbound {
		n.mu.Lock()
		n.addrIDs[addr] = hello.DeviceID
		n.mu.Unlock()
	}

	l := &link{
		conn:     conn,
		peerID:   hello.DeviceID,
		name:     hello.DeviceName,
		addr:     addr,
		outbound: outbound,
		lastSeen: time.Now(),
	}
	if !n.register(ctx, l) {
		_ = conn.Close(websocket.StatusNormalClosure, "duplicate link")
		return
	}

	n.readLoop(ctx, l)
	n.unregister(ctx, l)
}

// handshake обе стороны отправляют Hello и ждут Hello пира
func (n *Node) handshake(ctx context.Context, conn *websocket.Conn) (*api.Hello, error) {
	hsCtx, cancel := context.WithTimeout(ctx, n.cfg.DialTimeout)
	defer cancel()

	data, err := json.Marshal(api.Frame{
		From:  n.cfg.DeviceID,
		Hello: &api.Hello{DeviceID: n.cfg.DeviceID, DeviceName: n.cfg.DeviceName},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode hello: %w", err)
	}
	if err := conn.Write(hsCtx, websocket.MessageText, data); err != nil {
		return nil, fmt.Errorf("failed to send hello: %w", err)
	}

	_, data, err = conn.Read(hsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to read hello: %w", err)
	}

	var frame api.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if frame.Hello == nil || frame.Hello.DeviceID == "" {
		return nil, fmt.Errorf("%w: first frame is not hello", ErrHandshake)
	}
	return frame.Hello, nil
}

// register добавляет соединение. Из двух соединений с одним пиром
// остается то, которое открыло устройство с меньшим ID.
func (n *Node) register(ctx context.Context, l *link) bool {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return false
	}
	existing := n.links[l.peerID]
	if existing != nil && existing.outbound != l.outbound && l.outbound != dialsFirst(n.cfg.DeviceID, l.peerID) {
		n.mu.Unlock()
		return false
	}
	n.links[l.peerID] = l
	n.mu.Unlock()

	if existing != nil {
		n.logger.Debug("Replacing duplicate link", "peer_id", l.peerID, "outbound", l.outbound)
		_ = existing.conn.CloseNow()
		return true
	}

	n.logger.Info("Peer connected", "peer_id", l.peerID, "name", l.name, "addr", l.addr, "outbound", l.outbound)
	n.emit(ctx, transport.Event{Kind: transport.PeerDiscovered, PeerID: l.peerID, PeerName: l.name, Addr: l.addr})
	return true
}

// unregister удаляет соединение, PeerExpired только если его не заменили
func (n *Node) unregister(ctx context.Context, l *link) {
	n.mu.Lock()
	current := n.links[l.peerID] == l
	if current {
		delete(n.links, l.peerID)
	}
	n.mu.Unlock()

	_ = l.conn.CloseNow()

	if current {
		n.logger.Info("Peer disconnected", "peer_id", l.peerID)
		n.emit(ctx, transport.Event{Kind: transport.PeerExpired, PeerID: l.peerID, PeerName: l.name, Addr: l.addr})
	}
}

func (n *Node) readLoop(ctx context.Context, l *link) {
	for {
		_, data, err := l.conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
				n.logger.Debug("Swarm link read failed", "peer_id", l.peerID, "error", err)
			}
			return
		}
		l.touch(time.Now())

		var frame api.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			n.logger.Warn("Dropping malformed frame", "peer_id", l.peerID, "error", err)
			continue
		}

		switch {
		case frame.Request != nil:
			n.emit(ctx, transport.Event{
				Kind:      transport.RequestReceived,
				PeerID:    l.peerID,
				RequestID: frame.ID,
				Request:   frame.Request,
			})
		case frame.Response != nil:
			n.emit(ctx, transport.Event{
				Kind:      transport.ResponseReceived,
				PeerID:    l.peerID,
				RequestID: frame.ID,
				Response:  frame.Response,
			})
		default:
			n.logger.Debug("Ignoring frame without payload", "peer_id", l.peerID, "id", frame.ID)
		}
	}
}

// expire пингует соединения и закрывает те, от которых ничего не было дольше PeerTTL
func (n *Node) expire(ctx context.Context) {
	n.mu.Lock()
	links := make([]*link, 0, len(n.links))
	for _, l := range n.links {
		links = append(links, l)
	}
	n.mu.Unlock()

	now := time.Now()
	for _, l := range links {
		if now.Sub(l.seenAt()) > n.cfg.PeerTTL {
			n.logger.Info("Peer expired", "peer_id", l.peerID, "last_seen", l.seenAt())
			// readLoop завершится и отправит PeerExpired
			_ = l.conn.CloseNow()
			continue
		}
		if !n.track() {
			return
		}
		go func(l *link) {
			defer n.wg.Done()
			pingCtx, cancel := context.WithTimeout(ctx, n.cfg.DialTimeout)
			defer cancel()
			if err := l.conn.Ping(pingCtx); err == nil {
				l.touch(time.Now())
			}
		}(l)
	}
}

func (n *Node) emit(ctx context.Context, ev transport.Event) {
	select {
	case n.events <- ev:
	case <-ctx.Done():
	}
}

// dialsFirst true, если соединение открывает self
func dialsFirst(self, peer string) bool {
	return self < peer
}
