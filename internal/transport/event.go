// Package transport описывает события, которые транспорт отдает оркестратору.
// Транспорт только производит события и никогда не меняет состояние оркестратора.
package transport

import "github.com/iudanet/chatsync/pkg/api"

// EventKind тип события транспорта
type EventKind int

const (
	// PeerDiscovered найден новый пир или он снова доступен
	PeerDiscovered EventKind = iota
	// PeerExpired пир пропал из сети
	PeerExpired
	// RequestReceived пир прислал запрос
	RequestReceived
	// ResponseReceived пир ответил на наш запрос
	ResponseReceived
)

// String возвращает текстовое представление типа события
func (k EventKind) String() string {
	switch k {
	case PeerDiscovered:
		return "peer_discovered"
	case PeerExpired:
		return "peer_expired"
	case RequestReceived:
		return "request_received"
	case ResponseReceived:
		return "response_received"
	default:
		return "unknown"
	}
}

// Event событие от транспорта
type Event struct {
	Request   *api.Request
	Response  *api.Response
	PeerID    string
	PeerName  string
	Addr      string
	RequestID string // корреляция запроса и ответа
	Kind      EventKind
}
