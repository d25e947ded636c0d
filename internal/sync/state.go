package sync

// State состояние оркестратора в рамках одного цикла синхронизации
type State int32

const (
	// StateIdle цикл не выполняется
	StateIdle State = iota
	// StateImporting чтение локального источника
	StateImporting
	// StatePersisting запись новых разговоров в хранилище
	StatePersisting
	// StateExchanging обмен записями с пирами
	StateExchanging
	// StateFailed последний цикл прерван ошибкой
	StateFailed
)

// String возвращает текстовое представление состояния
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateImporting:
		return "importing"
	case StatePersisting:
		return "persisting"
	case StateExchanging:
		return "exchanging"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
