package crdt

import (
	"sort"
	"strconv"
	"strings"
)

// Ordering результат сравнения двух векторных часов
type Ordering int

const (
	// Equal часы совпадают по всем компонентам
	Equal Ordering = iota
	// Before левые часы строго предшествуют правым
	Before
	// After левые часы строго следуют за правыми
	After
	// Concurrent часы несравнимы: у каждой стороны есть события, неизвестные другой
	Concurrent
)

// String возвращает текстовое представление порядка
func (o Ordering) String() string {
	switch o {
	case Equal:
		return "equal"
	case Before:
		return "before"
	case After:
		return "after"
	case Concurrent:
		return "concurrent"
	default:
		return "unknown"
	}
}

// VectorClock векторные часы: счетчик событий на каждое устройство.
// Отсутствующий ключ эквивалентен нулю. Значение не потокобезопасно,
// владелец записи отвечает за синхронизацию доступа.
type VectorClock map[string]uint64

// NewVectorClock создает пустые часы
func NewVectorClock() VectorClock {
	return make(VectorClock)
}

// Increment увеличивает счетчик устройства и возвращает новое значение.
// Используется при каждом локальном изменении записи.
func (vc *VectorClock) Increment(device string) uint64 {
	if *vc == nil {
		*vc = make(VectorClock)
	}
	(*vc)[device]++
	return (*vc)[device]
}

// Get возвращает счетчик устройства, 0 если устройство неизвестно
func (vc VectorClock) Get(device string) uint64 {
	return vc[device]
}

// Merge возвращает покомпонентный максимум двух часов.
// Операция чистая: ни один из аргументов не изменяется.
func (vc VectorClock) Merge(other VectorClock) VectorClock {
	result := make(VectorClock, max(len(vc), len(other)))
	for device, counter := range vc {
		if counter > 0 {
			result[device] = counter
		}
	}
	for device, counter := range other {
		if counter > result[device] {
			result[device] = counter
		}
	}
	return result
}

// Compare определяет причинный порядок между vc и other
func (vc VectorClock) Compare(other VectorClock) Ordering {
	less, greater := false, false

	for device, counter := range vc {
		theirs := other[device]
		if counter < theirs {
			less = true
		} else if counter > theirs {
			greater = true
		}
	}
	// Ключи, которые есть только у other
	for device, theirs := range other {
		if _, ok := vc[device]; !ok && theirs > 0 {
			less = true
		}
	}

	switch {
	case less && greater:
		return Concurrent
	case less:
		return Before
	case greater:
		return After
	default:
		return Equal
	}
}

// HappenedBefore true, если vc строго предшествует other
func (vc VectorClock) HappenedBefore(other VectorClock) bool {
	return vc.Compare(other) == Before
}

// ConcurrentWith true, если часы несравнимы
func (vc VectorClock) ConcurrentWith(other VectorClock) bool {
	return vc.Compare(other) == Concurrent
}

// Equal true, если все компоненты совпадают (нулевые ключи игнорируются)
func (vc VectorClock) Equal(other VectorClock) bool {
	return vc.Compare(other) == Equal
}

// Dominates true, если vc >= other покомпонентно (Equal или After)
func (vc VectorClock) Dominates(other VectorClock) bool {
	o := vc.Compare(other)
	return o == Equal || o == After
}

// Sum сумма всех счетчиков, то есть сколько правок видела версия.
// Ноль означает пустые часы.
func (vc VectorClock) Sum() uint64 {
	var total uint64
	for _, counter := range vc {
		total += counter
	}
	return total
}

// Clone создает независимую копию часов
func (vc VectorClock) Clone() VectorClock {
	if vc == nil {
		return nil
	}
	clone := make(VectorClock, len(vc))
	for device, counter := range vc {
		clone[device] = counter
	}
	return clone
}

// Devices возвращает отсортированный список устройств с ненулевым счетчиком
func (vc VectorClock) Devices() []string {
	devices := make([]string, 0, len(vc))
	for device, counter := range vc {
		if counter > 0 {
			devices = append(devices, device)
		}
	}
	sort.Strings(devices)
	return devices
}

// String детерминированное представление вида {a:1, b:2}
func (vc VectorClock) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, device := range vc.Devices() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(device)
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(vc[device], 10))
	}
	sb.WriteByte('}')
	return sb.String()
}
