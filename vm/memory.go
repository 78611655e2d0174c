package vm

import "sync/atomic"

// MemorySink receives allocation deltas for diagnostics. Implementations
// must be safe for concurrent use: every worker reports into the same sink.
type MemorySink interface {
	Report(class string, delta int64)
}

// MemoryAccount tracks the bytes held by one class's instances.
type MemoryAccount struct {
	name  string
	sink  MemorySink
	bytes atomic.Int64
	live  atomic.Int64
}

func newMemoryAccount(name string, sink MemorySink) *MemoryAccount {
	return &MemoryAccount{name: name, sink: sink}
}

// Bytes returns the bytes currently accounted.
func (m *MemoryAccount) Bytes() int64 {
	if m == nil {
		return 0
	}
	return m.bytes.Load()
}

// Live returns the number of accounted objects.
func (m *MemoryAccount) Live() int64 {
	if m == nil {
		return 0
	}
	return m.live.Load()
}

func (m *MemoryAccount) charge(size int64) {
	if m == nil {
		return
	}
	m.bytes.Add(size)
	m.live.Add(1)
	if m.sink != nil {
		m.sink.Report(m.name, size)
	}
}

func (m *MemoryAccount) release(size int64) {
	if m == nil || size == 0 {
		return
	}
	m.bytes.Add(-size)
	m.live.Add(-1)
	if m.sink != nil {
		m.sink.Report(m.name, -size)
	}
}

const (
	objectBaseSize   = 96
	callableBaseSize = 128
	valueSize        = 8
)

func objectSize(obj *Object) int64 {
	n := int64(objectBaseSize + valueSize*len(obj.slots))
	if obj.fn != nil {
		n += callableBaseSize
	}
	return n + int64(len(obj.str))
}
