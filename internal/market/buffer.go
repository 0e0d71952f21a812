package market

import "sync"

// DefaultBufferCapacity bounds the per-symbol tick history. Old ticks are
// evicted once the capacity is reached.
const DefaultBufferCapacity = 1000

// TickBuffer keeps a bounded rolling window of ticks per symbol. Safe for
// concurrent use; the feed goroutine appends while analysis loops read.
type TickBuffer struct {
	mu       sync.RWMutex
	capacity int
	ticks    map[string][]Tick
}

func NewTickBuffer(capacity int) *TickBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &TickBuffer{
		capacity: capacity,
		ticks:    make(map[string][]Tick),
	}
}

func (b *TickBuffer) Append(t Tick) {
	if t.Symbol == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	buf := append(b.ticks[t.Symbol], t)
	if over := len(buf) - b.capacity; over > 0 {
		buf = append(buf[:0], buf[over:]...)
	}
	b.ticks[t.Symbol] = buf
}

// Recent returns up to n most recent ticks for symbol, oldest first.
// n <= 0 returns the whole window.
func (b *TickBuffer) Recent(symbol string, n int) []Tick {
	b.mu.RLock()
	defer b.mu.RUnlock()
	buf := b.ticks[symbol]
	if n <= 0 || n > len(buf) {
		n = len(buf)
	}
	out := make([]Tick, n)
	copy(out, buf[len(buf)-n:])
	return out
}

// Len reports the number of buffered ticks for symbol.
func (b *TickBuffer) Len(symbol string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ticks[symbol])
}

// LastPrice returns the most recent price for symbol, if any.
func (b *TickBuffer) LastPrice(symbol string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	buf := b.ticks[symbol]
	if len(buf) == 0 {
		return 0, false
	}
	return buf[len(buf)-1].Price, true
}
