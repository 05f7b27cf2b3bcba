// Package buffer holds the rolling window of normalized trades that the
// physics engine samples on every tick. Trades arrive mostly in timestamp
// order from a single drain goroutine, so the buffer optimizes for cheap
// appends and amortized pruning, but reads never assume ordering.
package buffer

import (
	"sync"

	"vortexflow/internal/model"
)

// DefaultHighWater is the buffer length that triggers a prune on append.
const DefaultHighWater = 5000

// TradeBuffer keeps trades for the most recent window. Appends are O(1);
// expired entries are pruned lazily once the buffer grows past the high
// water mark, and filtered out on every read regardless.
type TradeBuffer struct {
	mu        sync.RWMutex
	trades    []model.Trade
	windowMs  int64
	highWater int
}

// NewTradeBuffer creates a buffer covering windowMs milliseconds of trades.
// A non-positive highWater falls back to DefaultHighWater.
func NewTradeBuffer(windowMs int64, highWater int) *TradeBuffer {
	if highWater <= 0 {
		highWater = DefaultHighWater
	}
	return &TradeBuffer{
		trades:    make([]model.Trade, 0, 256),
		windowMs:  windowMs,
		highWater: highWater,
	}
}

// Append adds a trade to the tail of the buffer. When the buffer length
// exceeds the high water mark the head is pruned up to the window boundary
// anchored at the new trade's timestamp.
func (b *TradeBuffer) Append(t model.Trade) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trades = append(b.trades, t)
	if len(b.trades) > b.highWater {
		b.pruneLocked(t.TimestampMs - b.windowMs)
	}
}

// pruneLocked drops trades older than cutoffMs from the head. Callers must
// hold the write lock.
func (b *TradeBuffer) pruneLocked(cutoffMs int64) {
	idx := 0
	for idx < len(b.trades) && b.trades[idx].TimestampMs < cutoffMs {
		idx++
	}
	if idx == 0 {
		return
	}

	remaining := len(b.trades) - idx
	copy(b.trades, b.trades[idx:])
	b.trades = b.trades[:remaining]
}

// Windowed returns a copy of the trades with TimestampMs >= nowMs - window,
// preserving arrival order. Every entry is tested against the cutoff; feeds
// can deliver trades out of timestamp order, so a fresh trade ahead of a
// stale one must not shield it from the filter.
func (b *TradeBuffer) Windowed(nowMs int64) []model.Trade {
	cutoff := nowMs - b.windowMs

	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]model.Trade, 0, len(b.trades))
	for _, t := range b.trades {
		if t.TimestampMs >= cutoff {
			out = append(out, t)
		}
	}
	return out
}

// Len reports the number of buffered trades including any not yet pruned.
func (b *TradeBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.trades)
}

// Reset discards all buffered trades.
func (b *TradeBuffer) Reset() {
	b.mu.Lock()
	b.trades = b.trades[:0]
	b.mu.Unlock()
}
