package engine

import (
	"time"

	"vortexflow/internal/model"
)

// historySeries keeps one price point per wall-clock second, capped at a
// fixed capacity. Points are value types; updating the current second
// replaces the last element instead of mutating a shared object.
type historySeries struct {
	capacity  int
	points    []model.ChartPoint
	lastLabel string
}

func newHistorySeries(capacity int) *historySeries {
	if capacity <= 0 {
		capacity = 30
	}
	return &historySeries{
		capacity: capacity,
		points:   make([]model.ChartPoint, 0, capacity),
	}
}

// Record folds a price sample into the series. Samples within the same
// second coalesce to a single point carrying the latest price.
func (h *historySeries) Record(ts time.Time, price float64) {
	label := ts.Format("15:04:05")

	if label == h.lastLabel && len(h.points) > 0 {
		h.points[len(h.points)-1] = model.ChartPoint{Label: label, Value: price}
		return
	}

	h.points = append(h.points, model.ChartPoint{Label: label, Value: price})
	if len(h.points) > h.capacity {
		remaining := len(h.points) - 1
		copy(h.points, h.points[1:])
		h.points = h.points[:remaining]
	}
	h.lastLabel = label
}

// Points returns a copy safe to embed in a published snapshot.
func (h *historySeries) Points() []model.ChartPoint {
	out := make([]model.ChartPoint, len(h.points))
	copy(out, h.points)
	return out
}

func (h *historySeries) Reset() {
	h.points = h.points[:0]
	h.lastLabel = ""
}
