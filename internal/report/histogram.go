package report

import (
	"fmt"
	"io"
	"sort"
)

// Histogram counts how many allocations were made of each distinct
// size. It is populated incrementally as allocation events arrive and
// written out, sorted by size ascending, as a simple two-column file.
type Histogram struct {
	counts map[uint64]uint64
}

// NewHistogram creates an empty size histogram.
func NewHistogram() *Histogram {
	return &Histogram{counts: make(map[uint64]uint64)}
}

// Record increments the count for the given allocation size.
func (h *Histogram) Record(size uint64) {
	h.counts[size]++
}

// WriteHistogram emits one "size\tcount\n" line per distinct size, ascending.
func WriteHistogram(w io.Writer, h *Histogram) error {
	sizes := make([]uint64, 0, len(h.counts))
	for size := range h.counts {
		sizes = append(sizes, size)
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })

	for _, size := range sizes {
		if _, err := fmt.Fprintf(w, "%d\t%d\n", size, h.counts[size]); err != nil {
			return err
		}
	}
	return nil
}
