package report

import (
	"fmt"
	"math"
)

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatBytes renders bytes as a human-readable size using decimal
// (1000-based) units, matching heaptrack's own report formatting:
// whole bytes are never shown with a fraction, larger units always get
// two decimal places.
func FormatBytes(bytes int64) string {
	value := float64(bytes)
	unit := 0
	for unit < len(byteUnits)-1 && math.Abs(value) > 1000 {
		value /= 1000
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%d%s", bytes, byteUnits[unit])
	}
	return fmt.Sprintf("%.2f%s", value, byteUnits[unit])
}
