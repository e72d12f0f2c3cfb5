package report

import "github.com/heaptrack-analyze/heaptrack-print/internal/accum"

// CostField names one of the four running cost dimensions a report can
// be sorted and emitted by.
type CostField int

const (
	CostAllocations CostField = iota
	CostPeak
	CostLeaked
	CostTemporary
)

// String returns the flag-facing name of the cost field.
func (c CostField) String() string {
	switch c {
	case CostAllocations:
		return "allocations"
	case CostPeak:
		return "peak"
	case CostLeaked:
		return "leaked"
	case CostTemporary:
		return "temporary"
	default:
		return "unknown"
	}
}

// ParseCostField maps a flag value to a CostField. ok is false for any
// name other than the four recognized ones.
func ParseCostField(name string) (CostField, bool) {
	switch name {
	case "allocations":
		return CostAllocations, true
	case "peak":
		return CostPeak, true
	case "leaked":
		return CostLeaked, true
	case "temporary":
		return CostTemporary, true
	default:
		return 0, false
	}
}

// Of extracts the value of c from d.
func (c CostField) Of(d accum.AllocationData) int64 {
	switch c {
	case CostAllocations:
		return d.Allocations
	case CostPeak:
		return d.Peak
	case CostLeaked:
		return d.Leaked
	case CostTemporary:
		return d.Temporary
	default:
		return 0
	}
}

// AllCostFields lists every cost field.
var AllCostFields = []CostField{CostPeak, CostLeaked, CostAllocations, CostTemporary}
