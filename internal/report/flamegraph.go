package report

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/heaptrack-analyze/heaptrack-print/internal/accum"
	"github.com/heaptrack-analyze/heaptrack-print/internal/trace"
)

// WriteFlamegraph emits one folded-stack line per Allocation: root-first,
// semicolon-separated frames rendered as "function (basename_of_file);",
// with inlined frames appended at the same depth, followed by the chosen
// cost scalar. The format matches flamegraph.pl's input convention.
func WriteFlamegraph(w io.Writer, allocations []accum.Allocation, tt *trace.TraceTable, ips *trace.IpTable, names func(trace.StringIndex) string, field CostField) error {
	guard := trace.NewRecursionGuard(tt.Len() + 1)
	var stack []trace.IpIndex

	for _, a := range allocations {
		value := field.Of(a.AllocationData)

		stack = stack[:0]
		tt.Walk(a.TraceIndex, ips, nil, guard, func(ipIndex trace.IpIndex) bool {
			stack = append(stack, ipIndex)
			return true
		})

		var line strings.Builder
		for i := len(stack) - 1; i >= 0; i-- {
			writeFoldedFrame(&line, ips.Find(stack[i]), names)
		}
		if line.Len() == 0 {
			line.WriteString("??")
		}

		if _, err := fmt.Fprintf(w, "%s %d\n", line.String(), value); err != nil {
			return err
		}
	}
	return nil
}

func writeFoldedFrame(line *strings.Builder, ip trace.InstructionPointer, names func(trace.StringIndex) string) {
	if ip.Frame.FunctionIndex != trace.NoString {
		line.WriteString(names(ip.Frame.FunctionIndex))
	} else {
		fmt.Fprintf(line, "0x%x", ip.Address)
	}
	writeFoldedFile(line, ip.Frame.FileIndex, names)
	line.WriteString(";")

	for _, inlined := range ip.Inlined {
		line.WriteString(names(inlined.FunctionIndex))
		writeFoldedFile(line, inlined.FileIndex, names)
		line.WriteString(";")
	}
}

func writeFoldedFile(line *strings.Builder, fileIndex trace.StringIndex, names func(trace.StringIndex) string) {
	if fileIndex == trace.NoString {
		return
	}
	line.WriteString(" (")
	line.WriteString(path.Base(names(fileIndex)))
	line.WriteString(")")
}
