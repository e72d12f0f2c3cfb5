// Package reader decodes the line-oriented event log accepted by the
// --file and --diff flags and replays it against a core.Core via the
// Event Interface. Heaptrack's own on-disk format is a versioned,
// compressed binary stream produced by its LD_PRELOAD injector — out of
// scope here, since the core only ever consumes already-decoded events.
// This format exists to let the CLI run end to end against a plain text
// fixture without requiring that injector.
//
// Grammar, one record per line, fields separated by single spaces
// (command strings and suppression patterns take the rest of the line):
//
//	# comment                         ignored, as is a blank line
//	s <text>                          intern a string
//	i <addr-hex> <func> <file> <line> <module> [<func>:<file>:<line> ...]
//	                                  intern an instruction pointer; addr
//	                                  is hex (an optional 0x prefix is
//	                                  accepted), the remaining fields and
//	                                  each inlined triple are 1-based
//	                                  string indices (0 = none)
//	t <ip> <parent>                   intern a trace node
//	+ <trace> <size>                  handleAllocation
//	- <trace> <size>                  handleFree
//	x <trace>                         handleTemporary
//	c <stamp> <final:0|1>              handleTimeStamp (firstPass is
//	                                  always true for this format)
//	d <command...>                    handleDebuggee
//	r <pagesize> <peakrss>             handleSystemInfo
//	u <pattern>                       embedded-suppression pattern
package reader

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/heaptrack-analyze/heaptrack-print/internal/core"
	"github.com/heaptrack-analyze/heaptrack-print/internal/trace"
	apperrors "github.com/heaptrack-analyze/heaptrack-print/pkg/errors"
)

// Result carries the side-channel data a real reader would surface
// alongside the events it fires: embedded suppression patterns recorded
// in the file, for the caller to combine with user/built-in ones.
type Result struct {
	EmbeddedSuppressions []string
}

// Decode reads one event log from r and replays it against c, returning
// the embedded suppressions seen along the way. Indices referenced by
// later lines (parent trace, ip, etc.) must have been introduced by an
// earlier line, matching the file-order guarantee the Event Interface
// itself assumes.
func Decode(r io.Reader, c *core.Core) (*Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	result := &Result{}
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.SplitN(line, " ", 2)
		rest := ""
		if len(fields) == 2 {
			rest = fields[1]
		}

		var err error
		switch fields[0] {
		case "s":
			c.Strings.Intern(rest)
		case "i":
			err = decodeIp(c, rest)
		case "t":
			err = decodeTrace(c, rest)
		case "+":
			err = decodeAllocation(c, rest)
		case "-":
			err = decodeFree(c, rest)
		case "x":
			err = decodeTemporary(c, rest)
		case "c":
			err = decodeTimeStamp(c, rest)
		case "d":
			err = c.HandleDebuggee(rest)
		case "r":
			err = decodeSystemInfo(c, rest)
		case "u":
			result.EmbeddedSuppressions = append(result.EmbeddedSuppressions, rest)
		default:
			c.Logger().Warn(fmt.Sprintf("line %d: unknown record type %q, skipping", lineNo, fields[0]))
			continue
		}
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInputError, fmt.Sprintf("line %d", lineNo), err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInputError, "reading event log", err)
	}
	return result, nil
}

func decodeIp(c *core.Core, rest string) error {
	fields := strings.Fields(rest)
	if len(fields) < 5 {
		return fmt.Errorf("ip record needs at least 5 fields, got %d", len(fields))
	}
	address, err := strconv.ParseUint(strings.TrimPrefix(fields[0], "0x"), 16, 64)
	if err != nil {
		return fmt.Errorf("bad address %q: %w", fields[0], err)
	}
	primary, err := parseFrame(fields[1], fields[2], fields[3])
	if err != nil {
		return err
	}
	module, err := parseStringIndex(fields[4])
	if err != nil {
		return err
	}

	var inlined []trace.Frame
	for _, triple := range fields[5:] {
		parts := strings.Split(triple, ":")
		if len(parts) != 3 {
			return fmt.Errorf("bad inlined frame %q", triple)
		}
		f, err := parseFrame(parts[0], parts[1], parts[2])
		if err != nil {
			return err
		}
		inlined = append(inlined, f)
	}

	c.Ips.InternIp(address, primary, inlined, module)
	return nil
}

func parseFrame(funcField, fileField, lineField string) (trace.Frame, error) {
	fn, err := parseStringIndex(funcField)
	if err != nil {
		return trace.Frame{}, err
	}
	file, err := parseStringIndex(fileField)
	if err != nil {
		return trace.Frame{}, err
	}
	line, err := strconv.ParseUint(lineField, 10, 32)
	if err != nil {
		return trace.Frame{}, fmt.Errorf("bad line %q: %w", lineField, err)
	}
	return trace.Frame{FunctionIndex: fn, FileIndex: file, Line: uint32(line)}, nil
}

func parseStringIndex(field string) (trace.StringIndex, error) {
	n, err := strconv.Atoi(field)
	if err != nil {
		return trace.NoString, fmt.Errorf("bad string index %q: %w", field, err)
	}
	return trace.StringIndex(n), nil
}

func parseTraceIndex(field string) (trace.TraceIndex, error) {
	n, err := strconv.Atoi(field)
	if err != nil {
		return trace.NoTrace, fmt.Errorf("bad trace index %q: %w", field, err)
	}
	return trace.TraceIndex(n), nil
}

func parseIpIndex(field string) (trace.IpIndex, error) {
	n, err := strconv.Atoi(field)
	if err != nil {
		return trace.NoIp, fmt.Errorf("bad ip index %q: %w", field, err)
	}
	return trace.IpIndex(n), nil
}

func decodeTrace(c *core.Core, rest string) error {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return fmt.Errorf("trace record needs 2 fields, got %d", len(fields))
	}
	ip, err := parseIpIndex(fields[0])
	if err != nil {
		return err
	}
	parent, err := parseTraceIndex(fields[1])
	if err != nil {
		return err
	}
	c.Traces.InternTrace(ip, parent)
	return nil
}

func decodeAllocation(c *core.Core, rest string) error {
	traceIdx, size, err := parseTraceAndSize(rest)
	if err != nil {
		return err
	}
	c.HandleAllocation(traceIdx, size)
	return nil
}

func decodeFree(c *core.Core, rest string) error {
	traceIdx, size, err := parseTraceAndSize(rest)
	if err != nil {
		return err
	}
	c.HandleFree(traceIdx, size)
	return nil
}

func parseTraceAndSize(rest string) (trace.TraceIndex, int64, error) {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return trace.NoTrace, 0, fmt.Errorf("allocation record needs 2 fields, got %d", len(fields))
	}
	traceIdx, err := parseTraceIndex(fields[0])
	if err != nil {
		return trace.NoTrace, 0, err
	}
	size, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return trace.NoTrace, 0, fmt.Errorf("bad size %q: %w", fields[1], err)
	}
	return traceIdx, size, nil
}

func decodeTemporary(c *core.Core, rest string) error {
	traceIdx, err := parseTraceIndex(strings.TrimSpace(rest))
	if err != nil {
		return err
	}
	c.HandleTemporary(traceIdx)
	return nil
}

func decodeTimeStamp(c *core.Core, rest string) error {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return fmt.Errorf("timestamp record needs 2 fields, got %d", len(fields))
	}
	stamp, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bad timestamp %q: %w", fields[0], err)
	}
	isFinal := fields[1] == "1"
	return c.HandleTimeStamp(stamp, isFinal, true)
}

func decodeSystemInfo(c *core.Core, rest string) error {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return fmt.Errorf("system-info record needs 2 fields, got %d", len(fields))
	}
	pageSize, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bad page size %q: %w", fields[0], err)
	}
	peakRSS, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return fmt.Errorf("bad peak RSS %q: %w", fields[1], err)
	}
	c.HandleSystemInfo(core.SystemInfo{PageSize: pageSize, PeakRSS: peakRSS})
	return nil
}
