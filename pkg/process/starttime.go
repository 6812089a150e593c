package process

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// StartTime returns an opaque, OS-reported start-time string for pid,
// read from /proc/<pid>/stat on Linux. The value is only ever compared
// as a count of clock ticks since boot, for equality within a tolerance
// window (see SameStartTime) or for ordering (see StartedAtOrAfter) — it
// is never parsed as a calendar time, mirroring the upstream tool's own
// "whatever the OS prints" treatment of this field.
func StartTime(pid int) (string, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return "", err
	}

	// Process name may contain spaces/parens, so anchor on the last ")".
	idx := strings.LastIndexByte(string(data), ')')
	if idx < 0 || idx+2 >= len(data) {
		return "", fmt.Errorf("process: unexpected stat format for pid %d", pid)
	}
	fields := strings.Fields(string(data[idx+2:]))
	// starttime is field 22 overall; fields[0] here is field 3 (state).
	const startTimeFieldIndex = 22 - 3
	if len(fields) <= startTimeFieldIndex {
		return "", fmt.Errorf("process: stat for pid %d has too few fields", pid)
	}
	return fields[startTimeFieldIndex], nil
}

// SameStartTime reports whether two opaque start-time strings refer to
// the same process start, within a small tolerance. /proc start times
// are in clock ticks since boot, so equality is the expected case; the
// tolerance absorbs the rare off-by-one-tick read. Empty values never
// match: "cannot verify" is treated as "not the same process", so the
// tracker's liveness sweep fails safe toward reporting a session stopped
// rather than running.
func SameStartTime(a, b string, toleranceTicks int64) bool {
	if a == "" || b == "" {
		return false
	}
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr != nil || berr != nil {
		return a == b
	}
	diff := ai - bi
	if diff < 0 {
		diff = -diff
	}
	return diff <= toleranceTicks
}

// StartedAtOrAfter reports whether a process with opaque start time
// candidate began at or after reference minus a tolerance window. Used
// when an adapter's scan finds a process in a directory: it is only a
// plausible match for a launch if its start time isn't earlier than the
// launch itself (within tolerance).
func StartedAtOrAfter(candidateTicks, referenceTicks int64, tolerance time.Duration, clockTicksPerSecond int64) bool {
	toleranceTicks := int64(tolerance.Seconds()) * clockTicksPerSecond
	return candidateTicks >= referenceTicks-toleranceTicks
}
