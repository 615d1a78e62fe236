package pipeline

import (
	"fmt"
	"math"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
)

// DefaultFallbackBudget is assumed when the runtime has no soft memory limit.
const DefaultFallbackBudget uint64 = 2 << 30

// MemoryBudget reports how many bytes the scheduler may plan around.
type MemoryBudget interface {
	Available() uint64
}

// StaticBudget is a fixed number of bytes.
type StaticBudget uint64

// Available implements MemoryBudget.
func (b StaticBudget) Available() uint64 { return uint64(b) }

// RuntimeBudget derives the budget from the Go soft memory limit
// (GOMEMLIMIT or debug.SetMemoryLimit) minus the live heap. Without a limit
// Fallback is used in its place.
type RuntimeBudget struct {
	Fallback uint64
}

// Available implements MemoryBudget.
func (b RuntimeBudget) Available() uint64 {
	limit := debug.SetMemoryLimit(-1)
	ceiling := b.Fallback
	if ceiling == 0 {
		ceiling = DefaultFallbackBudget
	}
	if limit > 0 && limit != math.MaxInt64 {
		ceiling = uint64(limit)
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.HeapAlloc >= ceiling {
		return 0
	}
	return ceiling - m.HeapAlloc
}

// ParseMemoryLimit turns "512MB", "2GiB", "1048576" or "auto" into a
// budget. "auto" and the empty string select RuntimeBudget.
func ParseMemoryLimit(limit string) (MemoryBudget, error) {
	s := strings.TrimSpace(strings.ToUpper(limit))
	if s == "" || s == "AUTO" {
		return RuntimeBudget{}, nil
	}
	units := []struct {
		suffix string
		mult   uint64
	}{
		{"GIB", 1 << 30}, {"MIB", 1 << 20}, {"KIB", 1 << 10},
		{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10},
		{"G", 1 << 30}, {"M", 1 << 20}, {"K", 1 << 10}, {"B", 1},
	}
	mult := uint64(1)
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			mult = u.mult
			break
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) {
		return nil, fmt.Errorf("invalid memory limit %q", limit)
	}
	return StaticBudget(uint64(v * float64(mult))), nil
}

// FormatBytes renders n with a binary unit, e.g. "1.5 GiB".
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
