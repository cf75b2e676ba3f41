package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsupportedRunHour is returned for run hours other than 00, 06, 12 and 18 UTC.
var ErrUnsupportedRunHour = errors.New("unsupported run hour")

// RunHour is the synoptic hour (UTC) at which a forecast run was initialised.
type RunHour int

const (
	Run00 RunHour = 0
	Run06 RunHour = 6
	Run12 RunHour = 12
	Run18 RunHour = 18
)

const (
	shortRangeEnd  = 144
	shortRangeStep = 3
	longRangeEnd   = 360
	longRangeStep  = 6
)

// String formats the hour the way the open-data portal does ("00", "06", ...).
func (h RunHour) String() string {
	return fmt.Sprintf("%02d", int(h))
}

// Valid reports whether h is one of the four synoptic hours.
func (h RunHour) Valid() bool {
	switch h {
	case Run00, Run06, Run12, Run18:
		return true
	}
	return false
}

// ParseRunHour parses "0", "00", "6", "06", "12" or "18".
func ParseRunHour(s string) (RunHour, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 2 || strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedRunHour, s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedRunHour, s)
	}
	h := RunHour(n)
	if !h.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedRunHour, s)
	}
	return h, nil
}

// ComputeSteps returns the forecast lead times, in hours, to request for a run
// initialised at hour h. The 00 and 12 UTC runs extend to 360 h, the 06 and
// 18 UTC runs stop at 144 h.
func ComputeSteps(h RunHour) ([]int, error) {
	switch h {
	case Run00, Run12:
		steps := make([]int, 0, shortRangeEnd/shortRangeStep+(longRangeEnd-shortRangeEnd)/longRangeStep)
		steps = appendRange(steps, shortRangeStep, shortRangeEnd, shortRangeStep)
		return appendRange(steps, shortRangeEnd+longRangeStep, longRangeEnd, longRangeStep), nil
	case Run06, Run18:
		return appendRange(make([]int, 0, shortRangeEnd/shortRangeStep), shortRangeStep, shortRangeEnd, shortRangeStep), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedRunHour, int(h))
	}
}

// appendRange appends from, from+step, ... up to and including to.
func appendRange(dst []int, from, to, step int) []int {
	for v := from; v <= to; v += step {
		dst = append(dst, v)
	}
	return dst
}
