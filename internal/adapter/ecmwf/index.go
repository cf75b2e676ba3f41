package ecmwf

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// indexEntry is one line of an open-data .index file. Only the fields used
// for selection are decoded.
type indexEntry struct {
	Type     string `json:"type"`
	Stream   string `json:"stream"`
	Step     string `json:"step"`
	Param    string `json:"param"`
	Levelist string `json:"levelist"`
	Number   string `json:"number"`
	Offset   int64  `json:"_offset"`
	Length   int64  `json:"_length"`
}

// byteRange is an inclusive-exclusive span of a GRIB file.
type byteRange struct {
	Start int64
	End   int64
}

func (r byteRange) header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End-1)
}

func parseIndex(r io.Reader) ([]indexEntry, error) {
	var entries []indexEntry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var e indexEntry
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			return nil, fmt.Errorf("index line %d: %w", line, err)
		}
		if e.Offset < 0 || e.Length <= 0 {
			return nil, fmt.Errorf("index line %d: invalid byte range %d+%d", line, e.Offset, e.Length)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return entries, nil
}

// matches reports whether the entry is a field of the request. An empty
// levelist in the request only matches fields without a level.
func (e indexEntry) matches(req Request) bool {
	if e.Param != req.Param || e.Type != req.Type {
		return false
	}
	if req.Stream != "" && e.Stream != "" && e.Stream != req.Stream {
		return false
	}
	return e.Levelist == req.Levelist
}

// selectRanges returns the byte ranges of all matching fields, sorted and
// with adjacent ranges merged into a single request.
func selectRanges(entries []indexEntry, req Request) []byteRange {
	var ranges []byteRange
	for _, e := range entries {
		if e.matches(req) {
			ranges = append(ranges, byteRange{Start: e.Offset, End: e.Offset + e.Length})
		}
	}
	if len(ranges) == 0 {
		return nil
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })

	merged := ranges[:1]
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}
