package lib

import (
	"bufio"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	errorWrapper "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultZeroDuration is charged for items without a measured duration.
const DefaultZeroDuration = 5.0

type WorkItem struct {
	ID       string
	Duration float64
}

// ParseTimings reads "<duration> <identifier>" lines. Any other line, blank
// ones included, fails with an InputParseError. A repeated identifier keeps
// its last duration.
func ParseTimings(r io.Reader) ([]WorkItem, error) {
	var items []WorkItem
	index := make(map[string]int)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		item, err := parseTimingLine(text)
		if err != nil {
			return nil, &InputParseError{Line: lineNo, Text: text, Err: err}
		}
		if i, ok := index[item.ID]; ok {
			logrus.Debugf("duplicate timing for %s on line %d, replacing %g with %g",
				item.ID, lineNo, items[i].Duration, item.Duration)
			items[i].Duration = item.Duration
			continue
		}
		index[item.ID] = len(items)
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, errorWrapper.Wrap(err, "failed in reading timings")
	}
	return items, nil
}

func parseTimingLine(text string) (WorkItem, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return WorkItem{}, errors.New("expected exactly two whitespace separated fields")
	}
	duration, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return WorkItem{}, errorWrapper.Wrap(err, "duration is not a number")
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) {
		return WorkItem{}, errors.New("duration must be finite")
	}
	if duration < 0 {
		return WorkItem{}, errors.New("duration must not be negative")
	}
	return WorkItem{ID: fields[1], Duration: duration}, nil
}

// ApplyZeroDuration returns a copy of items where every zero duration is
// replaced by floor. A non-positive floor means DefaultZeroDuration.
func ApplyZeroDuration(items []WorkItem, floor float64) []WorkItem {
	if floor <= 0 {
		floor = DefaultZeroDuration
	}
	out := make([]WorkItem, len(items))
	for i, item := range items {
		if item.Duration == 0 {
			item.Duration = floor
		}
		out[i] = item
	}
	return out
}
