// Package subtitles reads SRT files into the ordered timeline the
// segment builder walks.
package subtitles

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Line is one subtitle cue reduced to its start time and text.
type Line struct {
	// Timestamp is the cue start in seconds from the episode start.
	Timestamp float64
	Text      string
}

// ParseFile reads an SRT file into ordered lines.
func ParseFile(path string) ([]Line, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open subtitles: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads SRT content. Cues are emitted in file order; only the
// start timestamp and the (possibly multi-line) text are kept.
func Parse(r io.Reader) ([]Line, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		lines       []Line
		current     *Line
		textParts   []string
		flushedText = func() {
			if current == nil {
				return
			}
			current.Text = strings.TrimSpace(strings.Join(textParts, "\n"))
			lines = append(lines, *current)
			current = nil
			textParts = nil
		}
	)

	for scanner.Scan() {
		raw := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		switch {
		case raw == "":
			flushedText()
		case strings.Contains(raw, "-->"):
			flushedText()
			parts := strings.SplitN(raw, "-->", 2)
			start, err := parseTimestamp(parts[0])
			if err != nil {
				return nil, fmt.Errorf("cue %d: %w", len(lines)+1, err)
			}
			current = &Line{Timestamp: start}
		case current != nil:
			textParts = append(textParts, raw)
		default:
			// Cue index line; ignored.
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read subtitles: %w", err)
	}
	flushedText()

	return lines, nil
}

func parseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	// SRT uses a comma before milliseconds, but periods show up in the wild.
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}
