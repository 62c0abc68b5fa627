package lemonfox

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cue is one timed caption from a WebVTT document.
type Cue struct {
	Number int
	Start  time.Duration
	End    time.Duration
	Text   string
}

// ParseVTT parses WebVTT content into cues. Blocks without a timing line
// (notes, styles, bare identifiers) are skipped.
func ParseVTT(content string) ([]Cue, error) {
	content = strings.Trim(content, "\"")
	if strings.Contains(content, "\\n") {
		content = strings.ReplaceAll(content, "\\n", "\n")
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")

	if !strings.HasPrefix(content, "WEBVTT") {
		return nil, fmt.Errorf("invalid VTT format: missing WEBVTT header")
	}
	_, content, _ = strings.Cut(content, "\n")

	var cues []Cue
	for _, block := range strings.Split(content, "\n\n") {
		lines := strings.Split(strings.Trim(block, "\n"), "\n")
		// An optional cue identifier precedes the timing line.
		if len(lines) > 1 && !strings.Contains(lines[0], "-->") {
			lines = lines[1:]
		}
		if len(lines) < 2 {
			continue
		}

		timestamps := strings.Split(lines[0], " --> ")
		if len(timestamps) != 2 {
			continue
		}

		start, err := parseVTTTimestamp(timestamps[0])
		if err != nil {
			return nil, fmt.Errorf("invalid start timestamp: %w", err)
		}
		// Cue settings may follow the end timestamp.
		endField, _, _ := strings.Cut(strings.TrimSpace(timestamps[1]), " ")
		end, err := parseVTTTimestamp(endField)
		if err != nil {
			return nil, fmt.Errorf("invalid end timestamp: %w", err)
		}

		cues = append(cues, Cue{
			Number: len(cues) + 1,
			Start:  start,
			End:    end,
			Text:   strings.Join(lines[1:], " "),
		})
	}

	return cues, nil
}

// PlainText joins cue text with single spaces.
func PlainText(cues []Cue) string {
	parts := make([]string, 0, len(cues))
	for _, c := range cues {
		if t := strings.TrimSpace(c.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// parseVTTTimestamp accepts HH:MM:SS.mmm and, as WebVTT allows, MM:SS.mmm.
func parseVTTTimestamp(timestamp string) (time.Duration, error) {
	timestamp = strings.TrimSpace(timestamp)
	if !strings.Contains(timestamp, ".") {
		return 0, fmt.Errorf("invalid timestamp format: missing milliseconds")
	}

	parts := strings.Split(timestamp, ":")
	var hours int
	switch {
	case len(parts) == 3 && len(parts[0]) == 2:
		h, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, fmt.Errorf("invalid hours: %w", err)
		}
		hours = h
		parts = parts[1:]
	case len(parts) == 2 && len(parts[0]) == 2:
	default:
		return 0, fmt.Errorf("invalid timestamp format: expected HH:MM:SS.mmm")
	}

	minutes, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid minutes: %w", err)
	}

	secondParts := strings.Split(parts[1], ".")
	if len(secondParts) != 2 {
		return 0, fmt.Errorf("invalid seconds format: missing milliseconds")
	}
	seconds, err := strconv.Atoi(secondParts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid seconds: %w", err)
	}
	milliseconds, err := strconv.Atoi(secondParts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid milliseconds: %w", err)
	}

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(milliseconds)*time.Millisecond, nil
}
