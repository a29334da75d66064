package rclone

import (
	"regexp"
	"strconv"
	"strings"
)

// Summary is the best-effort parse of the tool's final stats block.
// Absence of a parseable value is not a failure; fields default to zero.
type Summary struct {
	Bytes            int64
	FilesTransferred int
	FilesDeleted     int
}

var (
	// e.g. "Transferred:   	   1.234 GiB / 1.234 GiB, 100%, 12.3 MiB/s"
	bytesLine = regexp.MustCompile(`(?m)^Transferred:\s+([\d.]+)\s*([KMGT]i?)?B(ytes)? /`)
	// e.g. "Transferred:           98 / 98, 100%"
	filesLine = regexp.MustCompile(`(?m)^Transferred:\s+(\d+) / \d+`)
	// e.g. "Deleted:                5 (files)"
	deletedLine = regexp.MustCompile(`(?m)^Deleted:\s+(\d+)`)
)

var unitScale = map[string]float64{
	"":   1,
	"K":  1e3,
	"M":  1e6,
	"G":  1e9,
	"T":  1e12,
	"Ki": 1 << 10,
	"Mi": 1 << 20,
	"Gi": 1 << 30,
	"Ti": 1 << 40,
}

// ParseSummary scans the tool output for transferred byte and file counts.
func ParseSummary(output string) Summary {
	var s Summary

	if m := bytesLine.FindStringSubmatch(output); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			scale, ok := unitScale[m[2]]
			if !ok {
				scale = 1
			}
			s.Bytes = int64(v * scale)
		}
	}

	if m := filesLine.FindStringSubmatch(output); m != nil {
		s.FilesTransferred, _ = strconv.Atoi(m[1])
	}

	if m := deletedLine.FindStringSubmatch(output); m != nil {
		s.FilesDeleted, _ = strconv.Atoi(m[1])
	}

	return s
}

// Tail returns the last n lines of output, used to keep failure messages
// in history records readable.
func Tail(output string, n int) string {
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return ""
	}
	lines := strings.Split(output, "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
