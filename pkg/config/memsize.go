package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMemorySize is returned for strings that are not a memory size
var ErrMemorySize = errors.New("invalid memory size")

var memorySizePattern = regexp.MustCompile(`(?i)^([0-9]+)([KMGT])?B?$`)

var unitShift = map[string]uint{"": 0, "K": 10, "M": 20, "G": 30, "T": 40}

// ParseMemorySize parses sizes such as "512", "64K", "4GB" or "1tb" into
// bytes. Units are powers of 1024 and case does not matter.
func ParseMemorySize(s string) (int64, error) {
	m := memorySizePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrMemorySize, s)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrMemorySize, s, err)
	}
	shift := unitShift[strings.ToUpper(m[2])]
	if n > (1<<63-1)>>shift {
		return 0, fmt.Errorf("%w: %q overflows", ErrMemorySize, s)
	}
	return n << shift, nil
}

// FormatMemorySize renders a byte count with the largest unit that divides
// it exactly.
func FormatMemorySize(bytes int64) string {
	units := []string{"TB", "GB", "MB", "KB"}
	shifts := []uint{40, 30, 20, 10}
	for i, shift := range shifts {
		if bytes != 0 && bytes%(1<<shift) == 0 {
			return fmt.Sprintf("%d%s", bytes>>shift, units[i])
		}
	}
	return fmt.Sprintf("%dB", bytes)
}
