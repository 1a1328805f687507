package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxCodeSequence is the largest monthly sequence that fits the code format.
const MaxCodeSequence = 9999

// CodePrefix returns the fixed part of a code for the month of t:
// PREFIX + YYYY + MM.
func CodePrefix(prefix string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%04d%02d", prefix, t.Year(), int(t.Month()))
}

// FormatCode builds PREFIX + YYYY + MM + 4-digit sequence.
func FormatCode(prefix string, t time.Time, seq int) string {
	return fmt.Sprintf("%s%04d", CodePrefix(prefix, t), seq)
}

// NextCodeSequence derives the sequence that follows last, the highest code
// issued so far under monthPrefix. An empty last starts at 1.
func NextCodeSequence(monthPrefix, last string) (int, error) {
	if last == "" {
		return 1, nil
	}
	suffix, ok := strings.CutPrefix(last, monthPrefix)
	if !ok {
		return 0, fmt.Errorf("code %q does not start with %q", last, monthPrefix)
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, fmt.Errorf("parsing sequence of code %q: %w", last, err)
	}
	if n >= MaxCodeSequence {
		return 0, NewValidationError("budget code sequence exhausted for %s", monthPrefix)
	}
	return n + 1, nil
}
