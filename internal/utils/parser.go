package utils

import (
	"bufio"
	"strings"
)

// ParseKeyValueLines splits tool output of the form "Key:   value" into a map.
// Lines without sep are ignored; keys and values are trimmed.
// When a key repeats, the first occurrence wins.
func ParseKeyValueLines(text, sep string) map[string]string {
	out := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), sep, 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		if _, seen := out[key]; seen {
			continue
		}
		out[key] = strings.TrimSpace(parts[1])
	}
	return out
}

// LastNonEmptyLine returns the last line of text that is not blank.
func LastNonEmptyLine(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
