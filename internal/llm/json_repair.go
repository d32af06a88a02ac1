package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// RepairStats tracks what a repair pass had to do to a model response.
type RepairStats struct {
	OriginalBytes    int           `json:"original_bytes"`
	RepairedBytes    int           `json:"repaired_bytes"`
	ErrorsFixed      int           `json:"errors_fixed"`
	RepairTime       time.Duration `json:"repair_time"`
	RepairStrategies []string      `json:"repair_strategies"`
	WasRepaired      bool          `json:"was_repaired"`
}

// ExtractJSON strips markdown code fences and surrounding prose from a model
// response, returning the JSON object between the first '{' and the last '}'.
// Models wrap payloads in ```json fences even when told not to, so this runs
// before every parse. Returns "" when no object is present.
func ExtractJSON(response string) string {
	trimmed := strings.TrimSpace(response)

	// Common case: fenced block.
	if idx := strings.Index(trimmed, "```"); idx != -1 {
		rest := trimmed[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end != -1 {
			rest = rest[:end]
		}
		trimmed = strings.TrimSpace(rest)
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return trimmed[start : end+1]
}

// RepairJSON attempts to repair malformed JSON from a model response using a
// chain of strategies: trailing-comma removal, unquoted-key fixing,
// closing-bracket completion, and the jsonrepair library as the final
// fallback. Returns the repaired string even on failure so callers can log it.
func RepairJSON(raw string) (repaired string, stats RepairStats, err error) {
	startTime := time.Now()
	stats.OriginalBytes = len(raw)

	var probe interface{}
	if json.Unmarshal([]byte(raw), &probe) == nil {
		stats.RepairedBytes = len(raw)
		stats.RepairTime = time.Since(startTime)
		return raw, stats, nil
	}

	stats.WasRepaired = true
	repaired = raw

	if strings.Contains(repaired, ",}") || strings.Contains(repaired, ",]") || trailingCommaRe.MatchString(repaired) {
		repaired = trailingCommaRe.ReplaceAllStringFunc(repaired, func(m string) string {
			return strings.TrimLeft(m, ", \t\n")
		})
		stats.RepairStrategies = append(stats.RepairStrategies, "trailing_commas")
		stats.ErrorsFixed++
	}

	if unquotedKeyRe.MatchString(repaired) {
		repaired = unquotedKeyRe.ReplaceAllString(repaired, `$1"$2"$3`)
		stats.RepairStrategies = append(stats.RepairStrategies, "key_quotes")
		stats.ErrorsFixed++
	}

	if completed := completeBrackets(repaired); completed != repaired {
		repaired = completed
		stats.RepairStrategies = append(stats.RepairStrategies, "completion")
		stats.ErrorsFixed++
	}

	// Library fallback for anything the cheap fixes missed.
	if json.Unmarshal([]byte(repaired), &probe) != nil {
		if fixed, libErr := jsonrepair.JSONRepair(repaired); libErr == nil && fixed != repaired {
			repaired = fixed
			stats.RepairStrategies = append(stats.RepairStrategies, "jsonrepair_library")
			stats.ErrorsFixed++
		}
	}

	stats.RepairedBytes = len(repaired)
	stats.RepairTime = time.Since(startTime)

	if json.Unmarshal([]byte(repaired), &probe) != nil {
		return repaired, stats, fmt.Errorf("JSON repair failed after %d strategies", len(stats.RepairStrategies))
	}

	return repaired, stats, nil
}

var (
	trailingCommaRe = regexp.MustCompile(`,\s*[}\]]`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)(\s*:)`)
)

// completeBrackets appends missing closers in last-opened-first-closed order.
// Truncated responses from token-limited generations are the usual cause.
func completeBrackets(s string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				stack = append(stack, '}')
			}
		case '[':
			if !inString {
				stack = append(stack, ']')
			}
		case '}', ']':
			if !inString && len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}

	out := s
	if inString {
		out += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return out
}
