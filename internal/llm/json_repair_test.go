package llm

import (
	"encoding/json"
	"testing"
)

func TestExtractJSONFenced(t *testing.T) {
	response := "Here you go:\n```json\n{\"summary\": \"ok\"}\n```\nLet me know!"
	got := ExtractJSON(response)
	if got != `{"summary": "ok"}` {
		t.Errorf("ExtractJSON = %q", got)
	}
}

func TestExtractJSONBareFence(t *testing.T) {
	response := "```\n{\"a\": 1}\n```"
	if got := ExtractJSON(response); got != `{"a": 1}` {
		t.Errorf("ExtractJSON = %q", got)
	}
}

func TestExtractJSONSurroundingProse(t *testing.T) {
	response := `Sure! The result is {"a": {"b": 2}} as requested.`
	if got := ExtractJSON(response); got != `{"a": {"b": 2}}` {
		t.Errorf("ExtractJSON = %q", got)
	}
}

func TestExtractJSONNoObject(t *testing.T) {
	if got := ExtractJSON("no json here"); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestRepairJSONValidPassthrough(t *testing.T) {
	input := `{"a": 1, "b": [2, 3]}`
	repaired, stats, err := RepairJSON(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repaired != input {
		t.Errorf("valid JSON changed: %q", repaired)
	}
	if stats.WasRepaired {
		t.Error("valid JSON should not count as repaired")
	}
}

func TestRepairJSONTrailingCommas(t *testing.T) {
	repaired, stats, err := RepairJSON(`{"a": [1, 2,], "b": 3,}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !json.Valid([]byte(repaired)) {
		t.Fatalf("result is not valid JSON: %q", repaired)
	}
	if !stats.WasRepaired {
		t.Error("expected the repair to be recorded")
	}
}

func TestRepairJSONUnquotedKeys(t *testing.T) {
	repaired, _, err := RepairJSON(`{summary: "ok", decisions: []}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
		t.Fatalf("repaired JSON does not parse: %v", err)
	}
	if parsed["summary"] != "ok" {
		t.Errorf("key repair lost data: %v", parsed)
	}
}

func TestRepairJSONTruncatedResponse(t *testing.T) {
	repaired, _, err := RepairJSON(`{"summary": "cut off", "decisions": ["a", "b"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
		t.Fatalf("repaired JSON does not parse: %v", err)
	}
	if parsed["summary"] != "cut off" {
		t.Errorf("truncation repair lost data: %v", parsed)
	}
}

func TestRepairJSONHopeless(t *testing.T) {
	_, _, err := RepairJSON("")
	if err == nil {
		t.Error("expected an error for empty input")
	}
}

func TestCompleteBracketsStringAware(t *testing.T) {
	// Braces inside string values must not be treated as structure.
	input := `{"a": "value with } brace", "b": [1`
	out := completeBrackets(input)
	if !json.Valid([]byte(out)) {
		t.Errorf("completion produced invalid JSON: %q", out)
	}
}
