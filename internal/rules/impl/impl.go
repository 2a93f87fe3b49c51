// Package impl holds the compiled implementations of the institutional
// rules. Every exported function here must be named by exactly one rule's
// engine_ref; the governance gate fails the build otherwise. Helpers stay
// unexported.
//
// Implementations are pure: no I/O, no clock, deterministic for a payload.
package impl

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"govengine/internal/rules/models"
	platformstrings "govengine/pkg/platform/strings"
)

// Payload is the loosely typed input of a use case as submitted.
type Payload map[string]any

// Result is what an implementation reports; the engine adds rule identity.
type Result struct {
	Outcome    models.Outcome
	Violations []string
	Evidence   map[string]any
}

// Func is the shape every implementation has.
type Func func(Payload) Result

func pass(evidence map[string]any) Result {
	if evidence == nil {
		evidence = map[string]any{}
	}
	return Result{Outcome: models.OutcomePass, Violations: []string{}, Evidence: evidence}
}

func fail(evidence map[string]any, violations ...string) Result {
	if evidence == nil {
		evidence = map[string]any{}
	}
	return Result{Outcome: models.OutcomeFail, Violations: violations, Evidence: evidence}
}

// text renders a scalar the way it would be displayed; ok is false for
// absent, null or blank values.
func text(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case json.Number:
		s = val.String()
	default:
		s = fmt.Sprint(val)
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// truthy accepts true, "true" and 1. Anything else is false.
func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "true"
	case json.Number:
		f, err := val.Float64()
		return err == nil && f == 1
	case float64:
		return val == 1
	case int:
		return val == 1
	case int64:
		return val == 1
	}
	return false
}

// number converts JSON numbers and numeric strings. Blank strings and
// non-finite values are not numbers.
func number(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

// stringList accepts a list of strings or a comma-separated string.
func stringList(v any) []string {
	switch val := v.(type) {
	case []string:
		return platformstrings.DedupeAndTrim(val)
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := text(item); ok {
				items = append(items, s)
			}
		}
		return platformstrings.DedupeAndTrim(items)
	case string:
		return platformstrings.SplitList(val)
	}
	return nil
}

func round4(f float64) float64 {
	return math.Round(f*1e4) / 1e4
}
