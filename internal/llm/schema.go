package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jobmatch/core/internal/domain"
)

// cleanJSONResponse strips markdown code-fence markup and mixed surrounding
// prose from an LLM response so the remainder parses as JSON.
//
// Ported from the CV evaluator's internal/adapter/ai/response_cleaner.go,
// generalized to any JSON object or array (the original only handled
// objects).
func cleanJSONResponse(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "`", `"`)

	openers := []byte{'{', '['}
	closers := map[byte]byte{'{': '}', '[': ']'}
	start := -1
	var open byte
	for i := 0; i < len(s); i++ {
		for _, o := range openers {
			if s[i] == o {
				start = i
				open = o
				break
			}
		}
		if start != -1 {
			break
		}
	}
	if start == -1 {
		return s
	}
	close := closers[open]
	depth := 0
	end := start
	for i := start; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				end = i
				goto done
			}
		}
	}
done:
	if end > start {
		s = s[start : end+1]
	}
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	return s
}

var trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

// FieldSpec describes one expected field of a structured-output shape.
type FieldSpec struct {
	Name     string
	Kind     FieldKind
	Required bool
}

type FieldKind int

const (
	FieldString FieldKind = iota
	FieldStringList
	FieldInt
)

// Shape is the expected JSON object shape for a GenerateStructured call
// (spec §4.1 "Structured-output contract").
type Shape struct {
	Fields []FieldSpec
}

// parseStructured cleans raw, parses it as a JSON object, and validates it
// against s. Missing or mistyped required fields yield a ParseError.
func parseStructured(op, raw string, s Shape) (map[string]any, error) {
	cleaned := cleanJSONResponse(raw)
	var obj map[string]any
	if err := json.Unmarshal([]byte(cleaned), &obj); err != nil {
		return nil, &ParseError{Op: op, Reason: fmt.Sprintf("invalid JSON: %v", err), Payload: cleaned}
	}
	for _, f := range s.Fields {
		v, ok := obj[f.Name]
		if !ok || v == nil {
			if f.Required {
				return nil, &ParseError{Op: op, Reason: fmt.Sprintf("missing field %q", f.Name), Payload: cleaned}
			}
			continue
		}
		switch f.Kind {
		case FieldString:
			if _, ok := v.(string); !ok {
				return nil, &ParseError{Op: op, Reason: fmt.Sprintf("field %q: expected string", f.Name), Payload: cleaned}
			}
		case FieldStringList:
			list, ok := v.([]any)
			if !ok {
				return nil, &ParseError{Op: op, Reason: fmt.Sprintf("field %q: expected list", f.Name), Payload: cleaned}
			}
			for _, item := range list {
				if _, ok := item.(string); !ok {
					return nil, &ParseError{Op: op, Reason: fmt.Sprintf("field %q: expected list of strings", f.Name), Payload: cleaned}
				}
			}
		case FieldInt:
			switch v.(type) {
			case float64, json.Number:
			default:
				return nil, &ParseError{Op: op, Reason: fmt.Sprintf("field %q: expected number", f.Name), Payload: cleaned}
			}
		}
	}
	// A "seniority" field, wherever it appears in a structured-output shape,
	// is normalized onto the closed set here rather than left to callers
	// (spec §4.1: "seniority in the enrichment shape is normalized to the
	// closed set ... any other value is mapped to Mid").
	if v, ok := obj["seniority"].(string); ok {
		obj["seniority"] = string(normalizeSeniority(v))
	}
	return obj, nil
}

// StringField reads a string field out of a GenerateStructured result,
// returning "" if absent or mistyped.
func StringField(obj map[string]any, name string) string {
	if v, ok := obj[name].(string); ok {
		return v
	}
	return ""
}

// StringListField reads a string-list field out of a GenerateStructured
// result, returning nil if absent or mistyped.
func StringListField(obj map[string]any, name string) []string {
	raw, ok := obj[name].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// IntField reads an int field out of a GenerateStructured result. The
// second return is false if the field is absent, mistyped, or not a whole
// number (used by ResumeProfile's experience_years, which may be "unknown").
func IntField(obj map[string]any, name string) (int, bool) {
	v, ok := obj[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// ParseJSONArray cleans raw and parses it as a JSON array of objects,
// matching the gap-analysis call's "JSON array of {missing, matching,
// recommendations}" contract. Unlike parseStructured it validates no fixed
// shape; callers read fields defensively with StringListField-style helpers.
func ParseJSONArray(op, raw string) ([]map[string]any, error) {
	cleaned := cleanJSONResponse(raw)
	var arr []map[string]any
	if err := json.Unmarshal([]byte(cleaned), &arr); err != nil {
		return nil, &ParseError{Op: op, Reason: fmt.Sprintf("invalid JSON array: %v", err), Payload: cleaned}
	}
	return arr, nil
}

// normalizeSeniority maps any LLM-supplied seniority string onto the closed
// set, defaulting unrecognized values to Mid (spec §4.1).
func normalizeSeniority(s string) domain.Seniority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "junior", "entry", "entry-level", "intern":
		return domain.SeniorityJunior
	case "mid", "mid-level", "intermediate", "associate":
		return domain.SeniorityMid
	case "senior", "sr":
		return domain.SenioritySenior
	case "lead", "staff", "principal", "head":
		return domain.SeniorityLead
	default:
		return domain.SeniorityMid
	}
}
