package validate

import (
	"fmt"
	"regexp"
	"time"
)

// Rule describes one field of a payload schema.
type Rule struct {
	Field     string
	Type      string // "string", "number", "bool", "object", "array"
	Required  bool
	MinLength int
	MaxLength int
	Pattern   *regexp.Regexp
	Check     func(value any) error // optional custom check
}

type Result struct {
	IsValid   bool      `json:"is_valid"`
	Errors    []string  `json:"errors"`
	Warnings  []string  `json:"warnings"`
	Timestamp time.Time `json:"timestamp"`
	DataHash  string    `json:"data_hash"`
}

// Validate checks a payload against a field schema. Missing required fields,
// type mismatches and length/pattern violations are blocking; fields not in
// the schema are warnings only so newer payloads stay readable.
func Validate(payload map[string]any, schema []Rule) Result {
	res := Result{Timestamp: time.Now(), DataHash: HashPayload(payload)}

	known := make(map[string]bool, len(schema))
	for _, rule := range schema {
		known[rule.Field] = true

		value, present := payload[rule.Field]
		if !present || value == nil {
			if rule.Required {
				res.Errors = append(res.Errors, fmt.Sprintf("missing required field %q", rule.Field))
			}
			continue
		}

		if rule.Type != "" && !typeMatches(value, rule.Type) {
			res.Errors = append(res.Errors, fmt.Sprintf("field %q: expected %s, got %T", rule.Field, rule.Type, value))
			continue
		}

		if str, ok := value.(string); ok {
			if rule.MinLength > 0 && len(str) < rule.MinLength {
				res.Errors = append(res.Errors, fmt.Sprintf("field %q: length %d below minimum %d", rule.Field, len(str), rule.MinLength))
			}
			if rule.MaxLength > 0 && len(str) > rule.MaxLength {
				res.Errors = append(res.Errors, fmt.Sprintf("field %q: length %d above maximum %d", rule.Field, len(str), rule.MaxLength))
			}
			if rule.Pattern != nil && !rule.Pattern.MatchString(str) {
				res.Errors = append(res.Errors, fmt.Sprintf("field %q does not match pattern %s", rule.Field, rule.Pattern))
			}
		}

		if rule.Check != nil {
			if err := rule.Check(value); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("field %q: %v", rule.Field, err))
			}
		}
	}

	for field := range payload {
		if !known[field] {
			res.Warnings = append(res.Warnings, fmt.Sprintf("unknown field %q", field))
		}
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

func typeMatches(value any, typ string) bool {
	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int32, int64, uint, uint32, uint64:
			return true
		}
		return false
	case "bool":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	default:
		return true
	}
}
