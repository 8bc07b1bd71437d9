package validate

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"reflect"
)

type Severity int

const (
	SeverityNone Severity = iota
	SeverityMinor
	SeverityModerate
	SeveritySevere
)

func (s Severity) String() string {
	switch s {
	case SeverityMinor:
		return "minor"
	case SeverityModerate:
		return "moderate"
	case SeveritySevere:
		return "severe"
	default:
		return "none"
	}
}

type Corruption struct {
	Severity Severity `json:"severity"`
	Reasons  []string `json:"reasons,omitempty"`
}

const (
	maxNestingDepth = 20
	maxPayloadBytes = 10 * 1024 * 1024
)

// Keys that should never appear in trusted payloads. Data round-tripped
// through JavaScript clients can carry prototype-pollution attempts.
var reservedKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// CheckCorruption inspects a decoded payload for structural damage.
// Severe findings block persistence; moderate and minor ones are recorded
// and the payload is persisted anyway. expectedHash may be empty.
func CheckCorruption(payload any, expectedHash string) Corruption {
	c := Corruption{Severity: SeverityNone}

	obj, ok := payload.(map[string]any)
	if !ok {
		c.Severity = SeveritySevere
		c.Reasons = append(c.Reasons, fmt.Sprintf("payload is %T, not an object", payload))
		return c
	}

	if expectedHash != "" {
		if actual := HashPayload(obj); actual != expectedHash {
			c.Severity = SeveritySevere
			c.Reasons = append(c.Reasons, "checksum mismatch")
			return c
		}
	}

	seen := make(map[uintptr]bool)
	depth, cycle, reserved := inspect(obj, 0, seen)

	if cycle {
		c.bump(SeverityModerate, "cyclic reference")
	}
	for _, key := range reserved {
		c.bump(SeverityModerate, fmt.Sprintf("reserved key %q", key))
	}
	if depth > maxNestingDepth {
		c.bump(SeverityMinor, fmt.Sprintf("nesting depth %d exceeds %d", depth, maxNestingDepth))
	}
	if blob, err := json.Marshal(obj); err == nil && len(blob) > maxPayloadBytes {
		c.bump(SeverityMinor, fmt.Sprintf("payload size %d exceeds %d bytes", len(blob), maxPayloadBytes))
	}

	return c
}

func (c *Corruption) bump(sev Severity, reason string) {
	if sev > c.Severity {
		c.Severity = sev
	}
	c.Reasons = append(c.Reasons, reason)
}

// inspect walks the value tree tracking max depth, cycles through maps and
// slices, and reserved key hits. Cycle detection uses container identity so
// a repeated but acyclic subtree is not a false positive.
func inspect(value any, depth int, seen map[uintptr]bool) (maxDepth int, cycle bool, reserved []string) {
	maxDepth = depth

	switch v := value.(type) {
	case map[string]any:
		if len(v) == 0 {
			return depth, false, nil
		}
		ptr := reflect.ValueOf(v).Pointer()
		if seen[ptr] {
			return depth, true, nil
		}
		seen[ptr] = true
		for key, child := range v {
			if reservedKeys[key] {
				reserved = append(reserved, key)
			}
			d, cyc, res := inspect(child, depth+1, seen)
			if d > maxDepth {
				maxDepth = d
			}
			cycle = cycle || cyc
			reserved = append(reserved, res...)
		}
		delete(seen, ptr)
	case []any:
		if len(v) == 0 {
			return depth, false, nil
		}
		ptr := reflect.ValueOf(v).Pointer()
		if seen[ptr] {
			return depth, true, nil
		}
		seen[ptr] = true
		for _, child := range v {
			d, cyc, res := inspect(child, depth+1, seen)
			if d > maxDepth {
				maxDepth = d
			}
			cycle = cycle || cyc
			reserved = append(reserved, res...)
		}
		delete(seen, ptr)
	}
	return maxDepth, cycle, reserved
}

// HashPayload produces the canonical content hash used for checksum
// comparison. json.Marshal sorts map keys, which gives a stable encoding.
func HashPayload(payload any) string {
	blob, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(blob)
	return fmt.Sprintf("%x", sum)
}
