// Package params decodes the flat string key/value parameters delivered by
// the fleet management (MAF) service into typed Go values.
//
// The service serializes everything as strings; the key suffix carries the
// intended type. Decoding is forgiving: a value that fails to parse is logged
// and treated as absent so a single bad parameter never aborts a run.
package params

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

// Suffixes that force numeric decoding.
var numericSuffixes = []string{
	"_minutes", "_hours", "_seconds", "_kwh", "_penalty",
	"_weight", "_bonus", "_threshold", "_count", "_margin",
}

// Sentinel raw values treated as "not set".
var nullSentinels = map[string]bool{
	"":         true,
	"null":     true,
	"none":     true,
	"nil":      true,
	"no_value": true,
}

// Parameters is the flat key/value parameter set for one site.
type Parameters map[string]string

// Decoder decodes raw parameter strings into typed values.
type Decoder struct {
	logger *log.Logger
}

// NewDecoder creates a decoder. A nil logger falls back to stdout.
func NewDecoder(logger *log.Logger) *Decoder {
	if logger == nil {
		logger = log.New(os.Stdout, "[PARAMS] ", log.LstdFlags)
	}
	return &Decoder{logger: logger}
}

// Decode converts a raw parameter value into a typed value based on the key
// suffix and the shape of the raw string. The second return is false when the
// value is absent or failed to parse.
//
// Returned concrete types: bool, int64, float64, string, TimeOfDay,
// []any (JSON array), map[string]any (JSON object).
func (d *Decoder) Decode(key, raw string) (any, bool) {
	trimmed := strings.TrimSpace(raw)
	if nullSentinels[strings.ToLower(trimmed)] {
		return nil, false
	}

	lowerKey := strings.ToLower(key)
	lowerVal := strings.ToLower(trimmed)

	// Boolean keys and boolean-looking values.
	if strings.HasSuffix(lowerKey, "_enabled") || strings.HasSuffix(lowerKey, "_flag") ||
		lowerVal == "true" || lowerVal == "false" || lowerVal == "yes" || lowerVal == "no" {
		switch lowerVal {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
		d.logger.Printf("WARNING: parameter %s: cannot parse %q as bool, ignoring", key, raw)
		return nil, false
	}

	// Charger cost list form "[1,2]:0.42;[3]:0.55" looks like a JSON array
	// but is not one; pass it through as a string.
	if strings.HasPrefix(trimmed, "[") && strings.Contains(trimmed, "]:") {
		return trimmed, true
	}

	// JSON structures.
	if strings.HasPrefix(trimmed, "[") {
		var arr []any
		if err := json.Unmarshal([]byte(trimmed), &arr); err != nil {
			d.logger.Printf("WARNING: parameter %s: invalid JSON array: %v, ignoring", key, err)
			return nil, false
		}
		return arr, true
	}
	if strings.HasPrefix(trimmed, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
			d.logger.Printf("WARNING: parameter %s: invalid JSON object: %v, ignoring", key, err)
			return nil, false
		}
		return obj, true
	}

	// Numeric keys: int unless the raw value carries a decimal point.
	for _, suffix := range numericSuffixes {
		if strings.HasSuffix(lowerKey, suffix) {
			if strings.Contains(trimmed, ".") {
				f, err := strconv.ParseFloat(trimmed, 64)
				if err != nil {
					d.logger.Printf("WARNING: parameter %s: cannot parse %q as float, ignoring", key, raw)
					return nil, false
				}
				return f, true
			}
			i, err := strconv.ParseInt(trimmed, 10, 64)
			if err != nil {
				d.logger.Printf("WARNING: parameter %s: cannot parse %q as int, ignoring", key, raw)
				return nil, false
			}
			return i, true
		}
	}

	// Time-of-day periods (HH:MM or HH:MM:SS).
	if strings.HasSuffix(lowerKey, "_period") && strings.Contains(trimmed, ":") {
		tod, err := ParseTimeOfDay(trimmed)
		if err != nil {
			d.logger.Printf("WARNING: parameter %s: %v, ignoring", key, err)
			return nil, false
		}
		return tod, true
	}

	// Keys without a recognized suffix stay strings; callers that know
	// better use the typed accessors.
	return trimmed, true
}

// ConstraintConfig collects the decoded fields of one constraint from keys
// of the form constraint_<name>_<field>. The enabled flag, penalties,
// thresholds and JSON maps all arrive this way.
func (d *Decoder) ConstraintConfig(p Parameters, name string) map[string]any {
	prefix := "constraint_" + name + "_"
	config := make(map[string]any)
	for key, raw := range p {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		field := strings.TrimPrefix(key, prefix)
		if value, ok := d.Decode(key, raw); ok {
			config[field] = value
		}
	}
	return config
}

// ConstraintNames returns the distinct constraint names present in the
// parameter set, derived from constraint_<name>_enabled keys.
func (d *Decoder) ConstraintNames(p Parameters) []string {
	var names []string
	seen := make(map[string]bool)
	for key := range p {
		if !strings.HasPrefix(key, "constraint_") || !strings.HasSuffix(key, "_enabled") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(key, "constraint_"), "_enabled")
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Typed accessors with defaults. Absent or mistyped values return the default.

// Int returns the parameter as an int.
func (d *Decoder) Int(p Parameters, key string, def int) int {
	raw, ok := p[key]
	if !ok {
		return def
	}
	value, ok := d.Decode(key, raw)
	if !ok {
		return def
	}
	switch v := value.(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return int(i)
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return int(f)
		}
	}
	return def
}

// Float returns the parameter as a float64.
func (d *Decoder) Float(p Parameters, key string, def float64) float64 {
	raw, ok := p[key]
	if !ok {
		return def
	}
	value, ok := d.Decode(key, raw)
	if !ok {
		return def
	}
	switch v := value.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Bool returns the parameter as a bool.
func (d *Decoder) Bool(p Parameters, key string, def bool) bool {
	raw, ok := p[key]
	if !ok {
		return def
	}
	value, ok := d.Decode(key, raw)
	if !ok {
		return def
	}
	if b, ok := value.(bool); ok {
		return b
	}
	return def
}

// String returns the parameter as a string.
func (d *Decoder) String(p Parameters, key, def string) string {
	raw, ok := p[key]
	if !ok {
		return def
	}
	value, ok := d.Decode(key, raw)
	if !ok {
		return def
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}
