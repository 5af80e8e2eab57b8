package commands

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fenilsonani/mailbridge/internal/validation"
)

// Args is the flat argument map a command receives. Values arrive either
// typed from CLI flags or as decoded JSON (float64 numbers, []any lists).
type Args map[string]any

// Has reports whether key is present and non-null.
func (a Args) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// String returns key as a string, or "" when absent.
func (a Args) String(key string) string {
	return stringValue(a[key])
}

func stringValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	default:
		return fmt.Sprint(v)
	}
}

// Int returns key as an int, or def when absent.
func (a Args) Int(key string, def int) (int, error) {
	if !a.Has(key) {
		return def, nil
	}

	invalid := &validation.ArgumentError{
		Field:   key,
		Message: fmt.Sprintf("Invalid %s: %v (must be integer)", key, a[key]),
	}
	switch v := a[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, invalid
		}
		return int(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return def, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, invalid
		}
		return n, nil
	}
	return 0, invalid
}

// Bool returns key as a bool, or def when absent.
func (a Args) Bool(key string, def bool) (bool, error) {
	if !a.Has(key) {
		return def, nil
	}
	switch v := a[key].(type) {
	case bool:
		return v, nil
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b, nil
		}
	}
	return false, &validation.ArgumentError{
		Field:   key,
		Message: fmt.Sprintf("Invalid %s: %v (must be true or false)", key, a[key]),
	}
}

// Strings returns key as a list. A single string becomes a one-element
// list and an empty list is nil.
func (a Args) Strings(key string) []string {
	switch v := a[key].(type) {
	case nil:
		return nil
	case []string:
		if len(v) == 0 {
			return nil
		}
		return v
	case []any:
		if len(v) == 0 {
			return nil
		}
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, stringValue(item))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return []string{stringValue(v)}
	}
}

// parseUID converts a message id argument to a UID.
func parseUID(s string) (uint32, error) {
	uid, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, &validation.ArgumentError{
			Field:   "message_id",
			Message: fmt.Sprintf("Invalid message ID: %s (must be integer)", s),
		}
	}
	return uint32(uid), nil
}

func parseUIDs(ids []string) ([]uint32, error) {
	out := make([]uint32, 0, len(ids))
	for _, id := range ids {
		uid, err := parseUID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, uid)
	}
	return out, nil
}
