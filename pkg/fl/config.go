package fl

import (
	"fmt"
	"math"
)

// Config carries per-round scalar settings keyed by name. Values are one of
// float64, int64, bool, string or []byte.
type Config map[string]any

// Int returns the integer stored under key. The boolean reports whether the
// key was present at all; a present value that is not integral yields ErrConfig.
func (c Config) Int(key string) (int64, bool, error) {
	v, ok := c[key]
	if !ok {
		return 0, false, nil
	}

	switch val := v.(type) {
	case int64:
		return val, true, nil
	case int:
		return int64(val), true, nil
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) || math.IsNaN(val) {
			return 0, true, fmt.Errorf("%w: %q is not an integer: %v", ErrConfig, key, val)
		}

		return int64(val), true, nil
	default:
		return 0, true, fmt.Errorf("%w: %q has type %T, expected integer", ErrConfig, key, v)
	}
}

// Float returns the number stored under key, accepting integers as well.
func (c Config) Float(key string) (float64, bool, error) {
	v, ok := c[key]
	if !ok {
		return 0, false, nil
	}

	switch val := v.(type) {
	case float64:
		return val, true, nil
	case int64:
		return float64(val), true, nil
	case int:
		return float64(val), true, nil
	default:
		return 0, true, fmt.Errorf("%w: %q has type %T, expected number", ErrConfig, key, v)
	}
}

// String returns the string stored under key.
func (c Config) String(key string) (string, bool, error) {
	v, ok := c[key]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", true, fmt.Errorf("%w: %q has type %T, expected string", ErrConfig, key, v)
	}

	return s, true, nil
}
