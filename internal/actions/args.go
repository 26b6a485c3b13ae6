package actions

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParam is returned when an action argument is missing or has the wrong type.
var ErrInvalidParam = errors.New("invalid parameter")

// Int reads an integral number. JSON and Lua numbers arrive as float64.
func Int(args map[string]any, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q is required", ErrInvalidParam, key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: %q must be an integer, got %v", ErrInvalidParam, key, n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q must be an integer, got %s", ErrInvalidParam, key, n)
		}
		return int(i), nil
	default:
		return 0, fmt.Errorf("%w: %q must be a number, got %T", ErrInvalidParam, key, v)
	}
}

// Bool reads a boolean.
func Bool(args map[string]any, key string) (bool, error) {
	v, ok := args[key]
	if !ok {
		return false, fmt.Errorf("%w: %q is required", ErrInvalidParam, key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q must be a boolean, got %T", ErrInvalidParam, key, v)
	}
	return b, nil
}

// String reads a non-empty string.
func String(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%w: %q is required", ErrInvalidParam, key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %q must be a non-empty string", ErrInvalidParam, key)
	}
	return s, nil
}
