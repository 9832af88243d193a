package schema

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// SQLType returns the SQLite column type for a Go field type.
func SQLType(t reflect.Type) (string, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		return "INTEGER", nil
	}
	switch t.Kind() {
	case reflect.String:
		return "TEXT", nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Bool:
		return "INTEGER", nil
	case reflect.Int64, reflect.Uint, reflect.Uint64:
		return "BIGINT", nil
	case reflect.Float32, reflect.Float64:
		return "REAL", nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "BLOB", nil
		}
	}
	return "", fmt.Errorf("%s: %w", t, ErrUnsupportedType)
}

// FormatDefault validates a default value against a Go field type and returns it rendered as a
// SQL literal.
func FormatDefault(t reflect.Type, value string) (string, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return "", fmt.Errorf("%q is not a unix millisecond timestamp: %w", value, ErrInvalidDefault)
		}
		return value, nil
	}
	switch t.Kind() {
	case reflect.String:
		return "'" + strings.ReplaceAll(value, "'", "''") + "'", nil
	case reflect.Bool:
		switch strings.ToLower(value) {
		case "true", "1":
			return "1", nil
		case "false", "0":
			return "0", nil
		}
		return "", fmt.Errorf("%q is not a boolean: %w", value, ErrInvalidDefault)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return "", fmt.Errorf("%q is not an integer: %w", value, ErrInvalidDefault)
		}
		return value, nil
	case reflect.Float32, reflect.Float64:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return "", fmt.Errorf("%q is not a real number: %w", value, ErrInvalidDefault)
		}
		return value, nil
	}
	return "", fmt.Errorf("%s cannot have a default: %w", t, ErrInvalidDefault)
}
