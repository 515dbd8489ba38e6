// Package config provides configuration loading for the latency harness.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// lookupSetting searches settings under each candidate key. Viper lowercases
// keys in AllSettings, so candidates are matched lowercased too.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		if val, ok := settings[strings.ToLower(key)]; ok {
			return val, true
		}
	}
	return nil, false
}

func asString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("expected a string, got %T", value)
	}
}

// asInt accepts the integer shapes YAML and JSON decoding produce, plus
// numeric strings.
func asInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		return strconv.Atoi(strings.TrimSpace(v))
	default:
		return 0, fmt.Errorf("expected an integer, got %T", value)
	}
}

func asBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return false, nil
		}
		return strconv.ParseBool(strings.TrimSpace(v))
	default:
		return false, fmt.Errorf("expected a boolean, got %T", value)
	}
}

// asDuration accepts time.Duration, duration strings, and bare numbers
// interpreted as nanoseconds.
func asDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		return time.ParseDuration(strings.TrimSpace(v))
	case int:
		return time.Duration(v), nil
	case int64:
		return time.Duration(v), nil
	case float64:
		return time.Duration(v), nil
	default:
		return 0, fmt.Errorf("expected a duration, got %T", value)
	}
}

// asUintSlice accepts a slice of numbers or a comma-separated string.
func asUintSlice(value interface{}) ([]uint, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		out := make([]uint, 0, len(v))
		for _, item := range v {
			n, err := asInt(item)
			if err != nil {
				return nil, err
			}
			if n < 0 {
				return nil, fmt.Errorf("negative value %d", n)
			}
			out = append(out, uint(n))
		}
		return out, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		var out []uint
		for _, part := range strings.Split(v, ",") {
			n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
			if err != nil {
				return nil, err
			}
			out = append(out, uint(n))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", value)
	}
}
