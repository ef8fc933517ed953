package engine

import (
	"fmt"
	"strconv"
	"time"
)

// Property coercion helpers accept native values and their string forms,
// so descriptions can be written either way.

// IntProperty converts value to int
func IntProperty(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint16:
		return int(v), nil
	case uint32:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	}
	return 0, fmt.Errorf("unsupported type %T", value)
}

// FloatProperty converts value to float64
func FloatProperty(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	}
	return 0, fmt.Errorf("unsupported type %T", value)
}

// BoolProperty converts value to bool
func BoolProperty(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	}
	return false, fmt.Errorf("unsupported type %T", value)
}

// StringProperty converts value to string
func StringProperty(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return "", fmt.Errorf("unsupported type %T", value)
}

// DurationProperty converts value to a duration.
// Bare integers are nanoseconds; strings use time.ParseDuration syntax.
func DurationProperty(value any) (time.Duration, error) {
	switch v := value.(type) {
	case time.Duration:
		return v, nil
	case int:
		return time.Duration(v), nil
	case int64:
		return time.Duration(v), nil
	case string:
		return time.ParseDuration(v)
	}
	return 0, fmt.Errorf("unsupported type %T", value)
}
