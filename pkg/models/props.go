package models

import (
	"encoding/json"
	"time"
)

// Property readers tolerate the numeric types each backend hands back:
// int64 from Bolt, float64 from JSONB, int from the memory store.

func StringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func BoolProp(props map[string]any, key string) bool {
	b, _ := props[key].(bool)
	return b
}

func IntProp(props map[string]any, key string) int64 {
	switch v := props[key].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	default:
		return 0
	}
}

// TimeProp reads an epoch-millisecond property.
func TimeProp(props map[string]any, key string) time.Time {
	ms := IntProp(props, key)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Millis is the stored form of edge timestamps.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
