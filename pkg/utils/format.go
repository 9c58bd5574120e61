// pkg/utils/format.go
package utils

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FormatDuration форматирует продолжительность в читаемый вид
func FormatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dч %dм", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	default:
		return fmt.Sprintf("%dс", seconds)
	}
}

// FormatPercent дописывает знак процента к десятичной строке
func FormatPercent(value string) string {
	if value == "" {
		return "-"
	}
	return value + "%"
}

// FormatPayload печатает поля уведомления как key=value в порядке ключей.
// Поля *_seconds выводятся длительностью, *_pct и *_percentage процентами.
func FormatPayload(payload map[string]interface{}) string {
	if len(payload) == 0 {
		return "-"
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatValue(k, payload[k]))
	}
	return strings.Join(parts, ", ")
}

func formatValue(key string, v interface{}) string {
	switch {
	case strings.HasSuffix(key, "_seconds"):
		if secs, ok := asInt64(v); ok {
			return FormatDuration(time.Duration(secs) * time.Second)
		}
	case strings.HasSuffix(key, "_pct"), strings.HasSuffix(key, "_percentage"):
		return FormatPercent(fmt.Sprint(v))
	}
	return fmt.Sprint(v)
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
