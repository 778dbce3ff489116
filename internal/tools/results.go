package tools

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
)

// fields is the body of a tool result. Keys are emitted sorted, so the same
// outcome always serialises to the same string.
type fields map[string]any

func success(message string, extra fields) string {
	return encode("success", message, extra)
}

func failure(message string) string {
	return encode("error", message, nil)
}

func failuref(format string, args ...any) string {
	return failure(fmt.Sprintf(format, args...))
}

func cancelled(message string) string {
	return encode("cancelled", message, nil)
}

func encode(kind, message string, extra fields) string {
	out := fields{kind: true, "message": message}
	for k, v := range extra {
		out[k] = v
	}
	b, err := json.Marshal(out)
	if err != nil {
		// Only reachable through an unsupported value in extra.
		return fmt.Sprintf(`{"error":true,"message":%q}`, err.Error())
	}
	return string(b)
}

// money renders an amount the way the assistant reads it back: $1,234.50.
func money(v float64) string {
	if v < 0 {
		return "-$" + humanize.FormatFloat("#,###.##", -v)
	}
	return "$" + humanize.FormatFloat("#,###.##", v)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
