package observability

import (
	"strconv"

	"go.uber.org/zap"
)

// Redacted logs that a secret is present without logging the secret itself.
// Short values are reported only as set or empty.
func Redacted(key, value string) zap.Field {
	switch {
	case value == "":
		return zap.String(key, "<empty>")
	case len(value) < 8:
		return zap.String(key, "<set>")
	default:
		return zap.String(key, "<redacted:"+strconv.Itoa(len(value))+">")
	}
}
