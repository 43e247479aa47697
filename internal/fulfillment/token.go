package fulfillment

import (
	"strings"

	"github.com/google/uuid"
)

// NewFileName returns an n-character lowercase alphanumeric token.
func NewFileName(n int) string {
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	return b.String()[:n]
}
