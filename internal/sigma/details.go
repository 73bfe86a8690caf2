package sigma

import (
	"strings"

	"github.com/evtxhunter/evtxhunter/internal/events"
)

// placeholderChar is the delimiter SIGMA-style details templates use to
// mark a field substitution, e.g. "%TargetUserName% logged on from %IpAddress%".
const placeholderChar = '%'

// RenderDetails substitutes every %field% placeholder in template with the
// field's resolved value from record, or "n/a" when the alias misses.
func RenderDetails(template string, aliases *events.AliasTable, record *events.Record) string {
	var sb strings.Builder
	i := 0
	for i < len(template) {
		start := strings.IndexByte(template[i:], placeholderChar)
		if start < 0 {
			sb.WriteString(template[i:])
			break
		}
		start += i
		end := strings.IndexByte(template[start+1:], placeholderChar)
		if end < 0 {
			sb.WriteString(template[i:])
			break
		}
		end += start + 1

		sb.WriteString(template[i:start])
		field := template[start+1 : end]
		if field == "" {
			sb.WriteByte(placeholderChar)
		} else if value, ok := aliases.GetString(field, record); ok {
			sb.WriteString(value)
		} else {
			sb.WriteString("n/a")
		}
		i = end + 1
	}
	return sb.String()
}
