package recording

import "strings"

// sensitiveHeaderNames are redacted before a request/response is logged at
// debug level, adapted from the teacher's pkg/shared/redact sensitive-key
// list (there applied to JSON preview bodies; here applied to header
// values).
var sensitiveHeaderNames = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,
	"proxy-authorization": true,
}

// RedactHeaderValue returns "<redacted>" for header values whose lowercase
// name is sensitive, otherwise v unchanged.
func RedactHeaderValue(name, v string) string {
	if sensitiveHeaderNames[strings.ToLower(name)] {
		return "<redacted>"
	}
	return v
}
