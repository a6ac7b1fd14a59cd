// Package channels contains the pluggable alert senders. Each adapter
// exposes capability flags that the dispatcher queries before acting; no
// adapter method is called when its flag is false.
package channels

import "github.com/ternarybob/sentinel/internal/models"

// typeSupported checks a configured alert-type allowlist. An empty list
// means the adapter handles every abnormal type.
func typeSupported(configured []string, t models.DetectionType) bool {
	if len(configured) == 0 {
		return t.IsAbnormal()
	}
	for _, name := range configured {
		if models.DetectionType(name) == t {
			return true
		}
	}
	return false
}
