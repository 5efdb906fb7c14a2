// Package audit builds the append-only audit trail: field diffs, the per-subject
// checksum chain and the recorder that writes one entry per mutation.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/helpdesk-hub/ticket-service/internal/domain"
)

// Diff returns the keys whose string form differs between before and after.
// A key missing on one side compares as null.
func Diff(before, after map[string]any) map[string]domain.FieldChange {
	changes := make(map[string]domain.FieldChange)
	for key, oldValue := range before {
		newValue := after[key]
		if render(oldValue) != render(newValue) {
			changes[key] = domain.FieldChange{Old: oldValue, New: newValue}
		}
	}
	for key, newValue := range after {
		if _, seen := before[key]; seen {
			continue
		}
		if render(newValue) != "null" {
			changes[key] = domain.FieldChange{Old: nil, New: newValue}
		}
	}
	return changes
}

func render(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case *string:
		if val == nil {
			return "null"
		}
		return *val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if val == nil {
			return "null"
		}
		return val.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
