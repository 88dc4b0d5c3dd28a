// Package triggers holds what every trigger shares: the callback that starts a run.
package triggers

import (
	"context"
	"maps"
	"time"
)

// Callback starts a run with the given trigger data.
type Callback func(ctx context.Context, trigger map[string]any) error

// WithTimestamp returns a copy of data carrying the current time under
// "timestamp", unless data already has one.
func WithTimestamp(data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+1)
	maps.Copy(out, data)

	if _, ok := out["timestamp"]; !ok {
		out["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}

	return out
}
