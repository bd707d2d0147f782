package scheduling

import (
	"context"
	"log/slog"
	"time"

	"launcher/internal/featureflag"
)

// LoadShedBackoff returns how long scheduling should pause for the context.
// Zero means the context is not being shed.
func LoadShedBackoff(flags featureflag.Client, fctx featureflag.Context) time.Duration {
	seconds := featureflag.ResolveInt(flags, featureflag.LoadShedBackoffSeconds, 0, fctx)
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// WaitWhileLoadShed blocks until the load-shed backoff for fctx drops to zero,
// re-evaluating the flag after every pause.
func WaitWhileLoadShed(ctx context.Context, flags featureflag.Client, fctx featureflag.Context) error {
	for {
		backoff := LoadShedBackoff(flags, fctx)
		if backoff <= 0 {
			return nil
		}
		slog.InfoContext(ctx, "Load shed backoff", "workspaceId", fctx.WorkspaceID, "connectionId", fctx.ConnectionID, "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}
