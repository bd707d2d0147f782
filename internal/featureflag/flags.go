// Package featureflag evaluates dynamic flags against a workspace/connection/organization context.
package featureflag

// Flag keys read by the launcher.
const (
	// LoadShedWorkloadLauncher fails new launches for the matching context.
	LoadShedWorkloadLauncher = "workload-launcher.load-shed"
	// LoadShedBackoffSeconds delays scheduling while positive.
	LoadShedBackoffSeconds = "connection.load-shed.backoff-seconds"

	SuccessiveCompleteFailureLimit = "retries.complete-failures.max-successive"
	TotalCompleteFailureLimit      = "retries.complete-failures.max-total"
	SuccessivePartialFailureLimit  = "retries.partial-failures.max-successive"
	TotalPartialFailureLimit       = "retries.partial-failures.max-total"
	BackoffMinIntervalSeconds      = "retries.complete-failures.backoff.min-interval-s"
	BackoffMaxIntervalSeconds      = "retries.complete-failures.backoff.max-interval-s"
	BackoffBase                    = "retries.complete-failures.backoff.base"
)

// Context kinds a flag rule can target.
const (
	KindWorkspace    = "workspace"
	KindConnection   = "connection"
	KindOrganization = "organization"
)

// Context identifies what a flag is evaluated against. Empty fields are ignored.
type Context struct {
	WorkspaceID    string
	ConnectionID   string
	OrganizationID string
}

// Workspace returns a context scoped to a single workspace.
func Workspace(id string) Context {
	return Context{WorkspaceID: id}
}

// id returns the identifier for a context kind.
func (c Context) id(kind string) string {
	switch kind {
	case KindWorkspace:
		return c.WorkspaceID
	case KindConnection:
		return c.ConnectionID
	case KindOrganization:
		return c.OrganizationID
	default:
		return ""
	}
}

// Client evaluates flags. The boolean result reports whether the flag has a
// value for the context; callers fall back to their own defaults otherwise.
type Client interface {
	Bool(key string, fctx Context) (bool, bool)
	Int(key string, fctx Context) (int, bool)
}

// ResolveBool returns the flag value when present, otherwise def.
func ResolveBool(c Client, key string, def bool, fctx Context) bool {
	if c == nil {
		return def
	}
	if v, ok := c.Bool(key, fctx); ok {
		return v
	}
	return def
}

// ResolveInt returns the flag value when present, otherwise def.
func ResolveInt(c Client, key string, def int, fctx Context) int {
	if c == nil {
		return def
	}
	if v, ok := c.Int(key, fctx); ok {
		return v
	}
	return def
}
