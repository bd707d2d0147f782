package featureflag

import "sync"

// StaticClient serves fixed values regardless of context, with optional
// per-workspace overrides. Used when no flag file is configured and in tests.
type StaticClient struct {
	mu         sync.RWMutex
	values     map[string]any
	workspaces map[string]map[string]any
}

// NewStatic returns a client serving the given values.
func NewStatic(values map[string]any) *StaticClient {
	if values == nil {
		values = map[string]any{}
	}
	return &StaticClient{values: values, workspaces: map[string]map[string]any{}}
}

// Set serves value for key in every context.
func (c *StaticClient) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// SetForWorkspace serves value for key only when evaluated against workspaceID.
func (c *StaticClient) SetForWorkspace(workspaceID, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.workspaces[workspaceID] == nil {
		c.workspaces[workspaceID] = map[string]any{}
	}
	c.workspaces[workspaceID][key] = value
}

func (c *StaticClient) get(key string, fctx Context) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if ws, ok := c.workspaces[fctx.WorkspaceID]; ok {
		if v, ok := ws[key]; ok {
			return v, true
		}
	}
	v, ok := c.values[key]
	return v, ok
}

// Bool implements Client.
func (c *StaticClient) Bool(key string, fctx Context) (bool, bool) {
	v, ok := c.get(key, fctx)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Int implements Client.
func (c *StaticClient) Int(key string, fctx Context) (int, bool) {
	v, ok := c.get(key, fctx)
	if !ok {
		return 0, false
	}
	n, ok := v.(int)
	return n, ok
}

var _ Client = (*StaticClient)(nil)
