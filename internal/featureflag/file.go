package featureflag

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// fileFlags is the on-disk flag document.
//
//	flags:
//	  - name: workload-launcher.load-shed
//	    serve: false
//	    context:
//	      - type: workspace
//	        include: [ws-1, ws-2]
//	        serve: true
type fileFlags struct {
	Flags []fileFlag `yaml:"flags"`
}

type fileFlag struct {
	Name    string        `yaml:"name"`
	Serve   any           `yaml:"serve"`
	Context []fileContext `yaml:"context"`
}

type fileContext struct {
	Type    string   `yaml:"type"`
	Include []string `yaml:"include"`
	Serve   any      `yaml:"serve"`
}

// FileClient serves flags from a YAML file. Context rules are checked in file
// order and the first match wins; otherwise the flag-level value is served.
type FileClient struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	flags map[string]fileFlag
}

// NewFileClient loads flags from path.
func NewFileClient(path string) (*FileClient, error) {
	c := &FileClient{
		path:   path,
		logger: slog.With("component", "featureflag"),
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the flag file. On error the previous flags are kept.
func (c *FileClient) Reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read flag file: %w", err)
	}
	flags, err := parseFlags(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.flags = flags
	c.mu.Unlock()

	c.logger.Info("Feature flags loaded", "path", c.path, "count", len(flags))
	return nil
}

func parseFlags(data []byte) (map[string]fileFlag, error) {
	var doc fileFlags
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse flag file: %w", err)
	}

	flags := make(map[string]fileFlag, len(doc.Flags))
	for i, f := range doc.Flags {
		if f.Name == "" {
			return nil, fmt.Errorf("flag %d: name is required", i)
		}
		for _, rule := range f.Context {
			switch rule.Type {
			case KindWorkspace, KindConnection, KindOrganization:
			default:
				return nil, fmt.Errorf("flag %s: unknown context type %q", f.Name, rule.Type)
			}
		}
		flags[f.Name] = f
	}
	return flags, nil
}

func (c *FileClient) lookup(key string, fctx Context) (any, bool) {
	c.mu.RLock()
	f, ok := c.flags[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	for _, rule := range f.Context {
		id := fctx.id(rule.Type)
		if id != "" && slices.Contains(rule.Include, id) && rule.Serve != nil {
			return rule.Serve, true
		}
	}
	if f.Serve == nil {
		return nil, false
	}
	return f.Serve, true
}

// Bool implements Client.
func (c *FileClient) Bool(key string, fctx Context) (bool, bool) {
	v, ok := c.lookup(key, fctx)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	if !ok {
		c.logger.Warn("Flag is not a boolean", "flag", key, "value", v)
	}
	return b, ok
}

// Int implements Client.
func (c *FileClient) Int(key string, fctx Context) (int, bool) {
	v, ok := c.lookup(key, fctx)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		c.logger.Warn("Flag is not an integer", "flag", key, "value", v)
		return 0, false
	}
}

var _ Client = (*FileClient)(nil)
