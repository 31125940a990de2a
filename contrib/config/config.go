// Package config is a small generic config loader: read one or more
// Sources as YAML, merge them (later sources win), decode into a typed
// struct via mapstructure, and optionally hot-reload on source change.
package config

import (
	"sync"

	"dario.cat/mergo"
	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Source yields raw bytes and, optionally, a way to watch for changes.
// Providers (e.g. contrib/config/provider/file) implement this.
type Source interface {
	Load() ([]byte, error)
	// Watch invokes onChange whenever the underlying source's content
	// changes, returning a stop func. A Source with no watch capability
	// returns a no-op stop and a nil error.
	Watch(onChange func()) (stop func(), err error)
}

type options struct {
	sources []Source
}

// Option configures a Config.
type Option func(*options)

// WithSource appends one or more Sources, later ones taking precedence
// during merge.
func WithSource(sources ...Source) Option {
	return func(o *options) {
		o.sources = append(o.sources, sources...)
	}
}

// Config loads and decodes a T from one or more YAML Sources.
type Config[T any] struct {
	mu      sync.RWMutex
	value   *T
	sources []Source
	stops   []func()
}

// New constructs a Config; call Load to populate it.
func New[T any](opts ...Option) *Config[T] {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return &Config[T]{sources: o.sources}
}

// Load reads every source, merges their decoded maps (later sources
// win on conflicting keys), and decodes the result into a fresh T.
func (c *Config[T]) Load() error {
	merged := map[string]any{}
	for _, src := range c.sources {
		raw, err := src.Load()
		if err != nil {
			return err
		}
		var m map[string]any
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return err
		}
		if err := mergo.Merge(&merged, m, mergo.WithOverride); err != nil {
			return err
		}
	}

	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(merged); err != nil {
		return err
	}

	c.mu.Lock()
	c.value = &out
	c.mu.Unlock()
	return nil
}

// Scan copies the current decoded value into v.
func (c *Config[T]) Scan(v *T) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.value != nil {
		*v = *c.value
	}
	return nil
}

// Value returns the current decoded value, or nil before the first Load.
func (c *Config[T]) Value() *T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Watch reloads on every source change and invokes onChange with the
// freshly decoded value. Reload errors are swallowed (the previous
// value is kept); callers wanting to observe them should call Load
// directly.
func (c *Config[T]) Watch(onChange func(*T)) error {
	for _, src := range c.sources {
		stop, err := src.Watch(func() {
			if err := c.Load(); err == nil {
				onChange(c.Value())
			}
		})
		if err != nil {
			return err
		}
		c.stops = append(c.stops, stop)
	}
	return nil
}

// Close stops every active watch.
func (c *Config[T]) Close() error {
	for _, stop := range c.stops {
		if stop != nil {
			stop()
		}
	}
	c.stops = nil
	return nil
}
