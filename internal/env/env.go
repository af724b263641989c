// Package env holds the name/value store that scripts use to keep state
// across reloads. It lives for the lifetime of the process and is never
// written to disk.
package env

import (
	"sort"
	"sync"
)

// Context is a reload-surviving mapping from names to values. The host owns
// one Context and hands it to every evaluation.
type Context struct {
	mu     sync.RWMutex
	values map[string]any
}

// New creates an empty Context.
func New() *Context {
	return &Context{values: make(map[string]any)}
}

// Define stores def under name unless name already holds a value, and
// returns an accessor bound to the slot either way.
func (c *Context) Define(name string, def any) *Accessor {
	c.mu.Lock()
	if _, ok := c.values[name]; !ok {
		c.values[name] = def
	}
	c.mu.Unlock()
	return &Accessor{ctx: c, name: name}
}

// Undefine removes name. Accessors obtained earlier report it absent.
func (c *Context) Undefine(name string) {
	c.mu.Lock()
	delete(c.values, name)
	c.mu.Unlock()
}

// Delete is an alias for Undefine.
func (c *Context) Delete(name string) { c.Undefine(name) }

// Lookup returns the value stored under name.
func (c *Context) Lookup(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[name]
	return v, ok
}

// Set stores v under name, creating the slot if needed.
func (c *Context) Set(name string, v any) {
	c.mu.Lock()
	c.values[name] = v
	c.mu.Unlock()
}

// Has reports whether name holds a value.
func (c *Context) Has(name string) bool {
	_, ok := c.Lookup(name)
	return ok
}

// Names returns the defined names in sorted order.
func (c *Context) Names() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.values))
	for name := range c.values {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of defined names.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// Accessor reads and writes a single slot of a Context.
type Accessor struct {
	ctx  *Context
	name string
}

// Name returns the slot name.
func (a *Accessor) Name() string { return a.name }

// Get returns the slot value, or false once the slot was undefined.
func (a *Accessor) Get() (any, bool) { return a.ctx.Lookup(a.name) }

// Set writes the slot, recreating it after Undefine.
func (a *Accessor) Set(v any) { a.ctx.Set(a.name, v) }
