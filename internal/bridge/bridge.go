// Package bridge provides the scripting surface that scripted ECU response
// templates call into.
//
// Every function a template can reference is a Callable registered in a
// Registry by name; the collaborators each built-in closes over (session
// getter/setter, accumulator buffer, DoIP hooks) are supplied once when the
// registry is built, in RegisterBuiltins.
package bridge

import (
	"context"
	"fmt"
)

// Callable is the single-method shape every scripting function reduces to:
// invoke with one optional hex-string argument, get back a hex-string
// result or report failure. Built-ins needing several fields (such as
// toByteResponse's value and length) treat argHex as comma-separated
// sub-fields and parse it themselves.
type Callable interface {
	Invoke(ctx context.Context, argHex string) (result string, ok bool)
}

// Registry is a named collection of Callables bound to one ECU instance.
type Registry struct {
	fns map[string]Callable
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{fns: make(map[string]Callable)}
}

// Register adds or replaces the Callable bound to name.
func (r *Registry) Register(name string, c Callable) {
	r.fns[name] = c
}

// RegisterFunc is a convenience wrapper for built-ins expressed as a plain
// Go function over the raw argHex string.
func (r *Registry) RegisterFunc(name string, fn func(ctx context.Context, argHex string) (string, error)) {
	r.Register(name, funcCallable(fn))
}

// Call invokes the named Callable, or returns an error if name is unknown
// or the callable itself fails.
func (r *Registry) Call(ctx context.Context, name string, argHex string) (string, error) {
	c, ok := r.fns[name]
	if !ok {
		return "", fmt.Errorf("bridge: unknown callable %q", name)
	}
	result, ok := c.Invoke(ctx, argHex)
	if !ok {
		return "", fmt.Errorf("bridge: callable %q failed on argument %q", name, argHex)
	}
	return result, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.fns[name]
	return ok
}

// funcCallable adapts a plain Go function to the single-method Callable
// interface, turning an error return into the ok=false failure signal.
type funcCallable func(ctx context.Context, argHex string) (string, error)

func (fn funcCallable) Invoke(ctx context.Context, argHex string) (string, bool) {
	result, err := fn(ctx, argHex)
	if err != nil {
		return "", false
	}
	return result, true
}
