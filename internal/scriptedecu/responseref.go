package scriptedecu

import (
	"context"
	"strings"
	"sync"

	"github.com/LoveWonYoung/ecusim/internal/bridge"
)

// callablePrefix marks a config response value as an opaque handle to a
// registered bridge.Callable rather than a literal hex-byte template.
const callablePrefix = "@"

// ResponseRef is one entry attached to a PatternTrie leaf or table cell: a
// literal hex template, or the name of a Callable to invoke with the
// hex-encoded request.
type ResponseRef struct {
	Literal  string
	Callable string
}

// ParseResponseRef turns one config-table cell into a ResponseRef: values
// beginning with "@" name a registered Callable, everything else is a
// literal hex-byte template.
func ParseResponseRef(value string) ResponseRef {
	if strings.HasPrefix(value, callablePrefix) {
		return ResponseRef{Callable: strings.TrimPrefix(value, callablePrefix)}
	}
	return ResponseRef{Literal: value}
}

// Resolve produces the hex-byte response: the literal template verbatim, or
// the result of invoking the named Callable with argHex under mu, the
// per-ECU lock callable invocation must hold.
func (r ResponseRef) Resolve(ctx context.Context, reg *bridge.Registry, mu *sync.Mutex, argHex string) (string, bool) {
	if r.Callable == "" {
		return r.Literal, r.Literal != ""
	}
	mu.Lock()
	defer mu.Unlock()
	result, err := reg.Call(ctx, r.Callable, argHex)
	if err != nil {
		return "", false
	}
	return result, result != ""
}
