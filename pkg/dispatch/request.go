// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"fmt"
	"runtime"

	"github.com/capkit/capkit/pkg/capability"
	"github.com/capkit/capkit/pkg/selector"
)

// Request asks for a capability by name with request-specific selectors.
type Request struct {
	Name      string
	Selectors selector.Selectors
}

// Named returns a plain request for namespace.
func Named(namespace string) Request {
	return Request{Name: namespace}
}

// With returns a copy of r with the selector for key set to value.
func (r Request) With(key string, value any) Request {
	r.Selectors = r.Selectors.With(key, value)
	return r
}

// Here returns the source file of its caller, for use as a call site.
func Here() capability.CallSite {
	return callerSite(2)
}

func callerSite(skip int) capability.CallSite {
	_, file, _, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return capability.CallSite(file)
}

// normalize turns a string or Request into a registry request. Context
// defaults come first; request selectors replace same-key defaults in place.
func normalize(request any, defaults selector.Selectors) (capability.Request, error) {
	var r Request
	switch v := request.(type) {
	case string:
		r = Named(v)
	case Request:
		r = v
	case *Request:
		if v == nil {
			return capability.Request{}, ErrInvalidRequest
		}
		r = *v
	case capability.Request:
		r = Request{Name: v.Namespace, Selectors: v.Selectors}
	default:
		return capability.Request{}, fmt.Errorf("%w: %T", ErrInvalidRequest, request)
	}
	if r.Name == "" {
		return capability.Request{}, fmt.Errorf("%w: empty namespace", ErrInvalidRequest)
	}
	sels := defaults.Merge(r.Selectors)
	if len(sels) == 0 {
		sels = nil
	}
	return capability.Request{Namespace: r.Name, Selectors: sels}, nil
}
