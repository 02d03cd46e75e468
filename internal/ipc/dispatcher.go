package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kagan-sh/kagan-sub004/internal/session"
	"github.com/kagan-sh/kagan-sub004/internal/tracing"
)

// dispatcherIdempotencyTTL bounds how long a mutating call's cached result
// is replayed for a repeated idempotency_key before the entry expires and
// the call is allowed to run again.
const dispatcherIdempotencyTTL = 10 * time.Minute

// HandlerFunc implements one capability.method call. ctx carries the
// resolved session.Binding under bindingContextKey so handlers can read the
// caller's profile/namespace/scope without threading it through every
// call signature.
type HandlerFunc func(ctx context.Context, params map[string]interface{}) (interface{}, error)

type bindingContextKeyType struct{}

var bindingContextKey bindingContextKeyType

// BindingFromContext returns the session binding attached to ctx by the
// core dispatcher, or nil if none is present (e.g. in a unit test calling
// a handler directly).
func BindingFromContext(ctx context.Context) *session.Binding {
	b, _ := ctx.Value(bindingContextKey).(*session.Binding)
	return b
}

type idempotencyEntry struct {
	response *Response
	expires  time.Time
}

// CoreDispatcher is the static (capability,method) routing table plus the
// session-binding, authorization, and idempotency-caching pipeline every
// request passes through before reaching a handler.
type CoreDispatcher struct {
	sessions *session.Registry
	tracer   *tracing.Service
	routes   map[routeKey]HandlerFunc

	mu        sync.Mutex
	idemCache map[string]idempotencyEntry
}

type routeKey struct {
	Capability string
	Method     string
}

// NewCoreDispatcher builds an empty dispatcher bound to a session registry
// and the tracer every dispatched call is recorded against.
func NewCoreDispatcher(sessions *session.Registry, tracer *tracing.Service) *CoreDispatcher {
	return &CoreDispatcher{
		sessions:  sessions,
		tracer:    tracer,
		routes:    make(map[routeKey]HandlerFunc),
		idemCache: make(map[string]idempotencyEntry),
	}
}

// Register binds a handler to a (capability, method) pair. Called during
// core startup to wire every service's operations into the dispatch table;
// registering the same pair twice is a programming error and panics.
func (d *CoreDispatcher) Register(capability, method string, handler HandlerFunc) {
	key := routeKey{Capability: capability, Method: method}
	if _, exists := d.routes[key]; exists {
		panic(fmt.Sprintf("ipc: duplicate route registration for %s.%s", capability, method))
	}
	d.routes[key] = handler
}

// Dispatch resolves session binding, enforces authorization and task-scope
// lane gating, replays a cached idempotent result when applicable, and
// otherwise invokes the registered handler.
func (d *CoreDispatcher) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	ctx, span := d.tracer.StartRequestSpan(ctx, req.Capability, req.Method)
	defer span.End()

	resp, err := d.dispatch(ctx, req)
	d.tracer.RecordRequest(ctx, req.Capability, req.Method, resp != nil && resp.OK, time.Since(start).Seconds())
	return resp, err
}

func (d *CoreDispatcher) dispatch(ctx context.Context, req *Request) (*Response, error) {
	key := routeKey{Capability: req.Capability, Method: req.Method}
	handler, ok := d.routes[key]
	if !ok {
		return &Response{ID: req.ID, OK: false, Error: &ErrorPayload{
			Code:    "UNKNOWN_METHOD",
			Message: fmt.Sprintf("no such method %s.%s", req.Capability, req.Method),
		}}, nil
	}

	binding, err := d.sessions.Bind(session.RequestInfo{
		SessionID:      req.SessionID,
		SessionProfile: req.Profile,
		SessionOrigin:  req.Origin,
		Capability:     req.Capability,
		Method:         req.Method,
		Params:         req.Params,
	})
	if err != nil {
		return NewErrorResponse(req.ID, err), nil
	}

	if err := binding.Policy.Enforce(req.Capability, req.Method); err != nil {
		return NewErrorResponse(req.ID, err), nil
	}

	reqInfo := session.RequestInfo{
		SessionID: req.SessionID, Capability: req.Capability, Method: req.Method, Params: req.Params,
	}
	if err := session.EnforceTaskScope(reqInfo, binding); err != nil {
		return NewErrorResponse(req.ID, err), nil
	}

	idemKey := idempotencyCacheKey(req)
	if idemKey != "" {
		if cached, ok := d.lookupIdempotent(idemKey); ok {
			replayed := *cached
			replayed.ID = req.ID
			return &replayed, nil
		}
	}

	ctx = context.WithValue(ctx, bindingContextKey, binding)
	result, err := handler(ctx, req.Params)
	var resp *Response
	if err != nil {
		resp = NewErrorResponse(req.ID, err)
	} else {
		resp, err = NewOKResponse(req.ID, result)
		if err != nil {
			return NewErrorResponse(req.ID, err), nil
		}
	}

	if idemKey != "" && resp.OK {
		d.storeIdempotent(idemKey, resp)
	}
	return resp, nil
}

// idempotencyCacheKey composes the cache key from every field that must
// match for a replay to be valid: two sessions, or two methods, reusing the
// same idempotency_key string must never share a cached response.
func idempotencyCacheKey(req *Request) string {
	if req.Idempotency == "" {
		return ""
	}
	return req.SessionID + "\x00" + req.Capability + "\x00" + req.Method + "\x00" + req.Idempotency
}

func (d *CoreDispatcher) lookupIdempotent(key string) (*Response, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.idemCache[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(d.idemCache, key)
		return nil, false
	}
	return entry.response, true
}

func (d *CoreDispatcher) storeIdempotent(key string, resp *Response) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.idemCache[key] = idempotencyEntry{response: resp, expires: time.Now().Add(dispatcherIdempotencyTTL)}
	d.evictExpiredLocked()
}

func (d *CoreDispatcher) evictExpiredLocked() {
	now := time.Now()
	for k, e := range d.idemCache {
		if now.After(e.expires) {
			delete(d.idemCache, k)
		}
	}
}

// DecodeParams unmarshals a handler's raw params map into a typed struct
// via a JSON round-trip, the same pattern used throughout the dispatch
// layer to avoid hand-written field-by-field extraction.
func DecodeParams(params map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
