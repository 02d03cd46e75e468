package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/kagan-sh/kagan-sub004/internal/security"
	"github.com/xeipuuv/gojsonschema"
)

// HandlerFunc is a plugin operation's implementation, the same shape the
// core dispatcher uses for its own built-in handlers.
type HandlerFunc func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// Operation is one (capability, method) a plugin exposes.
type Operation struct {
	PluginID       string
	Capability     string
	Method         string
	Handler        HandlerFunc
	MinimumProfile security.CapabilityProfile
	Mutating       bool
	Description    string
	// PolicyHook, if non-empty, is a starlark boolean expression evaluated
	// after the static profile check passes; the request's params are
	// exposed as the `params` global. A hook returning false denies the
	// call; a hook that fails to parse or evaluate also denies it as a
	// PLUGIN_POLICY_ERROR rather than silently allowing the call through.
	PolicyHook string
	// ParamSchema, if non-empty, is a JSON Schema document the operation's
	// params must validate against before the handler runs.
	ParamSchema string

	compiledParamSchema *gojsonschema.Schema
}

type routeKey struct {
	capability string
	method     string
}

func (k routeKey) String() string { return k.capability + "." + k.method }

// ProfileDeniedError is returned when a caller's profile ranks below an
// operation's minimum_profile.
type ProfileDeniedError struct {
	Capability, Method string
	Profile            security.CapabilityProfile
	Required           security.CapabilityProfile
}

func (e *ProfileDeniedError) Error() string {
	return fmt.Sprintf("profile '%s' may not invoke %s.%s (requires '%s')", e.Profile, e.Capability, e.Method, e.Required)
}

func (e *ProfileDeniedError) Code() string { return "AUTHORIZATION_DENIED" }

// PolicyHookError wraps any failure to parse/evaluate a policy hook, or an
// explicit denial from one; it is always treated as a denial.
type PolicyHookError struct {
	Capability, Method string
	Err                error
}

func (e *PolicyHookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("policy hook for %s.%s: %v", e.Capability, e.Method, e.Err)
	}
	return fmt.Sprintf("policy hook for %s.%s denied the request", e.Capability, e.Method)
}

func (e *PolicyHookError) Code() string { return "PLUGIN_POLICY_ERROR" }

func (e *PolicyHookError) Unwrap() error { return e.Err }

// ParamValidationError is returned when params fail an operation's
// declared JSON Schema.
type ParamValidationError struct {
	Capability, Method string
	Issues             []string
}

func (e *ParamValidationError) Error() string {
	return fmt.Sprintf("invalid params for %s.%s: %s", e.Capability, e.Method, strings.Join(e.Issues, "; "))
}

func (e *ParamValidationError) Code() string { return "INVALID_PARAMS" }

// Registrar buffers a single plugin's operations during RegisterPlugin; it
// is handed to the plugin's register function and discarded (along with
// everything appended to it) if that function errors or registers zero
// operations.
type Registrar struct {
	pluginID string
	pending  []Operation
	seen     map[routeKey]bool
}

// RegisterOperation queues op for commit. Duplicate (capability, method)
// pairs within the same plugin are rejected immediately.
func (r *Registrar) RegisterOperation(op Operation) error {
	if op.Capability == "" || op.Method == "" {
		return fmt.Errorf("operation must set capability and method")
	}
	if op.Handler == nil {
		return fmt.Errorf("operation %s.%s must set a handler", op.Capability, op.Method)
	}
	if op.MinimumProfile == "" {
		op.MinimumProfile = security.ProfileOperator
	}
	key := routeKey{op.Capability, op.Method}
	if r.seen[key] {
		return fmt.Errorf("duplicate operation %s within plugin %s", key, r.pluginID)
	}
	if strings.TrimSpace(op.ParamSchema) != "" {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(op.ParamSchema))
		if err != nil {
			return fmt.Errorf("operation %s: invalid param schema: %w", key, err)
		}
		op.compiledParamSchema = schema
	}
	op.PluginID = r.pluginID
	r.seen[key] = true
	r.pending = append(r.pending, op)
	return nil
}

// Registry holds every committed plugin manifest and operation.
type Registry struct {
	mu         sync.Mutex
	manifests  map[string]Manifest
	operations map[routeKey]*Operation
}

// NewRegistry builds an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		manifests:  make(map[string]Manifest),
		operations: make(map[routeKey]*Operation),
	}
}

// RegisterFunc is a plugin's entrypoint: it declares its operations against
// the given registrar.
type RegisterFunc func(*Registrar) error

// RegisterPlugin validates manifest, runs register against a scratch
// Registrar, and commits its operations only if register succeeds, at
// least one operation was queued, and none collides with an
// already-registered (capability, method) pair. Any failure leaves the
// registry exactly as it was before the call.
func (r *Registry) RegisterPlugin(manifest Manifest, register RegisterFunc) error {
	if err := manifest.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.manifests[manifest.ID]; exists {
		return fmt.Errorf("plugin %q is already registered", manifest.ID)
	}

	registrar := &Registrar{pluginID: manifest.ID, seen: make(map[routeKey]bool)}
	if err := register(registrar); err != nil {
		return fmt.Errorf("plugin %q registration failed: %w", manifest.ID, err)
	}
	if len(registrar.pending) == 0 {
		return fmt.Errorf("plugin %q registered zero operations", manifest.ID)
	}

	for _, op := range registrar.pending {
		key := routeKey{op.Capability, op.Method}
		if existing, exists := r.operations[key]; exists {
			return fmt.Errorf("operation %s is already registered by plugin %q", key, existing.PluginID)
		}
	}

	for i := range registrar.pending {
		op := registrar.pending[i]
		r.operations[routeKey{op.Capability, op.Method}] = &op
	}
	r.manifests[manifest.ID] = manifest
	return nil
}

// Lookup returns the operation registered for capability.method, if any.
func (r *Registry) Lookup(capability, method string) (*Operation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.operations[routeKey{capability, method}]
	return op, ok
}

// Manifests lists every registered plugin manifest.
func (r *Registry) Manifests() []Manifest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Manifest, 0, len(r.manifests))
	for _, m := range r.manifests {
		out = append(out, m)
	}
	return out
}

// Invoke runs the operation registered for capability.method on behalf of
// profile, enforcing the minimum-profile ceiling and policy hook before
// calling the underlying handler.
func (r *Registry) Invoke(ctx context.Context, capability, method string, profile security.CapabilityProfile, params map[string]interface{}) (interface{}, error) {
	op, ok := r.Lookup(capability, method)
	if !ok {
		return nil, fmt.Errorf("no plugin operation registered for %s.%s", capability, method)
	}

	if security.Rank(profile) < security.Rank(op.MinimumProfile) {
		return nil, &ProfileDeniedError{Capability: capability, Method: method, Profile: profile, Required: op.MinimumProfile}
	}

	if op.compiledParamSchema != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params for validation: %w", err)
		}
		result, err := op.compiledParamSchema.Validate(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("validate params: %w", err)
		}
		if !result.Valid() {
			issues := make([]string, 0, len(result.Errors()))
			for _, e := range result.Errors() {
				issues = append(issues, e.String())
			}
			return nil, &ParamValidationError{Capability: capability, Method: method, Issues: issues}
		}
	}

	if op.PolicyHook != "" {
		allowed, err := evaluatePolicyHook(op.PolicyHook, params)
		if err != nil {
			return nil, &PolicyHookError{Capability: capability, Method: method, Err: err}
		}
		if !allowed {
			return nil, &PolicyHookError{Capability: capability, Method: method}
		}
	}

	return op.Handler(ctx, params)
}
