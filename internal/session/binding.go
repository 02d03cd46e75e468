// Package session implements session binding and lane gating: the first
// authenticated request on an IPC session binds its profile, origin,
// namespace, and (for scoped namespaces) a scope id; later requests on the
// same session cannot switch profile or origin.
package session

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/kagan-sh/kagan-sub004/internal/security"
)

// Origin is the session's provenance, controlling its profile ceiling and
// allowed namespace set.
type Origin string

const (
	OriginLegacy      Origin = "legacy"
	OriginKagan       Origin = "kagan"
	OriginKaganAdmin  Origin = "kagan_admin"
)

// Namespace is the session's scope lane.
type Namespace string

const (
	NamespaceDefault Namespace = "default"
	NamespaceTask    Namespace = "task"
	NamespacePlanner Namespace = "planner"
	NamespaceExt     Namespace = "ext"
)

var scopedNamespaces = map[Namespace]bool{
	NamespaceTask:    true,
	NamespacePlanner: true,
	NamespaceExt:     true,
}

var originCeiling = map[Origin]security.CapabilityProfile{
	OriginLegacy:     security.ProfileMaintainer,
	OriginKagan:      security.ProfilePairWorker,
	OriginKaganAdmin: security.ProfileMaintainer,
}

var originAllowedNamespaces = map[Origin]map[Namespace]bool{
	OriginLegacy: {
		NamespaceDefault: true, NamespaceTask: true, NamespacePlanner: true, NamespaceExt: true,
	},
	OriginKagan: {
		NamespaceDefault: true, NamespaceTask: true, NamespacePlanner: true,
	},
	OriginKaganAdmin: {
		NamespaceExt: true,
	},
}

// taskMutationMethods is the set of (capability, method) pairs that require
// a task-namespace session's scope id to match params.task_id.
var taskMutationMethods = map[[2]string]bool{
	{"jobs", "submit"}:                 true,
	{"jobs", "get"}:                    true,
	{"jobs", "wait"}:                   true,
	{"jobs", "events"}:                 true,
	{"jobs", "cancel"}:                 true,
	{"tasks", "update_scratchpad"}:     true,
	{"tasks", "delete"}:                true,
	{"review", "request"}:              true,
}

var legacyTaskIDRe = regexp.MustCompile(`^[A-Z]+-\d+$`)

// BindingError is raised when a request violates session binding or lane
// constraints; its Code method returns the IPC-layer error code.
type BindingError struct {
	code    string
	Message string
}

func (e *BindingError) Error() string { return e.Message }

// Code returns the IPC-layer error code, satisfying ipc.CodedError.
func (e *BindingError) Code() string { return e.code }

func newBindingError(code, format string, args ...interface{}) *BindingError {
	return &BindingError{code: code, Message: fmt.Sprintf(format, args...)}
}

// Binding is the resolved auth context bound to an IPC session.
type Binding struct {
	Policy    *security.AuthorizationPolicy
	Origin    Origin
	Namespace Namespace
	ScopeID   string
}

// Registry caches session bindings for the lifetime of the core process.
type Registry struct {
	mu       sync.Mutex
	bindings map[string]*Binding
}

// NewRegistry creates an empty session binding registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]*Binding)}
}

// Unregister drops a session's cached binding (called on disconnect).
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bindings, sessionID)
}

// RequestInfo is the subset of an IPC request relevant to binding.
type RequestInfo struct {
	SessionID      string
	SessionProfile string
	SessionOrigin  string
	Capability     string
	Method         string
	Params         map[string]interface{}
}

// Bind resolves and caches the authorization/session-lane binding for a
// request, enforcing that profile and origin never change across requests
// on the same session.
func (r *Registry) Bind(req RequestInfo) (*Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.bindings[req.SessionID]; ok {
		if req.SessionProfile != "" {
			requested, err := security.NormalizeProfile(req.SessionProfile)
			if err != nil {
				return nil, &BindingError{code: "INVALID_PROFILE", Message: err.Error()}
			}
			if requested != existing.Policy.Profile() {
				return nil, newBindingError("INVALID_PROFILE",
					"session '%s' is already bound to profile '%s', cannot switch to '%s'",
					req.SessionID, existing.Policy.Profile(), req.SessionProfile)
			}
		}
		if req.SessionOrigin != "" {
			requestedOrigin, err := normalizeOrigin(req.SessionOrigin)
			if err != nil {
				return nil, err
			}
			if requestedOrigin != existing.Origin {
				return nil, newBindingError("SESSION_ORIGIN_MISMATCH",
					"session '%s' is already bound to origin '%s', cannot switch to '%s'",
					req.SessionID, existing.Origin, requestedOrigin)
			}
		}
		return existing, nil
	}

	origin, err := normalizeOrigin(req.SessionOrigin)
	if err != nil {
		return nil, err
	}

	rawProfile := req.SessionProfile
	if rawProfile == "" {
		rawProfile = string(security.DefaultProfile)
	}
	requestedProfile, err := security.NormalizeProfile(rawProfile)
	if err != nil {
		return nil, &BindingError{code: "INVALID_PROFILE", Message: err.Error()}
	}

	ceiling := originCeiling[origin]
	effective := effectiveProfile(requestedProfile, ceiling)

	namespace, scopeID := parseSessionScope(req.SessionID)
	allowedNamespaces := originAllowedNamespaces[origin]
	if !allowedNamespaces[namespace] {
		return nil, newBindingError("SESSION_NAMESPACE_DENIED",
			"origin '%s' is not authorized for session namespace '%s'. allowed namespaces: %s",
			origin, namespace, allowedNamespacesList(allowedNamespaces))
	}

	policy, err := security.NewAuthorizationPolicy(effective)
	if err != nil {
		return nil, err
	}
	binding := &Binding{Policy: policy, Origin: origin, Namespace: namespace, ScopeID: scopeID}
	r.bindings[req.SessionID] = binding
	return binding, nil
}

// EnforceTaskScope checks that a task-namespace session's scope id matches
// params.task_id for the predefined set of task-mutating methods.
func EnforceTaskScope(req RequestInfo, binding *Binding) error {
	if !taskMutationMethods[[2]string{req.Capability, req.Method}] {
		return nil
	}
	if binding.Namespace != NamespaceTask {
		return nil
	}
	raw, ok := req.Params["task_id"]
	taskID, isStr := raw.(string)
	if !ok || !isStr || strings.TrimSpace(taskID) == "" {
		return newBindingError("INVALID_PARAMS",
			"task-scoped session '%s' requires a non-empty task_id parameter", req.SessionID)
	}
	if taskID != binding.ScopeID {
		return newBindingError("SESSION_SCOPE_DENIED",
			"session '%s' is scoped to task '%s' and cannot mutate task '%s'",
			req.SessionID, binding.ScopeID, taskID)
	}
	return nil
}

func normalizeOrigin(raw string) (Origin, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return OriginLegacy, nil
	}
	switch Origin(normalized) {
	case OriginLegacy, OriginKagan, OriginKaganAdmin:
		return Origin(normalized), nil
	default:
		return "", newBindingError("INVALID_ORIGIN",
			"unknown session origin '%s'. valid origins: kagan, kagan_admin, legacy", raw)
	}
}

func coerceNamespace(raw string) (Namespace, bool) {
	switch Namespace(raw) {
	case NamespaceDefault, NamespaceTask, NamespacePlanner, NamespaceExt:
		return Namespace(raw), true
	default:
		return "", false
	}
}

// parseSessionScope extracts (namespace, scope_id) from a raw session id:
// prefixed forms `task:<id>`, `planner:<id>`, `ext:<id>`; the legacy bare
// `ABC-123` form maps to namespace task; anything else is namespace default.
func parseSessionScope(sessionID string) (Namespace, string) {
	if idx := strings.Index(sessionID, ":"); idx >= 0 {
		nsRaw, scope := sessionID[:idx], sessionID[idx+1:]
		if ns, ok := coerceNamespace(nsRaw); ok && scopedNamespaces[ns] && scope != "" {
			return ns, scope
		}
	}
	if legacyTaskIDRe.MatchString(sessionID) {
		return NamespaceTask, sessionID
	}
	return NamespaceDefault, sessionID
}

func effectiveProfile(requested, ceiling security.CapabilityProfile) security.CapabilityProfile {
	if security.Rank(requested) <= security.Rank(ceiling) {
		return requested
	}
	return ceiling
}

func allowedNamespacesList(allowed map[Namespace]bool) string {
	out := ""
	first := true
	for _, ns := range []Namespace{NamespaceDefault, NamespaceExt, NamespacePlanner, NamespaceTask} {
		if allowed[ns] {
			if !first {
				out += ", "
			}
			out += string(ns)
			first = false
		}
	}
	return out
}
