// Package security implements Kagan's capability-profile authorization
// policy: an ordered set of named profiles (viewer < planner < pair_worker <
// operator < maintainer), each a static set of (capability, method) pairs it
// may invoke.
package security

import "fmt"

// CapabilityProfile is a named security profile for session authorization.
type CapabilityProfile string

const (
	ProfileViewer     CapabilityProfile = "viewer"
	ProfilePlanner    CapabilityProfile = "planner"
	ProfilePairWorker CapabilityProfile = "pair_worker"
	ProfileOperator   CapabilityProfile = "operator"
	ProfileMaintainer CapabilityProfile = "maintainer"
)

// DefaultProfile is assigned to unscoped sessions.
const DefaultProfile = ProfileViewer

// profileRank orders profiles for ceiling comparisons; higher is more
// privileged.
var profileRank = map[CapabilityProfile]int{
	ProfileViewer:     0,
	ProfilePlanner:    1,
	ProfilePairWorker: 2,
	ProfileOperator:   3,
	ProfileMaintainer: 4,
}

// AllProfiles lists every valid profile, lowest-ranked first.
var AllProfiles = []CapabilityProfile{
	ProfileViewer, ProfilePlanner, ProfilePairWorker, ProfileOperator, ProfileMaintainer,
}

// Rank returns the profile's privilege rank; unknown profiles rank -1.
func Rank(p CapabilityProfile) int {
	if r, ok := profileRank[p]; ok {
		return r
	}
	return -1
}

// NormalizeProfile validates and returns the canonical profile value.
func NormalizeProfile(raw string) (CapabilityProfile, error) {
	p := CapabilityProfile(raw)
	if _, ok := profileRank[p]; !ok {
		return "", fmt.Errorf("unknown capability profile %q. valid profiles: %s", raw, validProfilesList())
	}
	return p, nil
}

func validProfilesList() string {
	s := ""
	for i, p := range AllProfiles {
		if i > 0 {
			s += ", "
		}
		s += string(p)
	}
	return s
}

// CapabilityMethod is a canonical (capability, method) pair.
type CapabilityMethod struct {
	Capability string
	Method     string
}

func call(capability, method string) CapabilityMethod {
	return CapabilityMethod{Capability: capability, Method: method}
}

// Canonical capability names.
const (
	CapTasks       = "tasks"
	CapProjects    = "projects"
	CapAudit       = "audit"
	CapPlan        = "plan"
	CapJobs        = "jobs"
	CapReview      = "review"
	CapSessions    = "sessions"
	CapDiagnostics = "diagnostics"
	CapSettings    = "settings"
)

// viewerMethods are the read-only queries available to every profile.
var viewerMethods = map[CapabilityMethod]struct{}{
	call(CapTasks, "context"):        {},
	call(CapTasks, "get"):            {},
	call(CapTasks, "list"):           {},
	call(CapTasks, "logs"):           {},
	call(CapTasks, "scratchpad"):     {},
	call(CapProjects, "get"):         {},
	call(CapProjects, "list"):        {},
	call(CapProjects, "repos"):       {},
	call(CapAudit, "list"):           {},
}

func union(base map[CapabilityMethod]struct{}, extra ...CapabilityMethod) map[CapabilityMethod]struct{} {
	out := make(map[CapabilityMethod]struct{}, len(base)+len(extra))
	for k := range base {
		out[k] = struct{}{}
	}
	for _, k := range extra {
		out[k] = struct{}{}
	}
	return out
}

var plannerMethods = union(viewerMethods,
	call(CapPlan, "propose"),
)

var pairWorkerMethods = union(plannerMethods,
	call(CapTasks, "update_scratchpad"),
	call(CapJobs, "submit"),
	call(CapJobs, "get"),
	call(CapJobs, "wait"),
	call(CapJobs, "events"),
	call(CapJobs, "cancel"),
	call(CapReview, "request"),
	call(CapSessions, "create"),
	call(CapSessions, "attach"),
	call(CapSessions, "exists"),
	call(CapSessions, "kill"),
)

var operatorMethods = union(pairWorkerMethods,
	call(CapTasks, "create"),
	call(CapTasks, "update"),
	call(CapTasks, "move"),
	call(CapReview, "approve"),
	call(CapReview, "reject"),
)

var maintainerMethods = union(operatorMethods,
	call(CapTasks, "delete"),
	call(CapReview, "merge"),
	call(CapReview, "rebase"),
	call(CapProjects, "create"),
	call(CapProjects, "open"),
	call(CapDiagnostics, "instrumentation"),
	call(CapSettings, "get"),
	call(CapSettings, "update"),
)

// capabilityProfiles maps each profile to its allowed (capability,method)
// set. Profiles are supersets of every lower-ranked profile's set.
var capabilityProfiles = map[CapabilityProfile]map[CapabilityMethod]struct{}{
	ProfileViewer:     viewerMethods,
	ProfilePlanner:    plannerMethods,
	ProfilePairWorker: pairWorkerMethods,
	ProfileOperator:   operatorMethods,
	ProfileMaintainer: maintainerMethods,
}

// AuthorizationError is raised when a profile may not invoke a given call.
type AuthorizationError struct {
	Capability string
	Method     string
	Profile    CapabilityProfile
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("profile '%s' is not authorized for %s.%s", e.Profile, e.Capability, e.Method)
}

// Code is the IPC-layer error code for an AuthorizationError.
func (e *AuthorizationError) Code() string { return "AUTHORIZATION_DENIED" }

// AuthorizationPolicy checks whether a bound profile may invoke a given
// (capability, method) pair. maintainer is unrestricted.
type AuthorizationPolicy struct {
	profile      CapabilityProfile
	allowed      map[CapabilityMethod]struct{}
	unrestricted bool
}

// NewAuthorizationPolicy builds a policy bound to profile.
func NewAuthorizationPolicy(profile CapabilityProfile) (*AuthorizationPolicy, error) {
	normalized, err := NormalizeProfile(string(profile))
	if err != nil {
		return nil, err
	}
	return &AuthorizationPolicy{
		profile:      normalized,
		allowed:      capabilityProfiles[normalized],
		unrestricted: normalized == ProfileMaintainer,
	}, nil
}

// Profile returns the profile this policy enforces.
func (p *AuthorizationPolicy) Profile() CapabilityProfile { return p.profile }

// Check reports whether capability.method is allowed under this policy.
func (p *AuthorizationPolicy) Check(capability, method string) bool {
	if p.unrestricted {
		return true
	}
	_, ok := p.allowed[call(capability, method)]
	return ok
}

// Enforce returns an *AuthorizationError if capability.method is denied.
func (p *AuthorizationPolicy) Enforce(capability, method string) error {
	if !p.Check(capability, method) {
		return &AuthorizationError{Capability: capability, Method: method, Profile: p.profile}
	}
	return nil
}
