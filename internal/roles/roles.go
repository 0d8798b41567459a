package roles

import (
	"sort"
	"strings"
	"sync"
)

const (
	// Admin may change pool parameters, link credentials and manage updaters.
	Admin = "admin"
	// Updater may push price samples into the oracle.
	Updater = "updater"
)

// Registry is an in-memory role allow-list.
type Registry struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{members: make(map[string]map[string]struct{})}
}

// Grant adds id to role. It reports whether the membership is new.
func (r *Registry) Grant(role, id string) bool {
	role, id = strings.TrimSpace(role), strings.TrimSpace(id)
	if role == "" || id == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.members[role]
	if !ok {
		set = make(map[string]struct{})
		r.members[role] = set
	}
	if _, exists := set[id]; exists {
		return false
	}
	set[id] = struct{}{}
	return true
}

// Revoke removes id from role. It reports whether id was a member.
func (r *Registry) Revoke(role, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.members[strings.TrimSpace(role)]
	if _, ok := set[strings.TrimSpace(id)]; !ok {
		return false
	}
	delete(set, strings.TrimSpace(id))
	return true
}

// HasRole reports whether id holds role. Empty ids never hold a role.
func (r *Registry) HasRole(role, id string) bool {
	if r == nil || strings.TrimSpace(id) == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[strings.TrimSpace(role)][strings.TrimSpace(id)]
	return ok
}

// Members lists the holders of role, sorted.
func (r *Registry) Members(role string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.members[strings.TrimSpace(role)]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
