package actions

import (
	"errors"
	"fmt"
	"sort"

	"github.com/stackgate/backend/internal/config"
	"github.com/stackgate/backend/internal/domain"
)

var (
	ErrUnknownAction   = errors.New("actions: unknown action type")
	ErrDuplicateAction = errors.New("actions: duplicate action type")
)

// Registry maps action type names to their specs. It is built once at
// start-up and read-only afterwards.
type Registry struct {
	specs map[string]Spec
}

func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{specs: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		if _, ok := r.specs[s.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAction, s.Name)
		}
		r.specs[s.Name] = s
	}
	return r, nil
}

// Builtin returns the registry of every action shipped with the service.
func Builtin() *Registry {
	r, err := NewRegistry(
		NewUser(),
		NewProjectWithUser(),
		ResetUserPassword(),
		EditUserRoles(),
	)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Get(name string) (Spec, error) {
	s, ok := r.specs[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	return s, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for n := range r.specs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CheckTasks verifies that every configured task type resolves to known actions.
func (r *Registry) CheckTasks(tasks map[string]config.TaskConfig) error {
	for name, t := range tasks {
		if len(t.Actions) == 0 {
			return fmt.Errorf("task type %s: no actions configured", name)
		}
		for _, a := range t.Actions {
			if _, err := r.Get(a); err != nil {
				return fmt.Errorf("task type %s: %w", name, err)
			}
		}
	}
	return nil
}

func checkRolePolicy(rc domain.RequestContext, settings config.ActionConfig) (string, bool) {
	if len(settings.BlacklistedRoles) > 0 && rc.HasRole(settings.BlacklistedRoles...) {
		return "caller holds a role that may not perform this action", false
	}
	if len(settings.AllowedRoles) > 0 && !rc.HasRole(settings.AllowedRoles...) {
		return "caller lacks a role permitted to perform this action", false
	}
	return "", true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsAll(have, want []string) bool {
	for _, w := range want {
		if !contains(have, w) {
			return false
		}
	}
	return true
}

func containsAny(have, want []string) bool {
	for _, w := range want {
		if contains(have, w) {
			return true
		}
	}
	return false
}
