package actions

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/dokzlo13/boblightd/internal/device"
)

// ErrActionNotFound is returned for an action name nobody registered, or one
// registered for other device classes.
var ErrActionNotFound = errors.New("action not found")

// AllClasses binds an action to server and channel devices.
var AllClasses = []device.Class{device.ClassServer, device.ClassChannel}

// Action is a light operation bound to the device classes it can drive.
type Action interface {
	Name() string
	Classes() []device.Class
	Execute(ctx *Context, args map[string]any) error
}

// SimpleAction is the standard action implementation
type SimpleAction struct {
	name    string
	classes []device.Class
	fn      func(ctx *Context, args map[string]any) error
}

func (a *SimpleAction) Name() string { return a.name }

func (a *SimpleAction) Classes() []device.Class { return a.classes }

func (a *SimpleAction) Execute(ctx *Context, args map[string]any) error {
	return a.fn(ctx, args)
}

// Registry maps action names to actions and device classes to the names
// they accept.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
	byClass map[device.Class][]string
}

// NewRegistry creates a new action registry
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]Action),
		byClass: make(map[device.Class][]string),
	}
}

// Register adds an action. It must name at least one device class.
func (r *Registry) Register(action Action) error {
	name := action.Name()
	classes := action.Classes()
	if name == "" {
		return errors.New("action name is required")
	}
	if len(classes) == 0 {
		return fmt.Errorf("action %q has no device classes", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[name]; exists {
		return fmt.Errorf("action %q already registered", name)
	}

	r.actions[name] = action
	for _, c := range classes {
		if slices.Contains(r.byClass[c], name) {
			continue
		}
		r.byClass[c] = append(r.byClass[c], name)
		sort.Strings(r.byClass[c])
	}
	return nil
}

// RegisterSimple adds a function action for the given classes. No classes
// means every class.
func (r *Registry) RegisterSimple(name string, fn func(ctx *Context, args map[string]any) error, classes ...device.Class) error {
	if len(classes) == 0 {
		classes = AllClasses
	}
	return r.Register(&SimpleAction{name: name, classes: classes, fn: fn})
}

// Get retrieves an action by name
func (r *Registry) Get(name string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	action, exists := r.actions[name]
	return action, exists
}

// Supports reports whether name is registered for class.
func (r *Registry) Supports(name string, class device.Class) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.byClass[class], name)
}

// NamesFor returns the sorted action names registered for class.
func (r *Registry) NamesFor(class device.Class) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.byClass[class])
}

// Names returns all registered action names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
