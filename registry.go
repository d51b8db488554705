package oak

import (
	"fmt"
	"reflect"
	"slices"
)

// Registry is the view of named definitions handed to a
// [RegistryPostProcessor]. It is only valid for the duration of the call.
type Registry interface {
	// Names returns every definition name in registration order.
	Names() []string

	// Contains reports whether a definition is registered under name.
	Contains(name string) bool

	// Definition returns the stored definition. Changes made through the
	// returned pointer are visible to the container.
	Definition(name string) (*Definition, error)

	// Register adds a definition under name, after all existing names.
	Register(name string, def *Definition) error

	// Remove deletes the named definition. It fails with
	// [ErrDefinitionInUse] while another definition names it as parent.
	Remove(name string) error

	// ResolveType returns the type the named definition produces, following
	// parent links and type names.
	ResolveType(name string) (reflect.Type, error)
}

// RegistryPostProcessor edits the registry before anything is instantiated.
type RegistryPostProcessor interface {
	PostProcessRegistry(r Registry) error
}

// Ordered lets a post-processor choose its position; lower values run
// first. Post-processors without an order run at 0.
type Ordered interface {
	Order() int
}

type registry struct {
	c *container
}

func (r *registry) Names() []string {
	return slices.Clone(r.c.order)
}

func (r *registry) Contains(name string) bool {
	_, ok := r.c.defs[name]
	return ok
}

func (r *registry) Definition(name string) (*Definition, error) {
	d, ok := r.c.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: named %q", ErrProviderNotFound, name)
	}
	return d, nil
}

func (r *registry) Register(name string, def *Definition) error {
	return r.c.addDefinition(name, def)
}

func (r *registry) Remove(name string) error {
	if _, ok := r.c.defs[name]; !ok {
		return fmt.Errorf("%w: named %q", ErrProviderNotFound, name)
	}
	for _, other := range r.c.order {
		if other != name && r.c.defs[other].Parent == name {
			return fmt.Errorf("%w: %q is the parent of %q", ErrDefinitionInUse, name, other)
		}
	}

	delete(r.c.defs, name)
	r.c.order = slices.DeleteFunc(r.c.order, func(n string) bool { return n == name })
	return nil
}

func (r *registry) ResolveType(name string) (reflect.Type, error) {
	eff, err := r.c.effective(name)
	if err != nil {
		return nil, err
	}
	return eff.constructor.Type().Out(0), nil
}
