package oak

import (
	"fmt"
	"reflect"
)

// Factory is the view of instantiated definitions handed to a
// [FactoryPostProcessor]. Every named singleton already exists when it is
// called.
type Factory interface {
	// NamesForType returns, in registration order, the names of concrete
	// definitions whose instance (or declared type, for transients) is
	// assignable to t.
	NamesForType(t reflect.Type) []string

	// SingletonNamesForType is NamesForType restricted to singletons that
	// have already been instantiated. Transient definitions never match.
	SingletonNamesForType(t reflect.Type) []string

	// Instance returns the instance registered under name.
	Instance(name string) (reflect.Value, error)

	// IsTypeMatch reports whether the instance registered under name is
	// assignable to t.
	IsTypeMatch(name string, t reflect.Type) (bool, error)
}

// FactoryPostProcessor inspects or adjusts live instances after Build has
// constructed them.
type FactoryPostProcessor interface {
	PostProcessFactory(f Factory) error
}

type factory struct {
	c *container
}

func (f *factory) NamesForType(t reflect.Type) []string {
	var names []string
	for _, name := range f.c.order {
		if ok, err := f.IsTypeMatch(name, t); err == nil && ok {
			names = append(names, name)
		}
	}
	return names
}

func (f *factory) SingletonNamesForType(t reflect.Type) []string {
	var names []string
	for _, name := range f.c.order {
		if inst, ok := f.c.named[name]; ok && concreteType(inst).AssignableTo(t) {
			names = append(names, name)
		}
	}
	return names
}

func (f *factory) Instance(name string) (reflect.Value, error) {
	return f.c.instantiate(name, nil)
}

func (f *factory) IsTypeMatch(name string, t reflect.Type) (bool, error) {
	if inst, ok := f.c.named[name]; ok {
		return concreteType(inst).AssignableTo(t), nil
	}

	eff, err := f.c.effective(name)
	if err != nil {
		return false, err
	}
	if eff.abstract {
		return false, nil
	}
	if eff.lifetime == Singleton {
		return false, fmt.Errorf("%w: singleton %q was not instantiated", ErrInvalidDefinition, name)
	}
	return eff.constructor.Type().Out(0).AssignableTo(t), nil
}
