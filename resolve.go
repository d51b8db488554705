package oak

import (
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"
)

// ---------------------------------------------------------------------------
// Container methods
// ---------------------------------------------------------------------------

func (c *container) Resolve(t reflect.Type) (reflect.Value, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.built {
		return reflect.Value{}, ErrNotBuilt
	}

	if inst, ok := c.singletons[t]; ok {
		return inst, nil
	}

	p, ok := c.providers[t]
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: %s", ErrProviderNotFound, t)
	}

	return c.construct(p)
}

func (c *container) ResolveNamed(name string, t reflect.Type) (reflect.Value, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.built {
		return reflect.Value{}, ErrNotBuilt
	}

	eff, err := c.effective(name)
	if err != nil {
		return reflect.Value{}, err
	}

	outType := eff.constructor.Type().Out(0)
	if inst, ok := c.named[name]; ok {
		out, ok := assignable(inst, t)
		if !ok {
			return reflect.Value{}, fmt.Errorf("named provider %q returns %s, not assignable to %s", name, concreteType(inst), t)
		}
		return out, nil
	}

	if !outType.AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("named provider %q returns %s, not assignable to %s", name, outType, t)
	}

	return c.instantiate(name, nil)
}

// ---------------------------------------------------------------------------
// Generic helpers
// ---------------------------------------------------------------------------

// Resolve is a generic helper that resolves a typed provider from the
// container. It is the recommended way to retrieve values:
//
//	db, err := oak.Resolve[*Database](c)
func Resolve[T any](c Container) (T, error) {
	var zero T
	t := reflect.TypeOf((*T)(nil)).Elem()

	val, err := c.Resolve(t)
	if err != nil {
		return zero, err
	}

	out, ok := val.Interface().(T)
	if !ok {
		return zero, fmt.Errorf("cannot convert %s to %s", val.Type(), t)
	}

	return out, nil
}

// ResolveNamed is a generic helper that resolves a named definition from the
// container:
//
//	db, err := oak.ResolveNamed[*Database](c, "primary")
func ResolveNamed[T any](c Container, name string) (T, error) {
	var zero T
	t := reflect.TypeOf((*T)(nil)).Elem()

	val, err := c.ResolveNamed(name, t)
	if err != nil {
		return zero, err
	}

	out, ok := val.Interface().(T)
	if !ok {
		return zero, fmt.Errorf("named %q: cannot convert %s to %s", name, val.Type(), t)
	}

	return out, nil
}

// ---------------------------------------------------------------------------
// Internal
// ---------------------------------------------------------------------------

// effectiveDefinition is a named definition with its parent chain merged and
// its type name resolved to a constructor.
type effectiveDefinition struct {
	constructor reflect.Value
	args        []Arg
	lifetime    Lifetime
	abstract    bool
}

// effective merges the parent chain of name, root first, so the closest
// definition that sets a constructor, type name or args wins.
func (c *container) effective(name string) (effectiveDefinition, error) {
	def, ok := c.defs[name]
	if !ok {
		return effectiveDefinition{}, fmt.Errorf("%w: named %q", ErrProviderNotFound, name)
	}

	chain := []*Definition{def}
	seen := map[string]bool{name: true}
	for cur := def; cur.Parent != ""; {
		if seen[cur.Parent] {
			return effectiveDefinition{}, fmt.Errorf("%w: parent chain of %q loops at %q", ErrCircularDependency, name, cur.Parent)
		}
		parent, ok := c.defs[cur.Parent]
		if !ok {
			return effectiveDefinition{}, fmt.Errorf("definition %q: parent %w: named %q", name, ErrProviderNotFound, cur.Parent)
		}
		seen[cur.Parent] = true
		chain = append(chain, parent)
		cur = parent
	}

	var (
		ctor     interface{}
		typeName string
		args     []Arg
	)
	for i := len(chain) - 1; i >= 0; i-- {
		d := chain[i]
		switch {
		case d.Constructor != nil:
			ctor, typeName = d.Constructor, ""
		case d.TypeName != "":
			ctor, typeName = nil, d.TypeName
		}
		if d.Args != nil {
			args = d.Args
		}
	}

	eff := effectiveDefinition{
		args:     args,
		lifetime: def.Lifetime,
		abstract: def.Abstract,
	}

	switch {
	case ctor != nil:
		val, err := checkConstructor(ctor)
		if err != nil {
			return effectiveDefinition{}, fmt.Errorf("definition %q: %w", name, err)
		}
		eff.constructor = val
	case typeName != "":
		val, ok := c.types[typeName]
		if !ok {
			return effectiveDefinition{}, fmt.Errorf("definition %q: %w: %q", name, ErrTypeNotFound, typeName)
		}
		eff.constructor = val
	default:
		return effectiveDefinition{}, fmt.Errorf("%w: %q resolves to no constructor", ErrInvalidDefinition, name)
	}

	return eff, nil
}

// instantiate returns the instance for a named definition, constructing it
// when it is not already cached. stack carries the names currently being
// constructed and is used for cycle detection. Only singletons are cached,
// and all of them are cached during Build, so calls after Build never write.
func (c *container) instantiate(name string, stack []string) (reflect.Value, error) {
	if inst, ok := c.named[name]; ok {
		return inst, nil
	}

	if slices.Contains(stack, name) {
		chain := append(slices.Clone(stack), name)
		return reflect.Value{}, fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(chain, " -> "))
	}

	eff, err := c.effective(name)
	if err != nil {
		return reflect.Value{}, err
	}
	if eff.abstract {
		return reflect.Value{}, fmt.Errorf("%w: %q is abstract", ErrInvalidDefinition, name)
	}

	inst, err := c.call(name, eff, append(stack, name))
	if err != nil {
		return reflect.Value{}, err
	}

	if eff.lifetime == Singleton {
		c.named[name] = inst
		if closer, ok := inst.Interface().(io.Closer); ok {
			c.closers = append(c.closers, closer)
		}
	}

	return inst, nil
}

// call invokes the constructor of a named definition, taking explicit args by
// position and resolving the rest by type.
func (c *container) call(name string, eff effectiveDefinition, stack []string) (reflect.Value, error) {
	fnType := eff.constructor.Type()
	if len(eff.args) > fnType.NumIn() {
		return reflect.Value{}, fmt.Errorf("%w: named %q has %d args for %d parameters", ErrInvalidDefinition, name, len(eff.args), fnType.NumIn())
	}

	args := make([]reflect.Value, fnType.NumIn())
	for i := 0; i < fnType.NumIn(); i++ {
		depType := fnType.In(i)

		if i < len(eff.args) && eff.args[i] != nil {
			v, err := eff.args[i].resolveArg(c, stack, depType)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("named %q arg %d: %w", name, i, err)
			}
			args[i] = v
			continue
		}

		v, err := c.dependency(depType)
		if err != nil {
			return reflect.Value{}, err
		}
		args[i] = v
	}

	return invoke(eff.constructor, args)
}

// construct creates a new instance by resolving all dependencies. Singleton
// deps come from the cache; transient deps are recursively constructed. This
// method only reads c.singletons and c.providers, so it is safe under a
// read-lock after Build.
func (c *container) construct(p provider) (reflect.Value, error) {
	fnType := p.constructor.Type()
	args := make([]reflect.Value, fnType.NumIn())

	for i := 0; i < fnType.NumIn(); i++ {
		v, err := c.dependency(fnType.In(i))
		if err != nil {
			return reflect.Value{}, err
		}
		args[i] = v
	}

	return invoke(p.constructor, args)
}

func (c *container) dependency(depType reflect.Type) (reflect.Value, error) {
	if inst, ok := c.singletons[depType]; ok {
		return inst, nil
	}

	depProvider, ok := c.providers[depType]
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: %s", ErrProviderNotFound, depType)
	}

	inst, err := c.construct(depProvider)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("resolving %s: %w", depType, err)
	}
	return inst, nil
}

func invoke(fn reflect.Value, args []reflect.Value) (reflect.Value, error) {
	results := fn.Call(args)
	if len(results) == 2 && !results[1].IsNil() {
		return reflect.Value{}, results[1].Interface().(error)
	}
	return results[0], nil
}
