package oak

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"
	"sync"
)

// Container defines the interface for the dependency injection container.
// Use [New] to create an instance.
type Container interface {
	// Register adds a constructor to the container. The constructor must be a
	// function with the signature func(deps...) T or func(deps...) (T, error).
	// Dependencies are expressed as function parameters and resolved by type.
	// Typed providers accept only [WithLifetime].
	Register(constructor interface{}, opts ...Option) error

	// RegisterNamed adds a named definition built from constructor. Named
	// definitions live in a separate, ordered namespace and are resolved via
	// [Container.ResolveNamed] or the generic [ResolveNamed] helper.
	RegisterNamed(name string, constructor interface{}, opts ...Option) error

	// RegisterDefinition adds a fully specified named definition. The
	// definition is copied.
	RegisterDefinition(name string, def *Definition) error

	// RegisterType binds a type name to a constructor. Definitions that carry
	// a [Definition.TypeName] instead of a constructor are built through it.
	RegisterType(typeName string, constructor interface{}) error

	// AddPostProcessor adds a hook that runs during Build. It must implement
	// [RegistryPostProcessor], [FactoryPostProcessor], or both.
	AddPostProcessor(p interface{}) error

	// Build runs registry post-processors, validates the full dependency
	// graph (missing providers, circular dependencies) and
	// eagerly instantiates all [Singleton] providers and definitions, then
	// runs factory post-processors. After Build succeeds the container is
	// immutable; no further registrations are accepted. A failed Build is
	// final: later calls return [ErrBuildFailed] wrapping the first error,
	// and [Container.Shutdown] still releases whatever was constructed.
	Build() error

	// Resolve returns the value for the given type. For [Singleton] providers
	// the cached instance is returned; for [Transient] providers a new
	// instance is constructed on each call. Prefer the generic [Resolve]
	// helper over calling this method directly.
	Resolve(t reflect.Type) (reflect.Value, error)

	// ResolveNamed returns the value for the named definition. The requested
	// type t must be assignable from the definition's type. Prefer the
	// generic [ResolveNamed] helper over calling this method directly.
	ResolveNamed(name string, t reflect.Type) (reflect.Value, error)

	// Shutdown gracefully closes all singletons that implement [io.Closer],
	// in reverse construction order (dependents are closed before their
	// dependencies). The context controls the overall deadline; if it
	// expires, remaining closers are skipped and the context error is
	// included in the result.
	//
	// Shutdown is safe to call multiple times; subsequent calls return
	// [ErrAlreadyShutdown]. It is the caller's responsibility to stop
	// calling [Container.Resolve] before or during shutdown.
	Shutdown(ctx context.Context) error
}

type container struct {
	mu sync.RWMutex

	providers  map[reflect.Type]provider
	singletons map[reflect.Type]reflect.Value

	// defs and order form the named registry; order is registration order
	// and drives every name enumeration.
	defs  map[string]*Definition
	order []string
	named map[string]reflect.Value
	types map[string]reflect.Value

	processors []interface{}

	// closers holds singletons that implement io.Closer, recorded in
	// construction order during Build. Shutdown iterates them in reverse.
	closers []io.Closer

	built    bool
	buildErr error
	shutdown bool
}

// provider holds the metadata for a single typed constructor.
type provider struct {
	constructor reflect.Value
	lifetime    Lifetime
	outType     reflect.Type
}

// New creates an empty [Container] ready for registration.
func New() Container {
	return &container{
		providers:  make(map[reflect.Type]provider),
		singletons: make(map[reflect.Type]reflect.Value),
		defs:       make(map[string]*Definition),
		named:      make(map[string]reflect.Value),
		types:      make(map[string]reflect.Value),
	}
}

func (c *container) Register(constructor interface{}, opts ...Option) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.built {
		return ErrAlreadyBuilt
	}

	val, err := checkConstructor(constructor)
	if err != nil {
		return err
	}

	var d Definition
	for _, opt := range opts {
		opt(&d)
	}
	if d.Parent != "" || d.Args != nil || d.Abstract {
		return fmt.Errorf("%w: typed providers accept only WithLifetime", ErrInvalidDefinition)
	}

	outType := val.Type().Out(0)
	if _, exists := c.providers[outType]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, outType)
	}
	c.providers[outType] = provider{
		constructor: val,
		lifetime:    d.Lifetime,
		outType:     outType,
	}
	return nil
}

func (c *container) RegisterNamed(name string, constructor interface{}, opts ...Option) error {
	d := &Definition{Constructor: constructor}
	for _, opt := range opts {
		opt(d)
	}
	return c.RegisterDefinition(name, d)
}

func (c *container) RegisterDefinition(name string, def *Definition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.built {
		return ErrAlreadyBuilt
	}
	return c.addDefinition(name, def)
}

func (c *container) addDefinition(name string, def *Definition) error {
	if err := checkDefinition(name, def); err != nil {
		return err
	}
	if _, exists := c.defs[name]; exists {
		return fmt.Errorf("%w: named %q", ErrDuplicateProvider, name)
	}

	d := *def
	c.defs[name] = &d
	c.order = append(c.order, name)
	return nil
}

func (c *container) RegisterType(typeName string, constructor interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.built {
		return ErrAlreadyBuilt
	}
	if typeName == "" {
		return errors.New("type name cannot be empty")
	}

	val, err := checkConstructor(constructor)
	if err != nil {
		return fmt.Errorf("type %q: %w", typeName, err)
	}
	if _, exists := c.types[typeName]; exists {
		return fmt.Errorf("%w: type %q", ErrDuplicateProvider, typeName)
	}
	c.types[typeName] = val
	return nil
}

func (c *container) AddPostProcessor(p interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.built {
		return ErrAlreadyBuilt
	}

	_, isRegistry := p.(RegistryPostProcessor)
	_, isFactory := p.(FactoryPostProcessor)
	if !isRegistry && !isFactory {
		return fmt.Errorf("post-processor %T implements neither RegistryPostProcessor nor FactoryPostProcessor", p)
	}

	c.processors = append(c.processors, p)
	return nil
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

type buildState int

const (
	unvisited buildState = iota
	visiting
	visited
)

func (c *container) Build() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.built {
		return ErrAlreadyBuilt
	}
	if c.buildErr != nil {
		return fmt.Errorf("%w: %w", ErrBuildFailed, c.buildErr)
	}

	if err := c.build(); err != nil {
		c.buildErr = err
		return err
	}
	c.built = true
	return nil
}

// build runs every phase of Build. Registry edits and constructed singletons
// are not rolled back on failure.
func (c *container) build() error {
	processors := c.sortedProcessors()

	reg := &registry{c: c}
	for _, p := range processors {
		if rp, ok := p.(RegistryPostProcessor); ok {
			if err := rp.PostProcessRegistry(reg); err != nil {
				return fmt.Errorf("registry post-processor %T: %w", p, err)
			}
		}
	}

	states := make(map[reflect.Type]buildState)

	for t := range c.providers {
		if err := c.buildResolve(t, states, nil); err != nil {
			return err
		}
	}

	for _, name := range c.order {
		if err := c.buildNamed(name); err != nil {
			return err
		}
	}

	fac := &factory{c: c}
	for _, p := range processors {
		if fp, ok := p.(FactoryPostProcessor); ok {
			if err := fp.PostProcessFactory(fac); err != nil {
				return fmt.Errorf("factory post-processor %T: %w", p, err)
			}
		}
	}
	return nil
}

// sortedProcessors orders post-processors by [Ordered.Order], keeping
// registration order for ties.
func (c *container) sortedProcessors() []interface{} {
	out := slices.Clone(c.processors)
	slices.SortStableFunc(out, func(a, b interface{}) int {
		return cmp.Compare(orderOf(a), orderOf(b))
	})
	return out
}

func orderOf(p interface{}) int {
	if o, ok := p.(Ordered); ok {
		return o.Order()
	}
	return 0
}

// buildResolve walks the dependency graph depth-first using a local state map
// and stack. Singletons are instantiated and cached; transients are only
// validated.
func (c *container) buildResolve(t reflect.Type, states map[reflect.Type]buildState, stack []reflect.Type) error {
	switch states[t] {
	case visiting:
		return c.circularError(t, stack)
	case visited:
		return nil
	}

	p, ok := c.providers[t]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, t)
	}

	states[t] = visiting
	stack = append(stack, t)

	fnType := p.constructor.Type()
	for i := 0; i < fnType.NumIn(); i++ {
		if err := c.buildResolve(fnType.In(i), states, stack); err != nil {
			return err
		}
	}

	if p.lifetime == Singleton {
		instance, err := c.construct(p)
		if err != nil {
			return fmt.Errorf("constructing %s: %w", t, err)
		}
		c.singletons[t] = instance

		if closer, ok := instance.Interface().(io.Closer); ok {
			c.closers = append(c.closers, closer)
		}
	}

	states[t] = visited
	return nil
}

// buildNamed instantiates a named singleton, or validates a named transient
// without constructing it.
func (c *container) buildNamed(name string) error {
	eff, err := c.effective(name)
	if err != nil {
		return err
	}
	if eff.abstract {
		return nil
	}

	if eff.lifetime == Singleton {
		if _, err := c.instantiate(name, nil); err != nil {
			return fmt.Errorf("constructing named %q: %w", name, err)
		}
		return nil
	}

	return c.validateNamed(name, eff)
}

func (c *container) validateNamed(name string, eff effectiveDefinition) error {
	fnType := eff.constructor.Type()
	if len(eff.args) > fnType.NumIn() {
		return fmt.Errorf("%w: named %q has %d args for %d parameters", ErrInvalidDefinition, name, len(eff.args), fnType.NumIn())
	}
	for i := 0; i < fnType.NumIn(); i++ {
		if i < len(eff.args) && eff.args[i] != nil {
			for _, ref := range eff.args[i].refs() {
				if _, ok := c.defs[ref]; !ok {
					return fmt.Errorf("named provider %q: %w: named %q", name, ErrProviderNotFound, ref)
				}
			}
			continue
		}
		depType := fnType.In(i)
		if _, ok := c.providers[depType]; !ok {
			return fmt.Errorf("named provider %q: %w: %s", name, ErrProviderNotFound, depType)
		}
	}
	return nil
}

func (c *container) circularError(t reflect.Type, stack []reflect.Type) error {
	chain := make([]string, len(stack)+1)
	for i, s := range stack {
		chain[i] = s.String()
	}
	chain[len(stack)] = t.String()

	return fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(chain, " -> "))
}

// ---------------------------------------------------------------------------
// Shutdown
// ---------------------------------------------------------------------------

func (c *container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.built && c.buildErr == nil {
		return ErrNotBuilt
	}

	if c.shutdown {
		return ErrAlreadyShutdown
	}

	c.shutdown = true

	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
