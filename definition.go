package oak

import (
	"errors"
	"fmt"
	"reflect"
)

// Lifetime controls how many instances of a provider the container creates.
type Lifetime int

const (
	// Singleton is the default lifetime. The constructor is called once during
	// [Container.Build] and the resulting instance is reused for every
	// subsequent resolve.
	Singleton Lifetime = iota

	// Transient means a new instance is constructed on every resolve.
	Transient
)

// String returns the human-readable name of the lifetime.
func (l Lifetime) String() string {
	switch l {
	case Singleton:
		return "singleton"
	case Transient:
		return "transient"
	default:
		return "unknown"
	}
}

// Definition describes a named component. The container keeps definitions in
// registration order; [RegistryPostProcessor] implementations may inspect and
// edit them before anything is instantiated.
type Definition struct {
	// Constructor is a func(deps...) T or func(deps...) (T, error).
	Constructor interface{}

	// TypeName selects a constructor registered with [Container.RegisterType].
	// It is only consulted when Constructor is nil.
	TypeName string

	// Parent names a definition whose constructor, type name and args are
	// inherited when this definition does not set its own.
	Parent string

	// Args overrides constructor parameters by position. A nil entry, or a
	// position past the end of Args, is resolved by type as usual.
	Args []Arg

	Lifetime Lifetime

	// Abstract definitions only serve as parents and are never instantiated.
	Abstract bool
}

// Option configures a provider during registration.
type Option func(*Definition)

// WithLifetime sets the [Lifetime] of the provider. The default is
// [Singleton].
func WithLifetime(l Lifetime) Option {
	return func(d *Definition) {
		d.Lifetime = l
	}
}

// WithParent links a named definition to a parent definition.
func WithParent(name string) Option {
	return func(d *Definition) {
		d.Parent = name
	}
}

// WithArgs sets explicit constructor arguments on a named definition.
func WithArgs(args ...Arg) Option {
	return func(d *Definition) {
		d.Args = args
	}
}

// AsAbstract marks a named definition as a template for children.
func AsAbstract() Option {
	return func(d *Definition) {
		d.Abstract = true
	}
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

func checkConstructor(constructor interface{}) (reflect.Value, error) {
	if constructor == nil {
		return reflect.Value{}, errors.New("constructor must be a function")
	}

	val := reflect.ValueOf(constructor)
	typ := val.Type()

	if typ.Kind() != reflect.Func {
		return reflect.Value{}, errors.New("constructor must be a function")
	}

	if typ.NumOut() == 0 || typ.NumOut() > 2 {
		return reflect.Value{}, errors.New("constructor must return (T) or (T, error)")
	}

	if typ.NumOut() == 2 && !typ.Out(1).Implements(errType) {
		return reflect.Value{}, errors.New("second return value must implement error")
	}

	return val, nil
}

func checkDefinition(name string, d *Definition) error {
	if name == "" {
		return errors.New("name cannot be empty")
	}
	if d == nil {
		return fmt.Errorf("%w: %q is nil", ErrInvalidDefinition, name)
	}
	if d.Constructor == nil && d.TypeName == "" && d.Parent == "" {
		return fmt.Errorf("%w: %q has no constructor, type name or parent", ErrInvalidDefinition, name)
	}
	if d.Constructor != nil {
		if _, err := checkConstructor(d.Constructor); err != nil {
			return fmt.Errorf("definition %q: %w", name, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Arguments
// ---------------------------------------------------------------------------

// Arg is an explicit constructor argument. Use [Ref], [Value] or [List].
type Arg interface {
	resolveArg(c *container, stack []string, want reflect.Type) (reflect.Value, error)
	refs() []string
}

// RefArg is a deferred reference to a named definition. The target is looked
// up by name when the referring definition is instantiated, so renames made by
// a [RegistryPostProcessor] are honoured.
type RefArg struct {
	Name string
}

// Ref returns a deferred reference to the named definition.
func Ref(name string) RefArg {
	return RefArg{Name: name}
}

func (a RefArg) resolveArg(c *container, stack []string, want reflect.Type) (reflect.Value, error) {
	v, err := c.instantiate(a.Name, stack)
	if err != nil {
		return reflect.Value{}, err
	}
	out, ok := assignable(v, want)
	if !ok {
		return reflect.Value{}, fmt.Errorf("reference %q: %s is not assignable to %s", a.Name, concreteType(v), want)
	}
	return out, nil
}

func (a RefArg) refs() []string { return []string{a.Name} }

// ValueArg is a literal constructor argument.
type ValueArg struct {
	V interface{}
}

// Value returns a literal argument. A nil value becomes the zero value of the
// parameter type.
func Value(v interface{}) ValueArg {
	return ValueArg{V: v}
}

func (a ValueArg) resolveArg(_ *container, _ []string, want reflect.Type) (reflect.Value, error) {
	v := reflect.ValueOf(a.V)
	if !v.IsValid() {
		return reflect.Zero(want), nil
	}
	if !v.Type().AssignableTo(want) {
		return reflect.Value{}, fmt.Errorf("value of type %s is not assignable to %s", v.Type(), want)
	}
	return v, nil
}

func (a ValueArg) refs() []string { return nil }

// ListArg builds an ordered slice whose elements are themselves arguments.
type ListArg struct {
	Elem  reflect.Type
	Items []Arg
}

// List returns an argument that resolves to a []T holding items in order.
func List[T any](items ...Arg) ListArg {
	return ListArg{Elem: reflect.TypeOf((*T)(nil)).Elem(), Items: items}
}

func (a ListArg) resolveArg(c *container, stack []string, want reflect.Type) (reflect.Value, error) {
	sliceType := reflect.SliceOf(a.Elem)
	if !sliceType.AssignableTo(want) {
		return reflect.Value{}, fmt.Errorf("list of %s is not assignable to %s", a.Elem, want)
	}

	out := reflect.MakeSlice(sliceType, 0, len(a.Items))
	for i, item := range a.Items {
		v, err := item.resolveArg(c, stack, a.Elem)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("list item %d: %w", i, err)
		}
		out = reflect.Append(out, v)
	}
	return out, nil
}

func (a ListArg) refs() []string {
	var names []string
	for _, item := range a.Items {
		names = append(names, item.refs()...)
	}
	return names
}

// concreteType returns the dynamic type held by v.
func concreteType(v reflect.Value) reflect.Type {
	if v.Kind() == reflect.Interface && !v.IsNil() {
		return v.Elem().Type()
	}
	return v.Type()
}

// assignable returns v, or the value it wraps, in a form assignable to want.
func assignable(v reflect.Value, want reflect.Type) (reflect.Value, bool) {
	if v.Type().AssignableTo(want) {
		return v, true
	}
	if v.Kind() == reflect.Interface && !v.IsNil() && v.Elem().Type().AssignableTo(want) {
		return v.Elem(), true
	}
	return reflect.Value{}, false
}
