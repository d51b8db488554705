package oak

import "errors"

var (
	// ErrNotBuilt is returned when Resolve is called before Build.
	ErrNotBuilt = errors.New("container not built")

	// ErrAlreadyBuilt is returned when Register or Build is called after the
	// container has already been built.
	ErrAlreadyBuilt = errors.New("container already built")

	// ErrBuildFailed is returned by Build once an earlier Build has failed.
	// The error wraps the original failure.
	ErrBuildFailed = errors.New("container build failed")

	// ErrAlreadyShutdown is returned by every Shutdown call after the first.
	ErrAlreadyShutdown = errors.New("container already shut down")

	// ErrProviderNotFound is returned when no provider or definition is
	// registered for the requested type or name.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrCircularDependency is returned when the dependency graph contains a
	// cycle. The error message includes the full chain.
	ErrCircularDependency = errors.New("circular dependency detected")

	// ErrDuplicateProvider is returned when a provider for the same type or
	// name is registered more than once.
	ErrDuplicateProvider = errors.New("duplicate provider")

	// ErrTypeNotFound is returned when a definition names a type that was
	// never registered with [Container.RegisterType].
	ErrTypeNotFound = errors.New("type not found")

	// ErrDefinitionInUse is returned when removing a definition that another
	// definition still names as its parent.
	ErrDefinitionInUse = errors.New("definition in use")

	// ErrInvalidDefinition is returned for definitions that can never be
	// instantiated, such as one with neither a constructor nor a type name.
	ErrInvalidDefinition = errors.New("invalid definition")
)
