// Package oak provides a lightweight, reflection-based dependency injection
// container for Go.
//
// Oak uses constructor functions to wire dependencies automatically. Register
// constructors with the container, call [Container.Build] to validate the
// dependency graph, then retrieve fully-assembled objects with [Resolve] or
// [ResolveNamed].
//
// # Quick Start
//
//	c := oak.New()
//	c.Register(NewLogger)
//	c.Register(NewDatabase)
//	c.Build()
//
//	db, err := oak.Resolve[*Database](c)
//
// # Lifetimes
//
// [Singleton] (default): one shared instance for the lifetime of the
// container.
//
// [Transient]: a fresh instance on every [Container.Resolve] call.
//
//	c.Register(NewLogger, oak.WithLifetime(oak.Transient))
//
// # Named Definitions
//
// When you need several implementations of the same return type, use named
// registration. Named definitions keep their registration order, may inherit
// from a parent definition, and may pass explicit arguments, including
// deferred references to other definitions:
//
//	c.RegisterNamed("mysql", NewMySQLDB)
//	c.RegisterNamed("reporting", NewReportStore, oak.WithArgs(oak.Ref("mysql")))
//
//	db, _ := oak.ResolveNamed[Database](c, "mysql")
//
// # Post-Processors
//
// A [RegistryPostProcessor] may rename, add or remove definitions before
// anything is constructed. A [FactoryPostProcessor] runs once every singleton
// exists and may adjust live instances. Both are added with
// [Container.AddPostProcessor] and run in [Ordered] order.
package oak
