package oak

import "testing"

func BenchmarkBuild(b *testing.B) {
	for i := 0; i < b.N; i++ {
		c := New()
		c.Register(newTestLogger)
		c.Register(newTestConfig)
		c.Register(newTestDatabase)
		c.Register(newTestUserRepo)
		c.Register(newTestUserService)
		c.Build()
	}
}

func BenchmarkBuild_NamedWithRefs(b *testing.B) {
	for i := 0; i < b.N; i++ {
		c := New()
		c.Register(newTestLogger)
		c.RegisterNamed("pool", func() *testPool { return &testPool{DSN: "bench"} })
		c.RegisterNamed("base", newTestPoolUser, AsAbstract(), WithArgs(Ref("pool")))
		c.RegisterDefinition("u1", &Definition{Parent: "base"})
		c.RegisterDefinition("u2", &Definition{Parent: "base"})
		c.Build()
	}
}

func BenchmarkResolve_Singleton(b *testing.B) {
	c := New()
	c.Register(newTestLogger)
	c.Register(newTestConfig)
	c.Register(newTestDatabase)
	c.Build()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Resolve[*testDatabase](c)
	}
}

func BenchmarkResolveNamed_Transient(b *testing.B) {
	c := New()
	c.Register(newTestLogger)
	c.RegisterNamed("pool", func() *testPool { return &testPool{DSN: "bench"} })
	c.RegisterNamed("user", newTestPoolUser, WithArgs(Ref("pool")), WithLifetime(Transient))
	c.Build()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ResolveNamed[*testPoolUser](c, "user")
	}
}
