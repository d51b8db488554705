package txchain_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ARTM2000/oak/v2"
	"github.com/ARTM2000/oak/v2/config"
	"github.com/ARTM2000/oak/v2/txchain"
	"github.com/ARTM2000/oak/v2/txn"
)

type stubManager struct{ name string }

func (m *stubManager) Begin(context.Context) (txn.Tx, error) {
	return nil, errors.New("stub " + m.name)
}

func newStub(name string) func() *stubManager {
	return func() *stubManager { return &stubManager{name: name} }
}

type distributedManager struct{ stubManager }

func (*distributedManager) Distributed() {}

func newDistributed() *distributedManager {
	return &distributedManager{stubManager{name: "jta"}}
}

type registryFunc func(oak.Registry) error

func (f registryFunc) PostProcessRegistry(r oak.Registry) error { return f(r) }

// entry is the comparable part of a definition.
type entry struct {
	ctor     uintptr
	typeName string
	parent   string
	args     int
	abstract bool
}

func snapshot(r oak.Registry) map[string]entry {
	out := make(map[string]entry)
	for _, name := range r.Names() {
		d, _ := r.Definition(name)
		var ctor uintptr
		if d.Constructor != nil {
			ctor = reflect.ValueOf(d.Constructor).Pointer()
		}
		out[name] = entry{ctor, d.TypeName, d.Parent, len(d.Args), d.Abstract}
	}
	return out
}

type harness struct {
	c      oak.Container
	before []string
	after  []string
	defsB  map[string]entry
	defsA  map[string]entry
	reg    map[string]*oak.Definition
}

// newHarness registers the processor between two registry hooks that record
// the registry before and after it runs.
func newHarness(t *testing.T, cfg config.Tree, opts ...txchain.Option) *harness {
	t.Helper()
	h := &harness{c: oak.New(), reg: make(map[string]*oak.Definition)}

	require.NoError(t, h.c.AddPostProcessor(orderedRegistryFunc{math.MinInt, func(r oak.Registry) error {
		h.before = r.Names()
		h.defsB = snapshot(r)
		return nil
	}}))
	require.NoError(t, h.c.AddPostProcessor(txchain.New(cfg, opts...)))
	require.NoError(t, h.c.AddPostProcessor(registryFunc(func(r oak.Registry) error {
		h.after = r.Names()
		h.defsA = snapshot(r)
		for _, name := range h.after {
			h.reg[name], _ = r.Definition(name)
		}
		return nil
	})))
	return h
}

type orderedRegistryFunc struct {
	order int
	fn    func(oak.Registry) error
}

func (o orderedRegistryFunc) PostProcessRegistry(r oak.Registry) error { return o.fn(r) }
func (o orderedRegistryFunc) Order() int                               { return o.order }

func (h *harness) register(t *testing.T, names ...string) map[string]*stubManager {
	t.Helper()
	stubs := make(map[string]*stubManager, len(names))
	for _, n := range names {
		s := &stubManager{name: n}
		stubs[n] = s
		require.NoError(t, h.c.RegisterNamed(n, func() *stubManager { return s }))
	}
	return stubs
}

func chainedMembers(t *testing.T, c oak.Container) []txn.Manager {
	t.Helper()
	chained, err := oak.ResolveNamed[*txn.ChainedManager](c, txchain.PrimaryName)
	require.NoError(t, err)
	return chained.Managers()
}

func TestProcessor_SingleManagerLeavesRegistryUnchanged(t *testing.T) {
	for _, names := range [][]string{
		nil,
		{txchain.PrimaryName},
		{txchain.PrimaryName, "dataSource"},
	} {
		h := newHarness(t, nil)
		stubs := h.register(t, names...)
		require.NoError(t, h.c.Build())

		assert.Equal(t, h.before, h.after)
		assert.Equal(t, h.defsB, h.defsA)

		if len(stubs) > 0 {
			mgr, err := oak.ResolveNamed[txn.Manager](h.c, txchain.PrimaryName)
			require.NoError(t, err)
			assert.Same(t, stubs[txchain.PrimaryName], mgr)
		}
	}
}

func TestProcessor_ChainsEveryManager(t *testing.T) {
	h := newHarness(t, nil)
	stubs := h.register(t, txchain.PrimaryName, "transactionManager_a", "transactionManager_b")
	require.NoError(t, h.c.Build())

	members := chainedMembers(t, h.c)
	require.Len(t, members, 3)
	assert.Same(t, stubs[txchain.PrimaryName], members[0])
	assert.Same(t, stubs["transactionManager_a"], members[1])
	assert.Same(t, stubs["transactionManager_b"], members[2])

	original, err := oak.ResolveNamed[*stubManager](h.c, txchain.PrimaryAlias)
	require.NoError(t, err)
	assert.Same(t, stubs[txchain.PrimaryName], original)

	assert.Equal(t, []string{
		"transactionManager_a", "transactionManager_b",
		txchain.PrimaryAlias, txchain.PrimaryName,
	}, h.after)
}

func TestProcessor_CompositeDefinition(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, txchain.PrimaryName, "transactionManager_a")
	require.NoError(t, h.c.Build())

	def := h.reg[txchain.PrimaryName]
	require.NotNil(t, def)
	assert.Equal(t, reflect.ValueOf(txn.NewChainedManager).Pointer(), reflect.ValueOf(def.Constructor).Pointer())
	require.Len(t, def.Args, 1)

	list, ok := def.Args[0].(oak.ListArg)
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf((*txn.Manager)(nil)).Elem(), list.Elem)
	assert.Equal(t, []oak.Arg{oak.Ref(txchain.PrimaryAlias)}, list.Items)

	assert.Equal(t, h.defsB[txchain.PrimaryName], h.defsA[txchain.PrimaryAlias], "renamed definition keeps its body")
}

func TestProcessor_NonTransactionalDataSource(t *testing.T) {
	cfg := config.Tree{
		"dataSource_b": map[string]any{"transactional": false},
	}

	t.Run("excluded from the chain", func(t *testing.T) {
		h := newHarness(t, cfg)
		stubs := h.register(t, txchain.PrimaryName, "transactionManager_a", "transactionManager_b")
		require.NoError(t, h.c.Build())

		members := chainedMembers(t, h.c)
		require.Len(t, members, 2)
		assert.Same(t, stubs[txchain.PrimaryName], members[0])
		assert.Same(t, stubs["transactionManager_a"], members[1])
	})

	t.Run("excluded from the count", func(t *testing.T) {
		h := newHarness(t, cfg)
		h.register(t, txchain.PrimaryName, "transactionManager_b")
		require.NoError(t, h.c.Build())

		assert.Equal(t, h.before, h.after)
		_, err := oak.ResolveNamed[*txn.ChainedManager](h.c, txchain.PrimaryName)
		assert.Error(t, err)
	})

	t.Run("non-boolean flag keeps data source transactional", func(t *testing.T) {
		h := newHarness(t, config.Tree{"dataSource_b": map[string]any{"transactional": "false"}})
		h.register(t, txchain.PrimaryName, "transactionManager_b")
		require.NoError(t, h.c.Build())

		assert.Len(t, chainedMembers(t, h.c), 2)
	})
}

func TestProcessor_DistributedPrimary(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.c.RegisterNamed(txchain.PrimaryName, newDistributed))
	h.register(t, "transactionManager_a", "transactionManager_b")
	require.NoError(t, h.c.Build())

	assert.Equal(t, h.before, h.after)
	assert.Equal(t, h.defsB, h.defsA)

	mgr, err := oak.ResolveNamed[txn.Manager](h.c, txchain.PrimaryName)
	require.NoError(t, err)
	assert.IsType(t, &distributedManager{}, mgr)
}

func TestProcessor_RelinksChildDefinitions(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, txchain.PrimaryName, "transactionManager_a")
	require.NoError(t, h.c.RegisterDefinition("readOnlyManager", &oak.Definition{
		Parent:   txchain.PrimaryName,
		Lifetime: oak.Transient,
	}))
	require.NoError(t, h.c.Build())

	before, after := h.defsB["readOnlyManager"], h.defsA["readOnlyManager"]
	assert.Equal(t, txchain.PrimaryName, before.parent)
	assert.Equal(t, txchain.PrimaryAlias, after.parent)

	after.parent = before.parent
	assert.Equal(t, before, after, "only the parent link changes")
	assert.Equal(t, oak.Transient, h.reg["readOnlyManager"].Lifetime)

	child, err := oak.ResolveNamed[*stubManager](h.c, "readOnlyManager")
	require.NoError(t, err)
	assert.Equal(t, txchain.PrimaryName, child.name, "child still inherits the original constructor")
	assert.Len(t, chainedMembers(t, h.c), 2, "transient child is not chained")
}

func TestProcessor_SkipsTransientManagers(t *testing.T) {
	h := newHarness(t, nil)
	stubs := h.register(t, txchain.PrimaryName, "transactionManager_a")

	built := 0
	require.NoError(t, h.c.RegisterNamed("transactionManager_t", func() *stubManager {
		built++
		return &stubManager{name: "t"}
	}, oak.WithLifetime(oak.Transient)))
	require.NoError(t, h.c.Build())

	members := chainedMembers(t, h.c)
	require.Len(t, members, 2)
	assert.Same(t, stubs[txchain.PrimaryName], members[0])
	assert.Same(t, stubs["transactionManager_a"], members[1])
	assert.Zero(t, built, "transient manager must not be constructed")
}

func TestProcessor_ChainsLooselyNamedManagers(t *testing.T) {
	h := newHarness(t, nil)
	stubs := h.register(t, txchain.PrimaryName, "legacyTransactionManager")
	require.NoError(t, h.c.Build())

	members := chainedMembers(t, h.c)
	require.Len(t, members, 2)
	assert.Same(t, stubs["legacyTransactionManager"], members[1])
}

func TestProcessor_MissingPrimaryIsFatal(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "transactionManager_a", "transactionManager_b")

	err := h.c.Build()
	require.ErrorIs(t, err, oak.ErrProviderNotFound)
}

func TestProcessor_UnresolvableTypeIsFatal(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.c.RegisterDefinition(txchain.PrimaryName, &oak.Definition{TypeName: "org.example.Missing"}))
	h.register(t, "transactionManager_a")

	err := h.c.Build()
	require.ErrorIs(t, err, oak.ErrTypeNotFound)
}

func TestProcessor_NoPrimaryAtRuntime(t *testing.T) {
	c := oak.New()
	require.NoError(t, c.AddPostProcessor(txchain.New(nil)))
	require.NoError(t, c.RegisterNamed("cache", func() *config.Tree { return &config.Tree{} }))
	require.NoError(t, c.Build())
}

func TestProcessor_Logging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := newHarness(t, config.Tree{"dataSource_c": map[string]any{"transactional": false}}, txchain.WithLogger(logger))
	h.register(t, txchain.PrimaryName, "transactionManager_a", "transactionManager_c")
	require.NoError(t, h.c.Build())

	out := buf.String()
	assert.Contains(t, out, "installed chained transaction manager")
	assert.Contains(t, out, "skipping non-transactional manager")
	assert.Contains(t, out, "name=transactionManager_c")
	assert.Contains(t, out, "additional=1")
}

func TestProcessor_Order(t *testing.T) {
	assert.Equal(t, math.MinInt, txchain.New(nil).Order())
}

func TestRenameDefinition_FailureKeepsChildrenLinked(t *testing.T) {
	t.Run("missing definition", func(t *testing.T) {
		c := oak.New()
		require.NoError(t, c.RegisterDefinition("child", &oak.Definition{Parent: "ghost", Abstract: true}))

		var renameErr error
		var parent string
		require.NoError(t, c.AddPostProcessor(registryFunc(func(r oak.Registry) error {
			renameErr = txchain.RenameDefinition(r, "ghost", "spirit")
			child, err := r.Definition("child")
			require.NoError(t, err)
			parent = child.Parent
			return nil
		})))
		_ = c.Build()

		require.ErrorIs(t, renameErr, oak.ErrProviderNotFound)
		assert.Equal(t, "ghost", parent)
	})

	t.Run("target name taken", func(t *testing.T) {
		c := oak.New()
		require.NoError(t, c.RegisterNamed(txchain.PrimaryName, newStub("p")))
		require.NoError(t, c.RegisterNamed("taken", newStub("taken")))
		require.NoError(t, c.RegisterDefinition("child", &oak.Definition{Parent: txchain.PrimaryName}))

		var renameErr error
		var parent string
		var present bool
		require.NoError(t, c.AddPostProcessor(registryFunc(func(r oak.Registry) error {
			renameErr = txchain.RenameDefinition(r, txchain.PrimaryName, "taken")
			child, err := r.Definition("child")
			require.NoError(t, err)
			parent = child.Parent
			present = r.Contains(txchain.PrimaryName)
			return nil
		})))
		require.NoError(t, c.Build())

		require.ErrorIs(t, renameErr, oak.ErrDuplicateProvider)
		assert.True(t, present)
		assert.Equal(t, txchain.PrimaryName, parent)

		child, err := oak.ResolveNamed[*stubManager](c, "child")
		require.NoError(t, err)
		assert.Equal(t, "p", child.name)
	})
}
