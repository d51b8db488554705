// Package txchain puts a chained transaction manager in front of every
// per-data-source transaction manager registered in an oak container.
//
// When the registry holds more than one eligible manager, the definition
// named "transactionManager" is renamed to "$primaryTransactionManager" and a
// [txn.ChainedManager] is registered in its place, seeded with a reference to
// the renamed definition. After the container has built its singletons the
// remaining managers are appended to the chain.
//
// Nothing happens when the primary manager is a [txn.DistributedManager].
// A data source can opt out by setting transactional to false:
//
//	dataSource_reporting:
//	  transactional: false
package txchain

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/ARTM2000/oak/v2"
	"github.com/ARTM2000/oak/v2/config"
	"github.com/ARTM2000/oak/v2/txn"
)

// Processor is both an [oak.RegistryPostProcessor] and an
// [oak.FactoryPostProcessor]. Add it with [oak.Container.AddPostProcessor].
type Processor struct {
	config config.Tree
	log    *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger used to report rewiring decisions.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.log = l
		}
	}
}

// New returns a Processor reading data-source settings from cfg, which may be
// nil.
func New(cfg config.Tree, opts ...Option) *Processor {
	p := &Processor{
		config: cfg,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Order runs the processor before every other post-processor.
func (p *Processor) Order() int { return math.MinInt }

// PostProcessRegistry installs the chained manager when more than one
// transactional manager is registered and the primary is not distributed.
func (p *Processor) PostProcessRegistry(r oak.Registry) error {
	sources := DataSources(p.config)

	count := CountEligibleManagers(r, sources)
	if count <= 1 {
		p.log.Debug("single transaction manager, leaving registry unchanged", "count", count)
		return nil
	}

	distributed, err := HasDistributedManager(r)
	if err != nil {
		return err
	}
	if distributed {
		p.log.Info("primary transaction manager is distributed, not chaining", "name", PrimaryName)
		return nil
	}

	if err := renameDefinition(r, PrimaryName, PrimaryAlias); err != nil {
		return err
	}

	err = r.Register(PrimaryName, &oak.Definition{
		Constructor: txn.NewChainedManager,
		Args:        []oak.Arg{oak.List[txn.Manager](oak.Ref(PrimaryAlias))},
	})
	if err != nil {
		return fmt.Errorf("registering chained %s: %w", PrimaryName, err)
	}

	p.log.Info("installed chained transaction manager", "managers", count, "primary", PrimaryAlias)
	return nil
}

// PostProcessFactory appends every other instantiated transactional manager
// to the chained manager installed by PostProcessRegistry. Transient managers
// are left out.
func (p *Processor) PostProcessFactory(f oak.Factory) error {
	chained, err := f.IsTypeMatch(PrimaryName, chainedType)
	if errors.Is(err, oak.ErrProviderNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !chained {
		return nil
	}

	sources := DataSources(p.config)

	var additional []txn.Manager
	for _, name := range f.SingletonNamesForType(managerType) {
		if name == PrimaryName || name == PrimaryAlias {
			continue
		}
		suffix, resolved := ResolveSuffix(name)
		if IsNonTransactional(sources, suffix, resolved) {
			p.log.Debug("skipping non-transactional manager", "name", name, "suffix", suffix)
			continue
		}

		v, err := f.Instance(name)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", name, err)
		}
		mgr, ok := v.Interface().(txn.Manager)
		if !ok {
			return fmt.Errorf("%s: %s is not a txn.Manager", name, v.Type())
		}
		additional = append(additional, mgr)
		p.log.Debug("chaining transaction manager", "name", name, "suffix", suffix)
	}

	v, err := f.Instance(PrimaryName)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", PrimaryName, err)
	}
	v.Interface().(*txn.ChainedManager).Add(additional...)

	p.log.Info("wired chained transaction manager", "additional", len(additional))
	return nil
}

// renameDefinition moves the definition under oldName to newName. Children
// that named oldName as parent are unlinked for the move and then pointed at
// newName. On failure the definition and its children are left under oldName.
func renameDefinition(r oak.Registry, oldName, newName string) error {
	def, err := r.Definition(oldName)
	if err != nil {
		return fmt.Errorf("renaming %s: %w", oldName, err)
	}

	var children []*oak.Definition
	for _, name := range r.Names() {
		if name == oldName {
			continue
		}
		child, err := r.Definition(name)
		if err != nil {
			return err
		}
		if child.Parent == oldName {
			children = append(children, child)
		}
	}

	relink := func(parent string) {
		for _, child := range children {
			child.Parent = parent
		}
	}

	relink("")
	if err := r.Remove(oldName); err != nil {
		relink(oldName)
		return fmt.Errorf("renaming %s: %w", oldName, err)
	}
	if err := r.Register(newName, def); err != nil {
		if rerr := r.Register(oldName, def); rerr != nil {
			return errors.Join(fmt.Errorf("renaming %s to %s: %w", oldName, newName, err), rerr)
		}
		relink(oldName)
		return fmt.Errorf("renaming %s to %s: %w", oldName, newName, err)
	}

	relink(newName)
	return nil
}
