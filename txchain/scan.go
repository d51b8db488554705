package txchain

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/ARTM2000/oak/v2"
	"github.com/ARTM2000/oak/v2/config"
	"github.com/ARTM2000/oak/v2/txn"
)

const (
	// PrimaryName is the conventional name of the transaction manager
	// applications depend on.
	PrimaryName = "transactionManager"

	// PrimaryAlias is where the original primary manager lives once a
	// chained manager has taken over PrimaryName.
	PrimaryAlias = "$primaryTransactionManager"

	transactionalKey = "transactional"
	dataSourceKey    = "dataSource"
	dataSourcePrefix = "dataSource_"
)

var (
	// managerNamePattern matches transactionManager anywhere, in any case;
	// suffixPattern is anchored and case-sensitive.
	managerNamePattern = regexp.MustCompile(`(?i)transactionManager`)
	suffixPattern      = regexp.MustCompile(`^transactionManager_(.+)$`)

	managerType     = reflect.TypeOf((*txn.Manager)(nil)).Elem()
	distributedType = reflect.TypeOf((*txn.DistributedManager)(nil)).Elem()
	chainedType     = reflect.TypeOf((*txn.ChainedManager)(nil))
)

// DataSources maps each data-source suffix to its configuration. The
// "dataSource" entry maps to the empty suffix and "dataSource_X" to "X";
// other keys, and entries that are not subtrees, are ignored.
func DataSources(tree config.Tree) map[string]config.Tree {
	sources := make(map[string]config.Tree)
	if tree == nil {
		return sources
	}

	if sub, ok := tree.Sub(dataSourceKey); ok {
		sources[""] = sub
	}
	for key := range tree {
		if suffix, ok := strings.CutPrefix(key, dataSourcePrefix); ok {
			if sub, ok := tree.Sub(key); ok {
				sources[suffix] = sub
			}
		}
	}
	return sources
}

// ResolveSuffix returns the data-source suffix encoded in a transaction
// manager name: "" for PrimaryName, X for "transactionManager_X". ok is false
// for names that follow neither form.
func ResolveSuffix(name string) (suffix string, ok bool) {
	if name == PrimaryName {
		return "", true
	}
	if m := suffixPattern.FindStringSubmatch(name); m != nil {
		return m[1], true
	}
	return "", false
}

// IsNonTransactional reports whether the data source for suffix was
// explicitly configured with transactional set to boolean false. Every other
// case, including an unresolved suffix, counts as transactional.
func IsNonTransactional(sources map[string]config.Tree, suffix string, resolved bool) bool {
	if !resolved {
		return false
	}
	ds, ok := sources[suffix]
	if !ok || !ds.Has(transactionalKey) {
		return false
	}
	transactional, isBool := ds.Bool(transactionalKey)
	return isBool && !transactional
}

// CountEligibleManagers counts definitions whose name mentions
// transactionManager, skipping those whose data source is non-transactional.
// PrimaryName is always counted.
func CountEligibleManagers(r oak.Registry, sources map[string]config.Tree) int {
	count := 0
	for _, name := range r.Names() {
		if !managerNamePattern.MatchString(name) {
			continue
		}
		suffix, resolved := ResolveSuffix(name)
		if name == PrimaryName || !IsNonTransactional(sources, suffix, resolved) {
			count++
		}
	}
	return count
}

// HasDistributedManager reports whether the definition under PrimaryName
// produces a [txn.DistributedManager]. A missing definition or an
// unresolvable type is returned as an error.
func HasDistributedManager(r oak.Registry) (bool, error) {
	t, err := r.ResolveType(PrimaryName)
	if err != nil {
		return false, fmt.Errorf("resolving %s type: %w", PrimaryName, err)
	}
	return t.Implements(distributedType), nil
}
