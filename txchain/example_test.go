package txchain_test

import (
	"context"
	"fmt"

	"github.com/ARTM2000/oak/v2"
	"github.com/ARTM2000/oak/v2/config"
	"github.com/ARTM2000/oak/v2/txchain"
	"github.com/ARTM2000/oak/v2/txn"
)

type namedManager string

func (m namedManager) Begin(context.Context) (txn.Tx, error) { return nil, nil }

func Example() {
	cfg := config.Tree{
		"dataSource_reports": map[string]any{"transactional": false},
	}

	c := oak.New()
	_ = c.RegisterNamed("transactionManager", func() txn.Manager { return namedManager("main") })
	_ = c.RegisterNamed("transactionManager_audit", func() txn.Manager { return namedManager("audit") })
	_ = c.RegisterNamed("transactionManager_reports", func() txn.Manager { return namedManager("reports") })
	_ = c.AddPostProcessor(txchain.New(cfg))
	if err := c.Build(); err != nil {
		panic(err)
	}

	chained, _ := oak.ResolveNamed[*txn.ChainedManager](c, txchain.PrimaryName)
	for _, m := range chained.Managers() {
		fmt.Println(m)
	}
	// Output:
	// main
	// audit
}
