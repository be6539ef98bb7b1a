package engine_test

import (
	"context"
	"fmt"

	"github.com/openfroyo/extconf/pkg/engine"
)

func Example_embeddingOrder() {
	units := []engine.Unit{
		{ID: "gateway/prod", Dependencies: []engine.Dependency{
			{TargetID: "billing/prod", Kind: engine.DependencyEmbeds},
			{TargetID: "users/prod", Kind: engine.DependencyEmbeds},
		}},
		{ID: "billing/prod", Dependencies: []engine.Dependency{
			{TargetID: "ledger/prod", Kind: engine.DependencyEmbeds},
		}},
		{ID: "users/prod"},
		{ID: "ledger/prod"},
	}

	graph, err := engine.NewDAGBuilder().BuildGraph(units)
	if err != nil {
		fmt.Println(err)
		return
	}

	results, err := engine.NewParallelScheduler(1).Run(context.Background(), graph,
		func(_ context.Context, node *engine.GraphNode) error {
			if node.ID == "ledger/prod" {
				return fmt.Errorf("ledger is down")
			}
			return nil
		},
		engine.ScheduleOptions{},
	)
	if err != nil {
		fmt.Println(err)
		return
	}

	for _, r := range results {
		if r.BlockedBy != "" {
			fmt.Println(r.ID, r.Status, "by", r.BlockedBy)
			continue
		}
		fmt.Println(r.ID, r.Status)
	}
	// Output:
	// ledger/prod failed
	// users/prod succeeded
	// billing/prod skipped by ledger/prod
	// gateway/prod skipped by billing/prod
}

func Example_errorHandling() {
	err := engine.NewLookupError("could not find profile 'prd' of package 'svc'", nil).
		WithSource(engine.Position{File: "deploy/prod.col", Line: 3}).
		WithCode(engine.ErrCodeUnknownProfile).
		WithDetail("profile", "prd")

	fmt.Println(engine.IsLookup(err), engine.CodeOf(err))
	fmt.Println(err)
	// Output:
	// true UNKNOWN_PROFILE
	// deploy/prod.col:3: [lookup] could not find profile 'prd' of package 'svc'
}
