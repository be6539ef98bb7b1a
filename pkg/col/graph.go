package col

import (
	"fmt"
	"sort"

	"github.com/openfroyo/extconf/pkg/engine"
)

// EmbeddingUnits returns one graph unit per region whose extends chain
// resolves. A unit depends on the profile it extends and on every region
// of the tree that one of its output ports embeds. Embeddings of regions
// outside the tree are left out.
func (t *Tree) EmbeddingUnits() []engine.Unit {
	type resolved struct {
		raw    *Region
		merged *Region
	}

	var regions []resolved
	included := make(map[string]bool)
	for _, region := range t.order {
		merged, err := t.resolveChain(region)
		if err != nil {
			continue
		}
		regions = append(regions, resolved{raw: region, merged: merged})
		included[region.String()] = true
	}

	units := make([]engine.Unit, 0, len(regions))
	for _, r := range regions {
		unit := engine.Unit{
			ID:    r.raw.String(),
			Label: fmt.Sprintf("%s (%s)", r.raw.Package, r.raw.Profile),
			Pos:   r.raw.Pos,
		}

		if r.raw.Extends != "" {
			unit.Dependencies = append(unit.Dependencies, engine.Dependency{
				TargetID: r.raw.Package + "/" + r.raw.Extends,
				Kind:     engine.DependencyExtends,
				Pos:      r.raw.Pos,
			})
		}

		names := make([]string, 0, len(r.merged.OutputPorts))
		for name := range r.merged.OutputPorts {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			embed, ok := r.merged.OutputPorts[name].(*EmbeddingPort)
			if !ok {
				continue
			}
			target := embed.Module + "/" + embed.Profile
			if !included[target] {
				continue
			}
			unit.Dependencies = append(unit.Dependencies, engine.Dependency{
				TargetID: target,
				Kind:     engine.DependencyEmbeds,
				Pos:      embed.Pos,
			})
		}
		units = append(units, unit)
	}
	return units
}

// EmbeddingGraph orders the regions of the tree so that every region
// comes after the profile it extends and the regions it embeds. A cycle
// of embeddings is a policy error.
func (t *Tree) EmbeddingGraph() (*engine.Graph, error) {
	return engine.NewDAGBuilder().BuildGraph(t.EmbeddingUnits())
}
