package col

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/openfroyo/extconf/pkg/engine"
)

// Resolve returns the region (pkg, profile) with its extends chain folded in.
// Parents are resolved before children. A cycle in the chain is reported
// with the full cycle path.
func (t *Tree) Resolve(pkg, profile string) (*Region, error) {
	if !t.HasPackage(pkg) {
		return nil, engine.NewLookupError(
			fmt.Sprintf("could not find profile configuring %s", pkg), nil,
		).WithCode(engine.ErrCodeUnknownPackage).WithDetail("package", pkg)
	}
	region, ok := t.Region(pkg, profile)
	if !ok {
		return nil, engine.NewLookupError(fmt.Sprintf(
			"could not find profile '%s' of package '%s'.%s",
			profile, pkg, DidYouMean(profile, t.Profiles(pkg)),
		), nil).WithCode(engine.ErrCodeUnknownProfile).WithDetail("profile", profile)
	}
	return t.resolveChain(region)
}

// ResolveRegion folds the extends chain of a region that belongs to t.
func (t *Tree) ResolveRegion(region *Region) (*Region, error) {
	return t.resolveChain(region)
}

func (t *Tree) resolveChain(region *Region) (*Region, error) {
	// Collect the chain child-first, stopping at the first repeated profile.
	chain := []*Region{region}
	seen := map[string]int{region.Profile: 0}
	for cur := region; cur.Extends != ""; {
		parent, ok := t.Region(cur.Package, cur.Extends)
		if !ok {
			return nil, engine.NewLookupError(fmt.Sprintf(
				"region '%s' (%s) is attempting to extend '%s' but no such profile exists.%s",
				cur.Profile, cur.Pos, cur.Extends, DidYouMean(cur.Extends, t.Profiles(cur.Package)),
			), nil).WithSource(cur.Pos).WithCode(engine.ErrCodeUnknownParent)
		}
		if start, loop := seen[parent.Profile]; loop {
			names := make([]string, 0, len(chain)-start+1)
			for _, r := range chain[start:] {
				names = append(names, r.Profile)
			}
			names = append(names, parent.Profile)
			return nil, inheritanceCycleError(cur.Package, names, cur.Pos)
		}
		seen[parent.Profile] = len(chain)
		chain = append(chain, parent)
		cur = parent
	}

	root := chain[len(chain)-1]
	merged, err := Merge(root, NewRegion(root.Package, root.Profile))
	if err != nil {
		return nil, err
	}
	for i := len(chain) - 2; i >= 0; i-- {
		merged, err = Merge(chain[i], merged)
		if err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// CheckInheritance reports every dangling extends target and every
// inheritance cycle in the tree.
func (t *Tree) CheckInheritance() error {
	var result *multierror.Error
	for _, pkg := range t.Packages() {
		visited := make(map[string]bool)
		recStack := make(map[string]bool)

		for _, profile := range t.Profiles(pkg) {
			if visited[profile] {
				continue
			}
			if cycle := t.detectCyclesUtil(pkg, profile, visited, recStack, nil); cycle != nil {
				region, _ := t.Region(pkg, cycle[0])
				result = multierror.Append(result, inheritanceCycleError(pkg, cycle, region.Pos))
			}
		}

		for _, profile := range t.Profiles(pkg) {
			region, _ := t.Region(pkg, profile)
			if region.Extends == "" {
				continue
			}
			if _, ok := t.Region(pkg, region.Extends); !ok {
				result = multierror.Append(result, engine.NewLookupError(fmt.Sprintf(
					"region '%s' (%s) is attempting to extend '%s' but no such profile exists.",
					region.Profile, region.Pos, region.Extends,
				), nil).WithSource(region.Pos).WithCode(engine.ErrCodeUnknownParent))
			}
		}
	}
	return result.ErrorOrNil()
}

// detectCyclesUtil performs DFS along extends edges of one package.
func (t *Tree) detectCyclesUtil(
	pkg, profile string,
	visited map[string]bool,
	recStack map[string]bool,
	path []string,
) []string {
	visited[profile] = true
	recStack[profile] = true
	path = append(path, profile)

	region, _ := t.Region(pkg, profile)
	if parent := region.Extends; parent != "" {
		if _, ok := t.Region(pkg, parent); ok {
			if !visited[parent] {
				if cycle := t.detectCyclesUtil(pkg, parent, visited, recStack, path); cycle != nil {
					return cycle
				}
			} else if recStack[parent] {
				for i, id := range path {
					if id == parent {
						return append(append([]string(nil), path[i:]...), parent)
					}
				}
			}
		}
	}

	recStack[profile] = false
	return nil
}

func inheritanceCycleError(pkg string, cycle []string, pos engine.Position) error {
	return engine.NewLookupError(fmt.Sprintf(
		"inheritance cycle detected in package '%s': %s", pkg, formatCycle(cycle),
	), nil).
		WithSource(pos).
		WithCode(engine.ErrCodeInheritanceCycle).
		WithDetail("cycle", cycle)
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}
