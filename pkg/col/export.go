package col

import (
	"encoding/json"

	"github.com/openfroyo/extconf/pkg/value"
)

// Data renders the region as plain data. The result feeds JSON output,
// schema validation, policy input, and journal snapshots.
//
//	{
//	  "profile": "prod", "package": "svc", "extends": "base",
//	  "inputPorts":  {"IP": {"location": "socket://:8000"}},
//	  "outputPorts": {"OP": {"embeds": {"module": "m", "profile": "p"}}},
//	  "interfaces":  {"Local": {"real": "Real", "package": "lib"}},
//	  "params":      [{"path": "timeout", "value": 30}],
//	  "source":      "/abs/conf.col:3"
//	}
func (r *Region) Data() map[string]any {
	out := map[string]any{
		"profile":     r.Profile,
		"package":     r.Package,
		"inputPorts":  portsData(r.InputPorts),
		"outputPorts": portsData(r.OutputPorts),
		"interfaces":  interfacesData(r.Interfaces),
		"params":      paramsData(r.Params),
	}
	if r.Extends != "" {
		out["extends"] = r.Extends
	}
	if r.Pos.IsValid() {
		out["source"] = r.Pos.String()
	}
	return out
}

// MarshalJSON encodes the region using Data.
func (r *Region) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Data())
}

func portsData(ports map[string]Port) map[string]any {
	out := make(map[string]any, len(ports))
	for name, port := range ports {
		switch p := port.(type) {
		case *EmbeddingPort:
			out[name] = map[string]any{
				"embeds": map[string]any{"module": p.Module, "profile": p.Profile},
			}
		case *ConcretePort:
			entry := map[string]any{}
			if p.Location != nil {
				entry["location"] = *p.Location
			}
			if p.Protocol != nil {
				proto := map[string]any{}
				if p.Protocol.Type != nil {
					proto["type"] = *p.Protocol.Type
				}
				if p.Protocol.Properties != nil {
					proto["properties"] = value.Evaluate(p.Protocol.Properties).Data()
				}
				entry["protocol"] = proto
			}
			out[name] = entry
		}
	}
	return out
}

func interfacesData(ifaces map[string]*Interface) map[string]any {
	out := make(map[string]any, len(ifaces))
	for name, iface := range ifaces {
		out[name] = map[string]any{"real": iface.Real, "package": iface.Package}
	}
	return out
}

func paramsData(params []*Param) []any {
	out := make([]any, 0, len(params))
	for _, p := range params {
		out = append(out, map[string]any{
			"path":  p.Path.String(),
			"value": value.Evaluate(p.Value).Data(),
		})
	}
	return out
}

// Summary describes a tree for listing.
type Summary struct {
	Packages map[string][]string `json:"packages"`
	Sources  []Source            `json:"sources"`
}

// Summary returns the packages and profiles of the tree.
func (t *Tree) Summary() Summary {
	s := Summary{Packages: make(map[string][]string), Sources: t.Sources}
	for _, pkg := range t.Packages() {
		s.Packages[pkg] = t.Profiles(pkg)
	}
	return s
}
