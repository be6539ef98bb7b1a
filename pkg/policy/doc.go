// Package policy vets merged configuration regions with Open Policy Agent.
//
// Every policy is a Rego module. Its input is the region as produced by
// col.Region.Data, together with an evaluation context:
//
//	{
//	  "region":  {"package": "svc", "profile": "prod", "outputPorts": {...}, ...},
//	  "context": {"operation": "resolve", "timestamp": "...", "config_file": "/abs/conf.col"}
//	}
//
// Two rule sets are read from the module's package. Elements of deny carry
// the policy severity unless they set their own; error and critical
// elements deny the region. Elements of warn are only reported.
//
//	package custom.ports
//
//	import rego.v1
//
//	deny contains msg if {
//	    some name, port in input.region.outputPorts
//	    startswith(port.location, "socket://0.0.0.0")
//	    msg := sprintf("output port %s points at a wildcard address", [name])
//	}
//
// # Usage
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"/etc/extconf/policies"}); err != nil {
//	    return err
//	}
//	err = eng.CheckRegion(ctx, region)
//
// The engine satisfies resolver.RegionPolicy, so it can be handed to a
// resolver directly.
//
// # Built-in Policies
//
//   - self-embedding denies an output port embedding its own package
//   - location-scheme warns about locations without a medium
//   - shared-listener warns when two input ports share a location
//
// # Hot Reload
//
// Engine.Watch reloads the custom policies 500ms after the last change
// under the loaded paths. A reload that fails to compile keeps the
// previous policies.
package policy
