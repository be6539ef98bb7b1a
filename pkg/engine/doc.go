// Package engine provides the types shared by the configuration packages:
// source positions, the package table, classified errors, and dependency
// graphs.
//
// # Package Table
//
// PackageInfo describes a package known to the runtime: its name, its
// root directory, and its entry document. PackageTable maps names to
// descriptors and is passed to the parser and the resolver.
//
// # Error Classification
//
// Every error produced while parsing or applying configuration is an
// *EngineError with one of five classes:
//
//   - Syntax: malformed configuration text
//   - Lookup: a name that does not resolve (package, profile, interface, type)
//   - Policy: a rule of the configuration model is broken
//   - IO: a file could not be read or written
//   - Invariant: a caller passed inconsistent input
//
// Errors carry the source position that caused them, optionally a related
// position, a stable code and free-form details:
//
//	err := NewLookupError("unknown profile", nil).
//	    WithSource(pos).
//	    WithCode(ErrCodeUnknownProfile).
//	    WithDetail("profile", name)
//
//	if IsLookup(err) {
//	    // suggest a close name
//	}
//
// # Dependency Graphs
//
// DAGBuilder turns units with dependencies into a Graph split into levels.
// Every unit sits above its dependencies. Cycles are policy errors naming
// the full cycle. ParallelScheduler walks a graph level by level, runs the
// units of a level concurrently, and skips units whose dependencies did
// not succeed.
package engine
