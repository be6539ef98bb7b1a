// Package col implements the configuration description language used to
// supply values for the external ports, interfaces, and parameters of a
// service.
//
// # Overview
//
// A configuration file contains regions. Each region configures one package
// under a named profile:
//
//	include "common.col"
//
//	profile "prod" configures "orders" extends "base" {
//	    outputPort Billing {
//	        Location: "socket://billing.internal:9000"
//	        Protocol: sodep
//	    },
//	    outputPort Audit embeds "audit-prod" with "audit",
//	    inputPort Public { Protocol: http { .format = "json" } },
//	    interface Store = StoreV2 from "storage",
//	    timeout = 30,
//	    endpoints[0] = "a" { .weight = 2 }
//	}
//
// When the profile is omitted it defaults to the package name.
//
// # Components
//
// Scanner: tokenizes source text. Every token carries its file and line.
//
// Parser: builds a Tree. Includes are resolved relative to the including
// file and guarded against repetition. When a package table is supplied,
// unknown packages are rejected and the conf directory of every package
// used by the file is parsed into the same tree.
//
// Tree: package -> profile -> Region. A (package, profile) pair may only be
// defined once.
//
// Merge: combines a region with its parent. The child always wins, an
// embedding port is never merged field by field, and parameters accumulate
// parent first.
//
// Resolve: folds an extends chain and rejects inheritance cycles by name.
//
// # Error Handling
//
// All errors are *engine.EngineError values. Parsing stops at the first
// syntax error.
package col
