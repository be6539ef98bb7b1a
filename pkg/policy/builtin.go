package policy

import (
	"time"
)

// Names of the built-in policies.
const (
	PolicySelfEmbedding  = "self-embedding"
	PolicyLocationScheme = "location-scheme"
	PolicySharedListener = "shared-listener"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		selfEmbeddingPolicy(),
		locationSchemePolicy(),
		sharedListenerPolicy(),
	}
}

func builtin(name, description string, severity Severity, tags []string, src string) Policy {
	now := time.Now()
	return Policy{
		Name:        name,
		Description: description,
		Severity:    severity,
		Enabled:     true,
		Builtin:     true,
		Tags:        tags,
		CreatedAt:   now,
		UpdatedAt:   now,
		Rego:        src,
	}
}

// selfEmbeddingPolicy rejects an output port embedding the package it
// configures, which would start the service inside itself.
func selfEmbeddingPolicy() Policy {
	return builtin(PolicySelfEmbedding,
		"Rejects output ports that embed the package being configured",
		SeverityError, []string{"embedding"}, `package extconf.policies.embedding

import rego.v1

deny contains violation if {
	some name, port in input.region.outputPorts
	port.embeds.module == input.region["package"]
	violation := {
		"message": sprintf("output port '%s' embeds its own package '%s'", [name, input.region["package"]]),
		"severity": "error",
		"port": name,
	}
}
`)
}

// locationSchemePolicy warns about locations without a medium, such as
// "localhost:8000" instead of "socket://localhost:8000".
func locationSchemePolicy() Policy {
	return builtin(PolicyLocationScheme,
		"Warns about port locations without a medium scheme",
		SeverityWarning, []string{"ports", "location"}, `package extconf.policies.location

import rego.v1

warn contains violation if {
	some direction in ["inputPorts", "outputPorts"]
	some name, port in input.region[direction]
	location := port.location
	location != "local"
	indexof(location, "://") == -1
	violation := {
		"message": sprintf("location '%s' of port '%s' has no medium scheme", [location, name]),
		"port": name,
	}
}
`)
}

// sharedListenerPolicy warns when two input ports listen on the same
// location.
func sharedListenerPolicy() Policy {
	return builtin(PolicySharedListener,
		"Warns when input ports share a location",
		SeverityWarning, []string{"ports", "location"}, `package extconf.policies.listeners

import rego.v1

warn contains violation if {
	some a, pa in input.region.inputPorts
	some b, pb in input.region.inputPorts
	a < b
	pa.location == pb.location
	violation := {
		"message": sprintf("input ports '%s' and '%s' both listen on '%s'", [a, b, pa.location]),
		"ports": [a, b],
	}
}
`)
}
