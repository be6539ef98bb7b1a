package policy

import (
	"time"
)

// Severity represents the severity level of a violation.
type Severity string

const (
	// SeverityInfo is informational only.
	SeverityInfo Severity = "info"
	// SeverityWarning is reported but does not block resolution.
	SeverityWarning Severity = "warning"
	// SeverityError blocks resolution.
	SeverityError Severity = "error"
	// SeverityCritical blocks resolution.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity denies a region.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy is a Rego module evaluated against merged regions.
//
// A policy defines a deny set, a warn set, or both. Elements are either
// strings or objects with a message and optional severity:
//
//	deny contains {"message": msg, "severity": "error"} if { ... }
//	warn contains msg if { ... }
type Policy struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Rego        string                 `json:"rego"`
	Severity    Severity               `json:"severity"`
	Enabled     bool                   `json:"enabled"`
	Builtin     bool                   `json:"builtin,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Violation is one element of a policy's deny or warn set.
type Violation struct {
	Policy   string                 `json:"policy"`
	Region   string                 `json:"region"`
	Message  string                 `json:"message"`
	Severity Severity               `json:"severity"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// Result is the outcome of evaluating every enabled policy on a region.
type Result struct {
	Region            string        `json:"region"`
	Allowed           bool          `json:"allowed"`
	Violations        []Violation   `json:"violations"`
	Warnings          []Violation   `json:"warnings"`
	EvaluatedPolicies []string      `json:"evaluated_policies"`
	Duration          time.Duration `json:"duration"`
}

// Denials returns the violations that block the region.
func (r *Result) Denials() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity.Blocking() {
			out = append(out, v)
		}
	}
	return out
}

// Input is the document policies see as input.
type Input struct {
	// Region is the merged region in the form of col.Region.Data.
	Region  map[string]interface{} `json:"region"`
	Context *Context               `json:"context"`
}

// Context describes the evaluation.
type Context struct {
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
	// ConfigFile is the absolute configuration file, when known.
	ConfigFile string `json:"config_file,omitempty"`
}
