package config

import (
	"fmt"
	"time"

	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/openfroyo/extconf/pkg/telemetry"
)

// Settings is the content of the extconf settings file.
type Settings struct {
	// Packages is the package table. Configuration regions and interface
	// injections may only name these packages.
	Packages []engine.PackageInfo `yaml:"packages,omitempty" validate:"dive"`

	// IncludePaths are searched for program documents of packages without
	// an entry file under their root.
	IncludePaths []string `yaml:"includePaths,omitempty" validate:"dive,required"`

	Journal   JournalSettings   `yaml:"journal"`
	Policy    PolicySettings    `yaml:"policy"`
	Cache     CacheSettings     `yaml:"cache"`
	Telemetry *telemetry.Config `yaml:"telemetry"`

	// source is the file the settings were read from.
	source string
}

// JournalSettings configures the resolution journal.
type JournalSettings struct {
	// Enabled records every apply.
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file.
	Path string `yaml:"path" validate:"required_if=Enabled true"`
}

// PolicySettings configures region policies.
type PolicySettings struct {
	// Enabled evaluates policies during resolution. Built-in policies
	// always run when enabled.
	Enabled bool `yaml:"enabled"`

	// Paths are .rego or .json files and directories of custom policies.
	Paths []string `yaml:"paths,omitempty" validate:"dive,required"`

	// Watch reloads custom policies when they change.
	Watch bool `yaml:"watch,omitempty"`
}

// CacheSettings configures the parsed-tree cache.
type CacheSettings struct {
	// Debounce delays change notifications while watching.
	Debounce time.Duration `yaml:"debounce,omitempty" validate:"gte=0"`
}

// Source returns the settings file, or "" for defaults.
func (s *Settings) Source() string {
	return s.source
}

// PackageTable returns the packages keyed by name, or nil when no
// package is configured.
func (s *Settings) PackageTable() engine.PackageTable {
	if len(s.Packages) == 0 {
		return nil
	}
	table := make(engine.PackageTable, len(s.Packages))
	for _, pkg := range s.Packages {
		table[pkg.Name] = pkg
	}
	return table
}

// ValidationError is one schema violation with its location.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path of the offending value, such as "journal.path".
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.File != "" && e.Line > 0 {
		msg = fmt.Sprintf("%s:%d: %s", e.File, e.Line, msg)
	}
	return msg
}
