package engine

import (
	"fmt"
	"path/filepath"
)

// Position identifies a line in a source file.
type Position struct {
	// File is the source identity, usually an absolute path.
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	// Line is the 1-based line number.
	Line int `json:"line,omitempty" yaml:"line,omitempty"`
}

// IsValid reports whether the position refers to a source file.
func (p Position) IsValid() bool {
	return p.File != "" || p.Line > 0
}

// String renders the position as file:line.
func (p Position) String() string {
	if p.File == "" {
		return fmt.Sprintf("<unknown>:%d", p.Line)
	}
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}

// DefaultEntryPoint is the program document loaded for a package
// that does not name one.
const DefaultEntryPoint = "main.yaml"

// PackageInfo describes a package known to the runtime.
type PackageInfo struct {
	// Name is the package name used in configuration files.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Root is the package root directory.
	Root string `json:"root" yaml:"root" validate:"required"`

	// EntryPoint is the program document relative to Root.
	EntryPoint string `json:"entryPoint,omitempty" yaml:"entryPoint,omitempty"`
}

// EntryFile returns the path of the package entry document.
func (p PackageInfo) EntryFile() string {
	entry := p.EntryPoint
	if entry == "" {
		entry = DefaultEntryPoint
	}
	if filepath.IsAbs(entry) {
		return entry
	}
	return filepath.Join(p.Root, entry)
}

// PackageTable maps package names to their descriptors.
type PackageTable map[string]PackageInfo

// Names returns the package names in the table.
func (t PackageTable) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	return names
}
