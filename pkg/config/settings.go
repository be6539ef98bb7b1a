package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/openfroyo/extconf/pkg/col"
	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/openfroyo/extconf/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

// DefaultSettingsFile is looked up in the working directory when no
// settings file is named.
const DefaultSettingsFile = "extconf.yaml"

// SettingsEnv names a settings file.
const SettingsEnv = "EXTCONF_SETTINGS"

// Default returns the settings used when no file is found.
func Default() *Settings {
	return &Settings{
		Journal:   JournalSettings{Path: "extconf-journal.db"},
		Policy:    PolicySettings{Enabled: true},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Find returns the settings file to load: path when set, then the
// SettingsEnv variable, then DefaultSettingsFile when it exists. It
// returns "" when defaults apply.
func Find(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv(SettingsEnv); env != "" {
		return env
	}
	if _, err := os.Stat(DefaultSettingsFile); err == nil {
		return DefaultSettingsFile
	}
	return ""
}

// Load reads and validates a settings file. An empty path returns the
// defaults. Relative paths inside the file are taken from the file's
// directory.
func Load(ctx context.Context, path string, registry *SchemaRegistry) (*Settings, error) {
	s := Default()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		code := ""
		if errors.Is(err, fs.ErrNotExist) {
			code = engine.ErrCodeFileNotFound
		}
		return nil, engine.NewIOError(fmt.Sprintf("failed to read settings %s", path), err).WithCode(code)
	}

	if registry != nil {
		var doc map[string]interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, settingsSyntaxError(path, err)
		}
		if doc != nil {
			if err := registry.ValidateAgainstSchema(ctx, SchemaSettings, doc); err != nil {
				if e, ok := err.(*engine.EngineError); ok {
					return nil, e.WithSource(engine.Position{File: path})
				}
				return nil, err
			}
		}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return nil, settingsSyntaxError(path, err)
	}

	s.source = col.CanonicalPath(path)
	s.resolvePaths(filepath.Dir(s.source))

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func settingsSyntaxError(path string, err error) error {
	return engine.NewSyntaxError(fmt.Sprintf("invalid settings file %s", path), err).
		WithSource(engine.Position{File: path})
}

func (s *Settings) resolvePaths(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}

	for i := range s.Packages {
		s.Packages[i].Root = abs(s.Packages[i].Root)
	}
	for i := range s.IncludePaths {
		s.IncludePaths[i] = abs(s.IncludePaths[i])
	}
	for i := range s.Policy.Paths {
		s.Policy.Paths[i] = abs(s.Policy.Paths[i])
	}
	s.Journal.Path = abs(s.Journal.Path)
}

var validate = validator.New()

// Validate checks struct constraints and package name uniqueness.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return engine.NewInvariantError("invalid settings", err).
			WithCode(engine.ErrCodeValidation).
			WithSource(engine.Position{File: s.source})
	}

	seen := make(map[string]bool, len(s.Packages))
	for _, pkg := range s.Packages {
		if seen[pkg.Name] {
			return engine.NewInvariantError(
				fmt.Sprintf("package '%s' is listed more than once", pkg.Name), nil,
			).WithCode(engine.ErrCodeValidation).WithSource(engine.Position{File: s.source})
		}
		seen[pkg.Name] = true
	}

	if s.Telemetry != nil {
		if err := s.Telemetry.Validate(); err != nil {
			return engine.NewInvariantError("invalid telemetry settings", err).
				WithCode(engine.ErrCodeValidation)
		}
	}
	return nil
}

// AddPackage adds pkg, replacing a package of the same name.
func (s *Settings) AddPackage(pkg engine.PackageInfo) {
	for i := range s.Packages {
		if s.Packages[i].Name == pkg.Name {
			s.Packages[i] = pkg
			return
		}
	}
	s.Packages = append(s.Packages, pkg)
}

// ParsePackage parses a package given on the command line as
// name=root or name=root:entry.
func ParsePackage(spec string) (engine.PackageInfo, error) {
	name, rest, ok := strings.Cut(spec, "=")
	if !ok || name == "" || rest == "" {
		return engine.PackageInfo{}, engine.NewSyntaxError(
			fmt.Sprintf("invalid package '%s': expected name=root[:entry]", spec), nil,
		).WithCode(engine.ErrCodeValidation)
	}

	pkg := engine.PackageInfo{Name: name, Root: rest}
	if i := strings.LastIndex(rest, ":"); i > 0 && !isDriveLetter(rest, i) {
		pkg.Root, pkg.EntryPoint = rest[:i], rest[i+1:]
	}
	if abs, err := filepath.Abs(pkg.Root); err == nil {
		pkg.Root = abs
	}

	if err := validate.Struct(pkg); err != nil {
		return engine.PackageInfo{}, engine.NewSyntaxError(
			fmt.Sprintf("invalid package '%s'", spec), err,
		).WithCode(engine.ErrCodeValidation)
	}
	return pkg, nil
}

// isDriveLetter reports whether the colon at i belongs to a Windows
// drive such as C:\.
func isDriveLetter(s string, i int) bool {
	return i == 1 && len(s) > 2 && (s[2] == '\\' || s[2] == '/')
}
