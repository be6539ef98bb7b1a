package program

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/rs/zerolog"
)

// FileLoader loads the entry document of a package from disk.
type FileLoader struct {
	// IncludePaths are searched, in order, for packages with a relative root.
	IncludePaths []string

	Logger zerolog.Logger
}

// Load reads and decodes the entry document of pkg.
func (l *FileLoader) Load(ctx context.Context, pkg engine.PackageInfo) (*Program, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := l.locate(pkg)
	l.Logger.Debug().
		Str("package", pkg.Name).
		Str("path", path).
		Msg("Loading package program")

	prog, err := DecodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("package '%s': %w", pkg.Name, err)
	}
	return prog, nil
}

// locate returns the entry file of pkg, searching the include paths when
// the package root is relative.
func (l *FileLoader) locate(pkg engine.PackageInfo) string {
	entry := pkg.EntryFile()
	if filepath.IsAbs(entry) {
		return entry
	}
	for _, dir := range l.IncludePaths {
		candidate := filepath.Join(dir, entry)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return entry
}

func stampSource(p *Program, file string) {
	for _, n := range p.Nodes {
		switch n := n.(type) {
		case *OutputPort:
			n.Pos.File = file
		case *InputPort:
			n.Pos.File = file
		case *Interface:
			n.Pos.File = file
		case *TypeDecl:
			stampType(n.Def, file)
		case *Init:
			n.Pos.File = file
		case *EmbedService:
			n.Pos.File = file
		case *Service:
			n.Pos.File = file
		}
	}
}

func stampType(t TypeDef, file string) {
	switch t := t.(type) {
	case *InlineType:
		t.Pos.File = file
		for _, sub := range t.Subtypes {
			stampType(sub, file)
		}
	case *ChoiceType:
		t.Pos.File = file
		stampType(t.Left, file)
		stampType(t.Right, file)
	case *LinkType:
		t.Pos.File = file
	}
}

// DecodeFile reads a program document from path.
func DecodeFile(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		e := engine.NewIOError(fmt.Sprintf("failed to open program %s", path), err)
		if errors.Is(err, fs.ErrNotExist) {
			e = e.WithCode(engine.ErrCodeFileNotFound)
		}
		return nil, e
	}
	defer f.Close()

	prog, err := Decode(f)
	if err != nil {
		return nil, engine.NewSyntaxError(fmt.Sprintf("invalid program document %s", path), err)
	}
	if prog.Source == "" {
		prog.Source = path
		stampSource(prog, path)
	}
	return prog, nil
}
