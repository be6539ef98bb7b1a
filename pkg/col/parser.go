package col

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/openfroyo/extconf/pkg/value"
	"github.com/rs/zerolog"
)

// ConfigDirectory is the per-package directory scanned for .col files.
const ConfigDirectory = "conf"

// FileExtension is the conventional extension of configuration files.
const FileExtension = ".col"

// Options controls parsing.
type Options struct {
	// Packages is the table of known packages. When non-empty, regions for
	// unknown packages are rejected and the conf directory of every
	// package used by the file is parsed into the same tree.
	Packages engine.PackageTable

	// Logger receives debug output. The zero value discards it.
	Logger zerolog.Logger
}

// Parser builds a Tree from configuration source files.
type Parser struct {
	opts     Options
	tree     *Tree
	scanner  *Scanner
	tok      Token
	dir      string
	included map[string]bool
	used     []string
	visited  map[string]bool
}

// NewParser creates a parser that accumulates regions into a fresh tree.
func NewParser(opts Options) *Parser {
	return &Parser{
		opts:     opts,
		tree:     NewTree(),
		included: make(map[string]bool),
		visited:  make(map[string]bool),
	}
}

// ParseFile parses the file at path, its includes, and the conf
// directories of the packages it uses.
func ParseFile(path string, opts Options) (*Tree, error) {
	p := NewParser(opts)
	if err := p.ParseFile(path); err != nil {
		return nil, err
	}
	return p.Finish()
}

// ParseBytes parses in-memory source. Includes resolve relative to dir.
func ParseBytes(src []byte, file, dir string, opts Options) (*Tree, error) {
	p := NewParser(opts)
	if err := p.ParseSource(src, file, dir); err != nil {
		return nil, err
	}
	return p.Finish()
}

// ParseFile parses one file into the parser's tree.
func (p *Parser) ParseFile(path string) error {
	key := CanonicalPath(path)
	if p.included[key] {
		return nil
	}
	p.included[key] = true
	src, err := p.readFile(key, engine.Position{})
	if err != nil {
		return err
	}
	return p.ParseSource(src, key, filepath.Dir(key))
}

// ParseSource parses src as if it were read from file.
func (p *Parser) ParseSource(src []byte, file, dir string) error {
	oldScanner, oldTok, oldDir := p.scanner, p.tok, p.dir
	defer func() {
		p.scanner, p.tok, p.dir = oldScanner, oldTok, oldDir
	}()

	p.scanner = NewScanner(src, file)
	p.dir = dir
	if err := p.next(); err != nil {
		return err
	}

	for p.tok.Type != EOF {
		switch p.tok.Type {
		case INCLUDE:
			if err := p.parseInclude(); err != nil {
				return err
			}
		case PROFILE, CONFIGURES:
			if err := p.parseRegion(); err != nil {
				return err
			}
		default:
			return p.unexpected("'include', 'profile' or 'configures'")
		}
	}
	return nil
}

// Finish parses the conf directories of every package used so far and
// returns the tree.
func (p *Parser) Finish() (*Tree, error) {
	for len(p.used) > 0 {
		name := p.used[0]
		p.used = p.used[1:]
		if p.visited[name] {
			continue
		}
		p.visited[name] = true

		pkg, ok := p.opts.Packages[name]
		if !ok {
			continue
		}
		if err := p.parseConfDirectory(pkg); err != nil {
			return nil, err
		}
	}
	return p.tree, nil
}

func (p *Parser) parseConfDirectory(pkg engine.PackageInfo) error {
	dir := filepath.Join(pkg.Root, ConfigDirectory)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil
	}

	matches, err := doublestar.Glob(os.DirFS(dir), "**/*"+FileExtension)
	if err != nil {
		return engine.NewIOError(fmt.Sprintf("failed to scan %s", dir), err).
			WithCode(engine.ErrCodeFileNotFound)
	}
	for _, m := range matches {
		path := filepath.Join(dir, filepath.FromSlash(m))
		p.opts.Logger.Debug().
			Str("package", pkg.Name).
			Str("path", path).
			Msg("Parsing package configuration file")
		if err := p.ParseFile(path); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) readFile(path string, from engine.Position) ([]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		e := engine.NewIOError(fmt.Sprintf("failed to read configuration file %s", path), err).
			WithSource(from)
		if errors.Is(err, fs.ErrNotExist) {
			e = e.WithCode(engine.ErrCodeFileNotFound)
		}
		return nil, e
	}
	p.tree.Sources = append(p.tree.Sources, Source{Path: path, Digest: Digest(src)})
	return src, nil
}

func (p *Parser) next() error {
	tok, err := p.scanner.Next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *Parser) errorf(code, format string, args ...interface{}) error {
	return engine.NewSyntaxError(fmt.Sprintf(format, args...), nil).
		WithSource(p.tok.Pos).
		WithCode(code)
}

func (p *Parser) unexpected(expected string) error {
	return p.errorf(engine.ErrCodeUnexpectedToken, "expected %s, found %s", expected, p.tok)
}

// expect checks the current token type, returns its text, and advances.
func (p *Parser) expect(tt TokenType, what string) (string, error) {
	if p.tok.Type != tt {
		return "", p.unexpected(what)
	}
	text := p.tok.Text
	return text, p.next()
}

func (p *Parser) parseInclude() error {
	from := p.tok.Pos
	if err := p.next(); err != nil {
		return err
	}
	target, err := p.expect(STRING, "file location")
	if err != nil {
		return err
	}

	if !filepath.IsAbs(target) {
		target = filepath.Join(p.dir, target)
	}
	key := CanonicalPath(target)
	if p.included[key] {
		p.opts.Logger.Debug().Str("path", key).Msg("Skipping already included file")
		return nil
	}
	p.included[key] = true

	src, err := p.readFile(key, from)
	if err != nil {
		return err
	}
	return p.ParseSource(src, key, filepath.Dir(key))
}

func (p *Parser) parseRegion() error {
	pos := p.tok.Pos
	var profile string
	if p.tok.Type == PROFILE {
		if err := p.next(); err != nil {
			return err
		}
		name, err := p.expect(STRING, "profile name")
		if err != nil {
			return err
		}
		profile = name
	}

	if _, err := p.expect(CONFIGURES, "'configures'"); err != nil {
		return err
	}
	pkgPos := p.tok.Pos
	pkg, err := p.expect(STRING, "package name")
	if err != nil {
		return err
	}
	if err := p.checkKnownPackage(pkg, pkgPos); err != nil {
		return err
	}
	if profile == "" {
		profile = pkg
	}

	region := NewRegion(pkg, profile)
	region.Pos = pos

	if p.tok.Type == EXTENDS {
		if err := p.next(); err != nil {
			return err
		}
		parent, err := p.expect(STRING, "parent profile name")
		if err != nil {
			return err
		}
		region.Extends = parent
	}

	if _, err := p.expect(LCURLY, "'{'"); err != nil {
		return err
	}
	for p.tok.Type != RCURLY {
		if err := p.parseDefinition(region); err != nil {
			return err
		}
		if p.tok.Type == COMMA {
			if err := p.next(); err != nil {
				return err
			}
			continue
		}
		if p.tok.Type != RCURLY {
			return p.unexpected("',' or '}'")
		}
	}
	if err := p.next(); err != nil {
		return err
	}

	return p.tree.Add(region)
}

func (p *Parser) checkKnownPackage(pkg string, pos engine.Position) error {
	if len(p.opts.Packages) == 0 {
		return nil
	}
	if _, ok := p.opts.Packages[pkg]; !ok {
		names := p.opts.Packages.Names()
		return engine.NewLookupError(fmt.Sprintf(
			"attempting to configure unknown package '%s'. Known packages are: %s.%s",
			pkg, quotedList(names), DidYouMean(pkg, names),
		), nil).WithSource(pos).WithCode(engine.ErrCodeUnknownPackage)
	}
	p.used = append(p.used, pkg)
	return nil
}

func (p *Parser) parseDefinition(region *Region) error {
	switch {
	case p.tok.Is(kwInputPort):
		return p.parsePort(region, DirectionInput)
	case p.tok.Is(kwOutputPort):
		return p.parsePort(region, DirectionOutput)
	case p.tok.Is(kwInterface):
		return p.parseInterface(region)
	case p.tok.Type == ID || p.tok.Type == LPAREN:
		return p.parseParam(region)
	default:
		return p.unexpected("port, interface or parameter definition")
	}
}

func (p *Parser) parsePort(region *Region, dir Direction) error {
	pos := p.tok.Pos
	if err := p.next(); err != nil {
		return err
	}
	name, err := p.expect(ID, "port name")
	if err != nil {
		return err
	}

	ports := region.Ports(dir)
	if prev, exists := ports[name]; exists {
		return engine.NewSyntaxError(fmt.Sprintf(
			"%s port '%s' is configured twice in '%s', first at %s", dir, name, region, prev.Position(),
		), nil).WithSource(pos).WithRelated(prev.Position()).WithCode(engine.ErrCodeDuplicateKey)
	}

	if p.tok.Type == EMBEDS {
		if dir == DirectionInput {
			return p.errorf(engine.ErrCodeEmbedInputPort, "cannot embed in an input port")
		}
		if err := p.next(); err != nil {
			return err
		}
		profile, err := p.expect(STRING, "embedded profile name")
		if err != nil {
			return err
		}
		if _, err := p.expect(WITH, "'with'"); err != nil {
			return err
		}
		module, err := p.expect(STRING, "embedded module name")
		if err != nil {
			return err
		}
		p.used = append(p.used, module)
		ports[name] = &EmbeddingPort{PortName: name, Module: module, Profile: profile, Pos: pos}
		return nil
	}

	port := &ConcretePort{PortName: name, Pos: pos}
	if _, err := p.expect(LCURLY, "'{' or 'embeds'"); err != nil {
		return err
	}
	for p.tok.Type != RCURLY {
		switch {
		case p.tok.Is(kwLocation):
			if port.Location != nil {
				return p.errorf(engine.ErrCodeDuplicateKey, "Location is defined twice in port '%s'", name)
			}
			if err := p.next(); err != nil {
				return err
			}
			if _, err := p.expect(COLON, "':'"); err != nil {
				return err
			}
			loc, err := p.expect(STRING, "location string")
			if err != nil {
				return err
			}
			port.Location = &loc

		case p.tok.Is(kwProtocol):
			if port.Protocol != nil {
				return p.errorf(engine.ErrCodeDuplicateKey, "Protocol is defined twice in port '%s'", name)
			}
			if err := p.next(); err != nil {
				return err
			}
			if _, err := p.expect(COLON, "':'"); err != nil {
				return err
			}
			typ, err := p.expect(ID, "protocol identifier")
			if err != nil {
				return err
			}
			port.Protocol = &Protocol{Type: &typ}
			if p.tok.Type == LCURLY {
				props, err := p.parseTreeBody(value.Void())
				if err != nil {
					return err
				}
				port.Protocol.Properties = props
			}

		default:
			return p.unexpected("'Location' or 'Protocol' definition in port body")
		}
	}
	if err := p.next(); err != nil {
		return err
	}
	ports[name] = port
	return nil
}

func (p *Parser) parseInterface(region *Region) error {
	pos := p.tok.Pos
	if err := p.next(); err != nil {
		return err
	}
	local, err := p.expect(ID, "interface name")
	if err != nil {
		return err
	}
	if _, err := p.expect(ASSIGN, "'='"); err != nil {
		return err
	}
	realName, err := p.expect(ID, "interface name")
	if err != nil {
		return err
	}
	if _, err := p.expect(FROM, "'from'"); err != nil {
		return err
	}
	pkg, err := p.expect(STRING, "package name")
	if err != nil {
		return err
	}

	if prev, exists := region.Interfaces[local]; exists {
		return engine.NewSyntaxError(fmt.Sprintf(
			"interface '%s' is configured twice in '%s', first at %s", local, region, prev.Pos,
		), nil).WithSource(pos).WithRelated(prev.Pos).WithCode(engine.ErrCodeDuplicateKey)
	}
	region.Interfaces[local] = &Interface{Local: local, Real: realName, Package: pkg, Pos: pos}
	return nil
}

func (p *Parser) parseParam(region *Region) error {
	pos := p.tok.Pos
	path, err := p.parsePath()
	if err != nil {
		return err
	}
	if _, err := p.expect(ASSIGN, "'='"); err != nil {
		return err
	}
	v, err := p.parseValue()
	if err != nil {
		return err
	}
	region.Params = append(region.Params, &Param{Path: path, Value: v, Pos: pos})
	return nil
}

func (p *Parser) parsePath() (value.Path, error) {
	var path value.Path
	for {
		var seg value.Segment
		switch p.tok.Type {
		case ID:
			seg.Name = p.tok.Text
			if err := p.next(); err != nil {
				return nil, err
			}
		case LPAREN:
			if err := p.next(); err != nil {
				return nil, err
			}
			name, err := p.expect(STRING, "quoted path segment")
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RPAREN, "')'"); err != nil {
				return nil, err
			}
			seg.Name = name
		default:
			return nil, p.unexpected("path segment")
		}

		if p.tok.Type == LSQUARE {
			if err := p.next(); err != nil {
				return nil, err
			}
			idx, err := p.parseIndex()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RSQUARE, "']'"); err != nil {
				return nil, err
			}
			seg.Index = idx
			seg.HasIndex = true
		}
		path = append(path, seg)

		if p.tok.Type != DOT {
			return path, nil
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
}

func (p *Parser) parseIndex() (int, error) {
	if p.tok.Type != INT {
		return 0, p.unexpected("integer index")
	}
	n, err := strconv.ParseInt(p.tok.Text, 10, 32)
	if err != nil {
		return 0, p.errorf(engine.ErrCodeUnexpectedToken, "integer index %s is out of range", p.tok.Text)
	}
	if n < 0 {
		return 0, p.errorf(engine.ErrCodeNegativeIndex,
			"integer value was %d, but value cannot be negative here", n)
	}
	return int(n), p.next()
}

// parseValue parses a literal with an optional tree body, or a bare tree body.
func (p *Parser) parseValue() (value.Expr, error) {
	if p.tok.Type == LCURLY {
		return p.parseTreeBody(value.Void())
	}
	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	if p.tok.Type == LCURLY {
		return p.parseTreeBody(lit)
	}
	return lit, nil
}

func (p *Parser) parseLiteral() (*value.Literal, error) {
	tok := p.tok
	var lit *value.Literal
	switch tok.Type {
	case STRING:
		lit = value.String(tok.Text)
	case INT:
		n, err := strconv.ParseInt(tok.Text, 10, 32)
		if err != nil {
			return nil, p.errorf(engine.ErrCodeUnexpectedToken,
				"integer %s is out of range, use a long literal (%sL)", tok.Text, tok.Text)
		}
		lit = value.Int(n)
	case LONG:
		n, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			return nil, p.errorf(engine.ErrCodeUnexpectedToken, "long %s is out of range", tok.Text)
		}
		lit = value.Long(n)
	case DOUBLE:
		f, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil, p.errorf(engine.ErrCodeUnexpectedToken, "malformed double %s", tok.Text)
		}
		lit = value.Double(f)
	case TRUE:
		lit = value.Bool(true)
	case FALSE:
		lit = value.Bool(false)
	default:
		return nil, p.unexpected("constant value")
	}
	return lit, p.next()
}

// parseTreeBody parses { .path = value, ... } on top of root.
func (p *Parser) parseTreeBody(root *value.Literal) (*value.Tree, error) {
	tree := &value.Tree{Root: root}
	if _, err := p.expect(LCURLY, "'{'"); err != nil {
		return nil, err
	}
	if p.tok.Type == RCURLY {
		return tree, p.next()
	}
	for {
		if _, err := p.expect(DOT, "'.'"); err != nil {
			return nil, err
		}
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(ASSIGN, "'='"); err != nil {
			return nil, err
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		tree.Assignments = append(tree.Assignments, value.Assignment{Path: path, Value: v})

		if p.tok.Type == COMMA {
			if err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		if _, err := p.expect(RCURLY, "',' or '}'"); err != nil {
			return nil, err
		}
		return tree, nil
	}
}
