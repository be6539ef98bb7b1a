package program

import (
	"fmt"
	"io"
	"strconv"

	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/openfroyo/extconf/pkg/value"
	"gopkg.in/yaml.v3"
)

// Node kinds of the YAML document.
const (
	KindOutputPort = "outputPort"
	KindInputPort  = "inputPort"
	KindInterface  = "interface"
	KindType       = "type"
	KindInit       = "init"
	KindEmbed      = "embed"
	KindService    = "service"
)

// Type definition kinds of the YAML document.
const (
	TypeKindInline = "inline"
	TypeKindChoice = "choice"
	TypeKindLink   = "link"
)

type document struct {
	Source string    `yaml:"source,omitempty"`
	Nodes  []nodeDoc `yaml:"nodes"`
}

type nodeDoc struct {
	Kind       string         `yaml:"kind"`
	Name       string         `yaml:"name,omitempty"`
	External   bool           `yaml:"external,omitempty"`
	Location   string         `yaml:"location,omitempty"`
	Protocol   string         `yaml:"protocol,omitempty"`
	Properties *valueDoc      `yaml:"properties,omitempty"`
	Interfaces []string       `yaml:"interfaces,omitempty"`
	Operations []operationDoc `yaml:"operations,omitempty"`
	Type       *typeDoc       `yaml:"type,omitempty"`
	Body       []statementDoc `yaml:"body,omitempty"`
	EmbedKind  string         `yaml:"embedKind,omitempty"`
	Command    string         `yaml:"command,omitempty"`
	Port       string         `yaml:"port,omitempty"`
	Text       string         `yaml:"text,omitempty"`
	Line       int            `yaml:"line,omitempty"`
}

type operationDoc struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind,omitempty"`
	Request  string `yaml:"request,omitempty"`
	Response string `yaml:"response,omitempty"`
}

type typeDoc struct {
	Kind   string    `yaml:"kind"`
	Name   string    `yaml:"name"`
	Native string    `yaml:"native,omitempty"`
	Fields []typeDoc `yaml:"fields,omitempty"`
	Left   *typeDoc  `yaml:"left,omitempty"`
	Right  *typeDoc  `yaml:"right,omitempty"`
	Linked string    `yaml:"linked,omitempty"`
	Line   int       `yaml:"line,omitempty"`
}

type statementDoc struct {
	DeepCopy *deepCopyDoc `yaml:"deepCopy,omitempty"`
	Raw      string       `yaml:"raw,omitempty"`
}

type deepCopyDoc struct {
	Target string   `yaml:"target"`
	Global bool     `yaml:"global,omitempty"`
	Value  valueDoc `yaml:"value"`
}

// valueDoc is either a literal (Type and Literal) or a tree (Root and Fields).
// Literal is held as a node so scalars of any YAML tag decode into it.
type valueDoc struct {
	Type    string     `yaml:"type,omitempty"`
	Literal yaml.Node  `yaml:"literal,omitempty"`
	Root    *valueDoc  `yaml:"root,omitempty"`
	Fields  []fieldDoc `yaml:"fields,omitempty"`
}

type fieldDoc struct {
	Path  string   `yaml:"path"`
	Value valueDoc `yaml:"value"`
}

// Decode reads a program document.
func Decode(r io.Reader) (*Program, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode program: %w", err)
	}

	p := &Program{Source: doc.Source}
	for i, nd := range doc.Nodes {
		n, err := decodeNode(nd, doc.Source)
		if err != nil {
			return nil, fmt.Errorf("node %d (%s %q): %w", i, nd.Kind, nd.Name, err)
		}
		p.Nodes = append(p.Nodes, n)
	}
	return p, nil
}

// Encode writes p as a program document.
func Encode(w io.Writer, p *Program) error {
	doc := document{Source: p.Source, Nodes: make([]nodeDoc, 0, len(p.Nodes))}
	for _, n := range p.Nodes {
		nd, err := encodeNode(n)
		if err != nil {
			return err
		}
		doc.Nodes = append(doc.Nodes, nd)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("failed to encode program: %w", err)
	}
	return enc.Close()
}

func decodeNode(nd nodeDoc, file string) (Node, error) {
	pos := engine.Position{File: file, Line: nd.Line}
	switch nd.Kind {
	case KindOutputPort:
		b, err := decodeBinding(nd)
		if err != nil {
			return nil, err
		}
		return &OutputPort{Name: nd.Name, External: nd.External, Binding: b, Interfaces: nd.Interfaces, Pos: pos}, nil

	case KindInputPort:
		b, err := decodeBinding(nd)
		if err != nil {
			return nil, err
		}
		ops, err := decodeOperations(nd.Operations)
		if err != nil {
			return nil, err
		}
		return &InputPort{Name: nd.Name, External: nd.External, Binding: b, Interfaces: nd.Interfaces, Operations: ops, Pos: pos}, nil

	case KindInterface:
		ops, err := decodeOperations(nd.Operations)
		if err != nil {
			return nil, err
		}
		return &Interface{Name: nd.Name, External: nd.External, Operations: ops, Pos: pos}, nil

	case KindType:
		if nd.Type == nil {
			return nil, fmt.Errorf("type node without definition")
		}
		def, err := decodeType(*nd.Type, file)
		if err != nil {
			return nil, err
		}
		return &TypeDecl{Def: def}, nil

	case KindInit:
		init := &Init{Pos: pos}
		for _, sd := range nd.Body {
			s, err := decodeStatement(sd)
			if err != nil {
				return nil, err
			}
			init.Body = append(init.Body, s)
		}
		return init, nil

	case KindEmbed:
		return &EmbedService{Kind: nd.EmbedKind, Command: nd.Command, Port: nd.Port, Pos: pos}, nil

	case KindService:
		return &Service{Name: nd.Name, Text: nd.Text, Pos: pos}, nil

	default:
		return nil, fmt.Errorf("unknown node kind %q", nd.Kind)
	}
}

func encodeNode(n Node) (nodeDoc, error) {
	nd := nodeDoc{Line: n.Position().Line}
	switch n := n.(type) {
	case *OutputPort:
		nd.Kind, nd.Name, nd.External, nd.Interfaces = KindOutputPort, n.Name, n.External, n.Interfaces
		encodeBinding(&nd, n.Binding)
	case *InputPort:
		nd.Kind, nd.Name, nd.External, nd.Interfaces = KindInputPort, n.Name, n.External, n.Interfaces
		encodeBinding(&nd, n.Binding)
		nd.Operations = encodeOperations(n.Operations)
	case *Interface:
		nd.Kind, nd.Name, nd.External = KindInterface, n.Name, n.External
		nd.Operations = encodeOperations(n.Operations)
	case *TypeDecl:
		td, err := encodeType(n.Def)
		if err != nil {
			return nd, err
		}
		nd.Kind, nd.Line, nd.Type = KindType, 0, &td
	case *Init:
		nd.Kind = KindInit
		for _, s := range n.Body {
			sd, err := encodeStatement(s)
			if err != nil {
				return nd, err
			}
			nd.Body = append(nd.Body, sd)
		}
	case *EmbedService:
		nd.Kind, nd.EmbedKind, nd.Command, nd.Port = KindEmbed, n.Kind, n.Command, n.Port
	case *Service:
		nd.Kind, nd.Name, nd.Text = KindService, n.Name, n.Text
	default:
		return nd, fmt.Errorf("unknown node type %T", n)
	}
	return nd, nil
}

func decodeBinding(nd nodeDoc) (Binding, error) {
	b := Binding{Location: nd.Location, Protocol: nd.Protocol}
	if nd.Properties != nil {
		v, err := decodeValue(*nd.Properties)
		if err != nil {
			return b, fmt.Errorf("properties: %w", err)
		}
		b.Properties = v
	}
	return b, nil
}

func encodeBinding(nd *nodeDoc, b Binding) {
	nd.Location, nd.Protocol = b.Location, b.Protocol
	if b.Properties != nil {
		v := encodeValue(b.Properties)
		nd.Properties = &v
	}
}

func decodeOperations(docs []operationDoc) ([]*Operation, error) {
	var ops []*Operation
	for _, od := range docs {
		kind := OperationKind(od.Kind)
		switch kind {
		case "":
			kind = RequestResponse
			if od.Response == "" {
				kind = OneWay
			}
		case OneWay, RequestResponse:
		default:
			return nil, fmt.Errorf("operation %s: unknown kind %q", od.Name, od.Kind)
		}
		ops = append(ops, &Operation{Name: od.Name, Kind: kind, Request: od.Request, Response: od.Response})
	}
	return ops, nil
}

func encodeOperations(ops []*Operation) []operationDoc {
	var out []operationDoc
	for _, op := range ops {
		out = append(out, operationDoc{Name: op.Name, Kind: string(op.Kind), Request: op.Request, Response: op.Response})
	}
	return out
}

func decodeType(td typeDoc, file string) (TypeDef, error) {
	pos := engine.Position{File: file, Line: td.Line}
	switch td.Kind {
	case TypeKindInline, "":
		t := &InlineType{Name: td.Name, Native: td.Native, Pos: pos}
		if t.Native == "" {
			t.Native = "void"
		}
		for _, fd := range td.Fields {
			sub, err := decodeType(fd, file)
			if err != nil {
				return nil, err
			}
			t.Subtypes = append(t.Subtypes, sub)
		}
		return t, nil
	case TypeKindChoice:
		if td.Left == nil || td.Right == nil {
			return nil, fmt.Errorf("choice type %s needs both alternatives", td.Name)
		}
		left, err := decodeType(*td.Left, file)
		if err != nil {
			return nil, err
		}
		right, err := decodeType(*td.Right, file)
		if err != nil {
			return nil, err
		}
		return &ChoiceType{Name: td.Name, Left: left, Right: right, Pos: pos}, nil
	case TypeKindLink:
		if td.Linked == "" {
			return nil, fmt.Errorf("link type %s has no target", td.Name)
		}
		return &LinkType{Name: td.Name, Linked: td.Linked, Pos: pos}, nil
	default:
		return nil, fmt.Errorf("unknown type kind %q", td.Kind)
	}
}

func encodeType(t TypeDef) (typeDoc, error) {
	switch t := t.(type) {
	case *InlineType:
		td := typeDoc{Kind: TypeKindInline, Name: t.Name, Native: t.Native, Line: t.Pos.Line}
		for _, sub := range t.Subtypes {
			fd, err := encodeType(sub)
			if err != nil {
				return td, err
			}
			td.Fields = append(td.Fields, fd)
		}
		return td, nil
	case *ChoiceType:
		left, err := encodeType(t.Left)
		if err != nil {
			return typeDoc{}, err
		}
		right, err := encodeType(t.Right)
		if err != nil {
			return typeDoc{}, err
		}
		return typeDoc{Kind: TypeKindChoice, Name: t.Name, Left: &left, Right: &right, Line: t.Pos.Line}, nil
	case *LinkType:
		return typeDoc{Kind: TypeKindLink, Name: t.Name, Linked: t.Linked, Line: t.Pos.Line}, nil
	default:
		return typeDoc{}, fmt.Errorf("unknown type definition %T", t)
	}
}

func decodeStatement(sd statementDoc) (Statement, error) {
	if sd.DeepCopy == nil {
		return &RawStatement{Text: sd.Raw}, nil
	}
	target, err := value.ParsePath(sd.DeepCopy.Target)
	if err != nil {
		return nil, err
	}
	v, err := decodeValue(sd.DeepCopy.Value)
	if err != nil {
		return nil, err
	}
	return &DeepCopy{Target: target, Global: sd.DeepCopy.Global, Value: v}, nil
}

func encodeStatement(s Statement) (statementDoc, error) {
	switch s := s.(type) {
	case *DeepCopy:
		return statementDoc{DeepCopy: &deepCopyDoc{
			Target: s.Target.String(),
			Global: s.Global,
			Value:  encodeValue(s.Value),
		}}, nil
	case *RawStatement:
		return statementDoc{Raw: s.Text}, nil
	default:
		return statementDoc{}, fmt.Errorf("unknown statement %T", s)
	}
}

func decodeValue(vd valueDoc) (value.Expr, error) {
	if vd.Root == nil && vd.Fields == nil {
		return decodeLiteral(vd)
	}
	root := value.Void()
	if vd.Root != nil {
		lit, err := decodeLiteral(*vd.Root)
		if err != nil {
			return nil, err
		}
		root = lit
	}
	tree := &value.Tree{Root: root}
	for _, fd := range vd.Fields {
		path, err := value.ParsePath(fd.Path)
		if err != nil {
			return nil, err
		}
		v, err := decodeValue(fd.Value)
		if err != nil {
			return nil, err
		}
		tree.Assignments = append(tree.Assignments, value.Assignment{Path: path, Value: v})
	}
	return tree, nil
}

func decodeLiteral(vd valueDoc) (*value.Literal, error) {
	kind := value.KindVoid
	if vd.Type != "" {
		k, ok := value.ParseKind(vd.Type)
		if !ok {
			return nil, fmt.Errorf("unknown value type %q", vd.Type)
		}
		kind = k
	}
	text := ""
	if vd.Literal.Kind != 0 {
		if vd.Literal.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%s literal must be a scalar", kind)
		}
		text = vd.Literal.Value
	}

	switch kind {
	case value.KindVoid:
		return value.Void(), nil
	case value.KindString:
		return value.String(text), nil
	case value.KindInt:
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid int literal %q: %w", text, err)
		}
		return value.Int(n), nil
	case value.KindLong:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid long literal %q: %w", text, err)
		}
		return value.Long(n), nil
	case value.KindDouble:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid double literal %q: %w", text, err)
		}
		return value.Double(f), nil
	case value.KindBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("invalid bool literal %q: %w", text, err)
		}
		return value.Bool(b), nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", kind)
	}
}

func encodeValue(e value.Expr) valueDoc {
	switch e := e.(type) {
	case *value.Literal:
		return encodeLiteral(e)
	case *value.Tree:
		vd := valueDoc{Fields: []fieldDoc{}}
		if e.Root != nil && e.Root.Kind != value.KindVoid {
			root := encodeLiteral(e.Root)
			vd.Root = &root
		}
		for _, a := range e.Assignments {
			vd.Fields = append(vd.Fields, fieldDoc{Path: a.Path.String(), Value: encodeValue(a.Value)})
		}
		return vd
	default:
		return valueDoc{}
	}
}

func encodeLiteral(l *value.Literal) valueDoc {
	vd := valueDoc{Type: l.Kind.String()}
	var tag, text string
	switch l.Kind {
	case value.KindVoid:
		return vd
	case value.KindString:
		tag, text = "!!str", l.Str
	case value.KindInt, value.KindLong:
		tag, text = "!!int", strconv.FormatInt(l.Int, 10)
	case value.KindDouble:
		tag, text = "!!float", strconv.FormatFloat(l.Float, 'g', -1, 64)
	case value.KindBool:
		tag, text = "!!bool", strconv.FormatBool(l.Bool)
	}
	vd.Literal = yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: text}
	return vd
}
