package config

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/openfroyo/extconf/pkg/col"
	"github.com/openfroyo/extconf/pkg/engine"
)

// Names of the built-in schemas.
const (
	SchemaSettings = "settings"
	SchemaRegion   = "region"
)

// SchemaRegistry manages CUE schemas for validation. Each schema is a
// CUE source declaring one definition that data is unified with.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	for name, schema := range map[string]struct{ def, src string }{
		SchemaSettings: {"#Settings", builtinSettingsSchema},
		SchemaRegion:   {"#Region", builtinRegionSchema},
	} {
		if err := sr.RegisterSchema(name, schema.def, schema.src); err != nil {
			panic(err)
		}
	}

	return sr
}

// RegisterSchema compiles src and registers its definition def, such as
// "#Settings", under name.
func (sr *SchemaRegistry) RegisterSchema(name, def, src string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(src, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	definition := val.LookupPath(cue.ParsePath(def))
	if !definition.Exists() {
		return fmt.Errorf("schema %s does not define %s", name, def)
	}

	sr.schemas[name] = definition
	return nil
}

// GetSchema retrieves a schema definition by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check unifies data with a schema and returns every violation.
func (sr *SchemaRegistry) Check(ctx context.Context, schemaName string, data interface{}) ([]ValidationError, error) {
	// Values share the registry context, which is not safe for
	// concurrent use.
	sr.mu.Lock()
	defer sr.mu.Unlock()

	schema, ok := sr.schemas[schemaName]
	if !ok {
		return nil, fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return nil, fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(err), nil
	}
	return nil, nil
}

// ValidateAgainstSchema validates data against a named schema. Violations
// are returned as one invariant error listing all of them.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	violations, err := sr.Check(ctx, schemaName, data)
	if err != nil {
		return err
	}
	if len(violations) == 0 {
		return nil
	}

	var merr *multierror.Error
	for _, v := range violations {
		merr = multierror.Append(merr, v)
	}
	return engine.NewInvariantError(
		fmt.Sprintf("%s does not match the %s schema", describe(data), schemaName), merr.ErrorOrNil(),
	).WithCode(engine.ErrCodeValidation).WithDetail("violations", violations)
}

// ValidateRegion validates an exported merged region against #Region.
func (sr *SchemaRegistry) ValidateRegion(ctx context.Context, region *col.Region) error {
	err := sr.ValidateAgainstSchema(ctx, SchemaRegion, region.Data())
	if err != nil {
		if e, ok := err.(*engine.EngineError); ok && region.Pos.IsValid() {
			return e.WithSource(region.Pos).WithDetail("region", region.String())
		}
	}
	return err
}

func describe(data interface{}) string {
	if m, ok := data.(map[string]interface{}); ok {
		if pkg, ok := m["package"].(string); ok {
			return fmt.Sprintf("region %s/%v", pkg, m["profile"])
		}
	}
	return "document"
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func convertCUEErrors(err error) []ValidationError {
	var out []ValidationError

	for _, e := range errors.Errors(err) {
		format, args := e.Msg()
		v := ValidationError{
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		}
		if pos := errors.Positions(e); len(pos) > 0 {
			v.File = pos[0].Filename()
			v.Line = pos[0].Line()
			v.Column = pos[0].Column()
		}
		out = append(out, v)
	}

	return out
}

const builtinSettingsSchema = `
#Settings: {
	packages?: [...#Package]
	includePaths?: [...string & !=""]

	journal?: {
		enabled?: bool
		path?:    string
	}

	policy?: {
		enabled?: bool
		paths?: [...string & !=""]
		watch?: bool
	}

	cache?: {
		debounce?: string | int
	}

	telemetry?: {
		logging?: {
			level?:  "trace" | "debug" | "info" | "warn" | "error" | "fatal"
			format?: "console" | "json"
			...
		}
		tracing?: {
			exporter?: "otlp" | "stdout" | "none"
			...
		}
		...
	}
}

#Package: {
	name:        =~"^[A-Za-z_][A-Za-z0-9_.-]*$"
	root:        string & !=""
	entryPoint?: string & !=""
}
`

const builtinRegionSchema = `
#Region: {
	profile:   string & !=""
	"package": string & !=""
	extends?:  string & !=""
	source?:   string

	inputPorts: [string]:  #ConcretePort
	outputPorts: [string]: #ConcretePort | #EmbeddingPort
	interfaces: [string]: {
		real:      string & !=""
		"package": string & !=""
	}
	params: [...{
		path:  string & !=""
		value: _
	}]
}

#ConcretePort: {
	location?: string & !=""
	protocol?: {
		type?:       =~"^[A-Za-z][A-Za-z0-9_]*$"
		properties?: _
	}
}

#EmbeddingPort: {
	embeds: {
		module:  string & !=""
		profile: string & !=""
	}
}
`
