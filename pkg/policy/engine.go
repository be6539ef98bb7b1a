package policy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/openfroyo/extconf/pkg/col"
	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/rs/zerolog"
)

// Engine evaluates Rego policies against merged regions.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	store    storage.Store
	logger   zerolog.Logger
	loader   *Loader

	// paths are the custom policy sources given to LoadPolicies.
	paths []string
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	deny     rego.PreparedEvalQuery
	warn     rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		store:    inmem.New(),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
		loader:   NewLoader(logger),
	}

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	return e, nil
}

// Evaluate runs every enabled policy on region. Policies run in name
// order. A policy that fails to evaluate does not stop the others; the
// failures are returned together after the remaining policies ran.
func (e *Engine) Evaluate(ctx context.Context, region *col.Region) (*Result, error) {
	start := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	input := &Input{
		Region: region.Data(),
		Context: &Context{
			Operation: "resolve",
			Timestamp: start,
		},
	}
	if region.Pos.IsValid() {
		input.Context.ConfigFile = region.Pos.File
	}

	res := &Result{Region: region.String(), Allowed: true}
	var failures *multierror.Error

	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		res.EvaluatedPolicies = append(res.EvaluatedPolicies, name)

		denied, err := e.evaluateSet(ctx, cp, cp.deny, input, res.Region, cp.policy.Severity)
		if err == nil {
			var warned []Violation
			warned, err = e.evaluateSet(ctx, cp, cp.warn, input, res.Region, SeverityWarning)
			res.Warnings = append(res.Warnings, warned...)
		}
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", name).
				Str("region", res.Region).
				Msg("Policy evaluation failed")
			failures = multierror.Append(failures, fmt.Errorf("policy %s: %w", name, err))
			continue
		}
		res.Violations = append(res.Violations, denied...)
	}

	for i := range res.Violations {
		if res.Violations[i].Severity.Blocking() {
			res.Allowed = false
			break
		}
	}
	res.Duration = time.Since(start)

	e.logger.Debug().
		Str("region", res.Region).
		Int("violations", len(res.Violations)).
		Int("warnings", len(res.Warnings)).
		Dur("duration", res.Duration).
		Msg("Region policy evaluation completed")

	if err := failures.ErrorOrNil(); err != nil {
		return res, engine.NewInvariantError("policy evaluation failed", err).
			WithDetail("region", res.Region)
	}
	return res, nil
}

// CheckRegion evaluates region and fails when a blocking violation is
// found. Warnings and non-blocking violations are logged.
func (e *Engine) CheckRegion(ctx context.Context, region *col.Region) error {
	res, err := e.Evaluate(ctx, region)
	if err != nil {
		return err
	}

	for _, v := range append(res.Warnings, res.Violations...) {
		if v.Severity.Blocking() {
			continue
		}
		e.logger.Warn().
			Str("policy", v.Policy).
			Str("region", v.Region).
			Msg(v.Message)
	}

	denials := res.Denials()
	if len(denials) == 0 {
		return nil
	}

	var merr *multierror.Error
	for _, v := range denials {
		merr = multierror.Append(merr, errors.New(v.Policy+": "+v.Message))
	}

	return engine.NewPolicyError(fmt.Sprintf(
		"configuration region %s was denied by %d policy violation(s)", res.Region, len(denials),
	), merr).WithSource(region.Pos).WithCode(engine.ErrCodePolicyDenied).
		WithDetail("violations", denials)
}

// evaluateSet collects the elements of one rule set.
func (e *Engine) evaluateSet(ctx context.Context, cp *compiledPolicy, query rego.PreparedEvalQuery,
	input *Input, region string, severity Severity) ([]Violation, error) {
	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var out []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		set, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, elem := range set {
			out = append(out, createViolation(cp.policy, elem, region, severity))
		}
	}
	return out, nil
}

// createViolation converts one set element into a Violation.
func createViolation(policy *Policy, elem interface{}, region string, severity Severity) Violation {
	v := Violation{
		Policy:   policy.Name,
		Region:   region,
		Severity: severity,
	}

	switch d := elem.(type) {
	case string:
		v.Message = d
	case map[string]interface{}:
		if msg, ok := d["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := d["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
		for key, val := range d {
			if key == "message" || key == "severity" {
				continue
			}
			if v.Details == nil {
				v.Details = make(map[string]interface{})
			}
			v.Details[key] = val
		}
	default:
		v.Message = fmt.Sprintf("%v", elem)
	}

	return v
}

// AddPolicy compiles policy and adds it, replacing a policy of the same
// name.
func (e *Engine) AddPolicy(ctx context.Context, policy Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.compileAndStorePolicy(ctx, &policy)
}

// LoadPolicies loads policy files and directories and remembers the
// paths for ReloadPolicies and Watch.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	policies, err := e.loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			e.logger.Error().Err(err).
				Str("policy", policies[i].Name).
				Msg("Failed to compile policy")
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}
	e.paths = append(e.paths, paths...)

	e.logger.Info().
		Int("count", len(policies)).
		Msg("Policies loaded successfully")

	return nil
}

// Watch reloads the custom policies whenever a file under the loaded
// paths changes. It returns once the watcher is running.
func (e *Engine) Watch(ctx context.Context) error {
	e.mu.RLock()
	paths := append([]string(nil), e.paths...)
	e.mu.RUnlock()

	if len(paths) == 0 {
		return errors.New("no policy paths loaded")
	}
	return e.loader.Watch(ctx, paths, func(policies []Policy) error {
		return e.replaceCustom(ctx, policies)
	})
}

// replaceCustom swaps the custom policies for policies. Nothing changes
// when one of them fails to compile.
func (e *Engine) replaceCustom(ctx context.Context, policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled := make(map[string]*compiledPolicy, len(e.policies))
	for name, cp := range e.policies {
		if cp.policy.Builtin {
			compiled[name] = cp
		}
	}
	for i := range policies {
		cp, err := e.compile(ctx, &policies[i])
		if err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
		compiled[cp.policy.Name] = cp
	}
	e.policies = compiled
	return nil
}

func (e *Engine) compile(ctx context.Context, policy *Policy) (*compiledPolicy, error) {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	// data.<package>
	pkg := module.Package.Path.String()

	prepare := func(rule string) (rego.PreparedEvalQuery, error) {
		return rego.New(
			rego.Module(policy.Name, policy.Rego),
			rego.Store(e.store),
			rego.Query(pkg+"."+rule),
		).PrepareForEval(ctx)
	}

	deny, err := prepare("deny")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}
	warn, err := prepare("warn")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	if policy.Severity == "" {
		policy.Severity = SeverityError
	}
	return &compiledPolicy{
		policy:   policy,
		module:   module,
		deny:     deny,
		warn:     warn,
		compiled: time.Now(),
	}, nil
}

// compileAndStorePolicy compiles a policy and stores it.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	cp, err := e.compile(ctx, policy)
	if err != nil {
		return err
	}
	e.policies[policy.Name] = cp

	e.logger.Debug().
		Str("policy", policy.Name).
		Str("package", cp.module.Package.Path.String()).
		Msg("Policy compiled successfully")

	return nil
}

// loadBuiltinPolicies loads the built-in policies.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	builtins := GetBuiltinPolicies()
	for i := range builtins {
		if err := e.compileAndStorePolicy(ctx, &builtins[i]); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}

	e.logger.Debug().
		Int("count", len(builtins)).
		Msg("Built-in policies loaded")

	return nil
}

func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, e.notFound(name)
	}

	return cp.policy, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		policies = append(policies, *e.policies[name].policy)
	}

	return policies
}

// ReloadPolicies rebuilds the built-in policies and reads the custom
// policy paths again.
func (e *Engine) ReloadPolicies(ctx context.Context) error {
	e.mu.Lock()
	e.policies = make(map[string]*compiledPolicy)
	err := e.loadBuiltinPolicies(ctx)
	paths := e.paths
	e.paths = nil
	e.mu.Unlock()
	if err != nil {
		return err
	}

	e.loader.ClearCache()
	if len(paths) == 0 {
		return nil
	}
	return e.LoadPolicies(ctx, paths)
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return e.notFound(name)
	}

	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy state changed")

	return nil
}

func (e *Engine) notFound(name string) error {
	return engine.NewLookupError(
		fmt.Sprintf("policy not found: %s%s", name, col.DidYouMean(name, e.sortedNames())), nil,
	).WithDetail("policy", name)
}
