//
//  Copyright © Manetu Inc. All rights reserved.
//
// OPA abstraction for compiling and evaluating the rego modules used by
// pluggable authorization providers

package opa

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/manetu/authzengine/internal/logging"
	"github.com/manetu/authzengine/pkg/common"
	"github.com/mohae/deepcopy"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

var logger = logging.GetLogger("authz.opa")
var agent = "opa"

// Builtins is a set of builtin function names
type Builtins map[string]struct{}

// UnsafeBuiltins are removed from every compiler built with [NewCompiler].
// Provider modules run inline with engine commands and must not reach out to
// the network.
var UnsafeBuiltins = Builtins{
	"http.send":          {},
	"net.lookup_ip_addr": {},
	"opa.runtime":        {},
}

// Compiler converts textual rego modules to ASTs
type Compiler struct {
	options *CompilerOptions
}

// Ast is a compiled set of rego modules, reusable across evaluations
type Ast struct {
	name     string
	compiler *ast.Compiler
	trace    bool
}

// Modules is a map of module name to module source code
type Modules map[string]string

// CompilerOptions contains configuration options for the compiler.
type CompilerOptions struct {
	regoVersion  ast.RegoVersion
	capabilities *ast.Capabilities
	trace        bool
}

func filter[T any](ss []T, test func(T) bool) (ret []T) {
	for _, s := range ss {
		if test(s) {
			ret = append(ret, s)
		}
	}
	return
}

// CompilerOptionFunc is a function that modifies CompilerOptions.
type CompilerOptionFunc func(*CompilerOptions)

// WithRegoVersion sets the rego version for the compiler.
func WithRegoVersion(regoVersion ast.RegoVersion) CompilerOptionFunc {
	return func(o *CompilerOptions) {
		o.regoVersion = regoVersion
	}
}

// WithCapabilities sets the rego Capabilities.  This must come before
// WithUnsafeBuiltins when both are used.
func WithCapabilities(capabilities *ast.Capabilities) CompilerOptionFunc {
	return func(o *CompilerOptions) {
		o.capabilities = capabilities
	}
}

// WithUnsafeBuiltins removes builtins from the compiler's capabilities.
func WithUnsafeBuiltins(unsafeBuiltins Builtins) CompilerOptionFunc {
	return func(o *CompilerOptions) {
		o.capabilities.Builtins = filter(o.capabilities.Builtins, func(builtin *ast.Builtin) bool {
			_, ok := unsafeBuiltins[builtin.Name]
			return !ok
		})
	}
}

// WithDefaultTracing sets the tracing used when Evaluate is not given
// WithTrace.  Defaults to the trace level of the opa logger.
func WithDefaultTracing(trace bool) CompilerOptionFunc {
	return func(o *CompilerOptions) {
		o.trace = trace
	}
}

// NewCompiler creates a rego v1 compiler without [UnsafeBuiltins], then
// applies options.
func NewCompiler(options ...CompilerOptionFunc) *Compiler {
	opts := &CompilerOptions{
		regoVersion:  ast.RegoV1,
		capabilities: ast.CapabilitiesForThisVersion(),
		trace:        logger.IsTraceEnabled(),
	}
	WithUnsafeBuiltins(UnsafeBuiltins)(opts)
	for _, o := range options {
		o(opts)
	}

	return &Compiler{options: opts}
}

// Clone creates a new Compiler from the current configuration, optionally
// applying additional options.
func (c *Compiler) Clone(options ...CompilerOptionFunc) *Compiler {
	opts := &CompilerOptions{
		regoVersion:  c.options.regoVersion,
		capabilities: deepcopy.Copy(c.options.capabilities).(*ast.Capabilities),
		trace:        c.options.trace,
	}
	for _, o := range options {
		o(opts)
	}

	return &Compiler{options: opts}
}

// Compile compiles modules into an Ast.  Parse and compile failures are
// BadConfiguration errors.
func (c *Compiler) Compile(name string, modules Modules) (*Ast, error) {
	parsed := make(map[string]*ast.Module, len(modules))

	for f, module := range modules {
		pm, err := ast.ParseModuleWithOpts(f, module, ast.ParserOptions{RegoVersion: c.options.regoVersion})
		if err != nil {
			return nil, common.NewErrorf(common.KindBadConfiguration, "%s: %s", name, err.Error())
		}
		parsed[f] = pm
	}

	compiler := ast.NewCompiler().WithCapabilities(c.options.capabilities)

	compiler.Compile(parsed)

	if compiler.Failed() {
		return nil, common.NewErrorf(common.KindBadConfiguration, "%s: %s", name, compiler.Errors.Error())
	}

	return &Ast{
		name:     name,
		compiler: compiler,
		trace:    c.options.trace,
	}, nil
}

// Name returns the name given to Compile.
func (p *Ast) Name() string {
	return p.name
}

// EvalOptions contains configuration options for policy evaluation.
type EvalOptions struct {
	trace bool
}

// EvalOptionFunc is a function that modifies EvalOptions.
type EvalOptionFunc func(*EvalOptions)

// WithTrace configures whether to enable trace output during policy evaluation.
func WithTrace(trace bool) EvalOptionFunc {
	return func(o *EvalOptions) {
		o.trace = trace
	}
}

// Evaluate runs queryStr against input and returns the first result.  An
// evaluation failure or an empty result set is a BadRequest error.
func (p *Ast) Evaluate(ctx context.Context, queryStr string, input interface{}, options ...EvalOptionFunc) (rego.Result, error) {
	logger.Debug(agent, "Evaluate", "Enter")
	defer logger.Debug(agent, "Evaluate", "Exit")

	logger.Debugf(agent, "Evaluate", "input to rego: %+v", input)

	opts := &EvalOptions{trace: p.trace}
	for _, o := range options {
		o(opts)
	}

	query := rego.New(
		rego.Query(queryStr),
		rego.Compiler(p.compiler),
		rego.Input(input),
		rego.Trace(opts.trace),
	)

	results, err := query.Eval(ctx)
	if err != nil {
		logger.Debugf(agent, "Evaluate", "queryEval %+v", err)
		return rego.Result{}, common.NewError(common.KindBadRequest, err.Error())
	} else if len(results) == 0 {
		logger.Debugf(agent, "Evaluate", "no opa results: %s, input: %+v", p.name, input)
		return rego.Result{}, common.NewErrorf(common.KindBadRequest, "no opa results: %s", p.name)
	}
	if opts.trace {
		regoTrace := new(strings.Builder)
		rego.PrintTraceWithLocation(regoTrace, query)
		logger.Trace(agent, "Evaluate", "rego trace:")
		fmt.Println(regoTrace.String()) // force internal format
		logger.Trace(agent, "Evaluate", "query results:")
		common.PrettyPrint(os.Stdout, results)
	}

	return results[0], nil
}

// EvaluateInto is Evaluate followed by decoding the first expression value
// into out through JSON.
func (p *Ast) EvaluateInto(ctx context.Context, queryStr string, input interface{}, out interface{}, options ...EvalOptionFunc) error {
	result, err := p.Evaluate(ctx, queryStr, input, options...)
	if err != nil {
		return err
	}
	if len(result.Expressions) == 0 {
		return common.NewErrorf(common.KindBadRequest, "no opa expressions: %s", p.name)
	}

	data, err := json.Marshal(result.Expressions[0].Value)
	if err != nil {
		return common.NewError(common.KindBadRequest, err.Error())
	}
	if err := json.Unmarshal(data, out); err != nil {
		return common.NewErrorf(common.KindBadRequest, "%s: unexpected result shape: %s", p.name, err.Error())
	}
	return nil
}
