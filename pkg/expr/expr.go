package expr

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/macropower/rulepool/pkg/rule"
)

// VarRule is the name of the variable holding the rule under evaluation.
const VarRule = "rule"

var ErrNotBool = errors.New("expression must evaluate to a bool")

// Protect CEL environment creation and compilation from concurrent access.
var celMutex sync.Mutex

// Environment provides a thread-safe wrapper around a [*cel.Env].
type Environment struct {
	env *cel.Env
}

// NewEnvironment creates a new [Environment] with the rule variable and
// helper functions declared.
func NewEnvironment(opts ...cel.EnvOption) (*Environment, error) {
	celMutex.Lock()
	defer celMutex.Unlock()

	opts = append(opts,
		cel.Variable(VarRule, cel.MapType(cel.StringType, cel.DynType)),
		cel.Lib(&lib{}),
	)

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &Environment{env: env}, nil
}

// MustNewEnvironment creates a new [Environment] and panics on error.
func MustNewEnvironment(opts ...cel.EnvOption) *Environment {
	env, err := NewEnvironment(opts...)
	if err != nil {
		panic(err)
	}

	return env
}

// Compile compiles a CEL expression and returns a program.
//
//nolint:ireturn // Following CEL's function signature.
func (e *Environment) Compile(expression string) (cel.Program, error) {
	celMutex.Lock()
	defer celMutex.Unlock()

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile expression: %w", issues.Err())
	}

	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w, got %s", ErrNotBool, out)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("create program: %w", err)
	}

	return program, nil
}

// Matcher is a compiled boolean expression over a single rule.
type Matcher struct {
	program    cel.Program
	expression string
}

var (
	defaultEnv     *Environment
	defaultEnvErr  error
	defaultEnvOnce sync.Once
)

// CompileMatcher compiles expression in the shared default [Environment].
func CompileMatcher(expression string) (*Matcher, error) {
	defaultEnvOnce.Do(func() {
		defaultEnv, defaultEnvErr = NewEnvironment()
	})
	if defaultEnvErr != nil {
		return nil, defaultEnvErr
	}

	return defaultEnv.CompileMatcher(expression)
}

// CompileMatcher compiles expression into a [Matcher].
func (e *Environment) CompileMatcher(expression string) (*Matcher, error) {
	program, err := e.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("match %q: %w", expression, err)
	}

	return &Matcher{program: program, expression: expression}, nil
}

// Match evaluates the expression against r.
func (m *Matcher) Match(r *rule.Rule) (bool, error) {
	result, _, err := m.program.Eval(map[string]any{
		VarRule: Activation(r),
	})
	if err != nil {
		return false, fmt.Errorf("evaluate %q on rule %q: %w", m.expression, r.ID, err)
	}

	b, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("evaluate %q on rule %q: %w", m.expression, r.ID, ErrNotBool)
	}

	return b, nil
}

func (m *Matcher) String() string {
	return m.expression
}
