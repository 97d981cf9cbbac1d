// Package policy gates remote calls with a CEL expression evaluated over the
// normalised request.
package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/alexisbeaulieu97/jumpgate/internal/domain/remotecall"
	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

// Variable is the name the request is bound to inside expressions, e.g.
//
//	request.os_type == "linux" && request.ip.startsWith("10.")
const Variable = "request"

// CELPolicy allows a request when the compiled expression evaluates to true.
type CELPolicy struct {
	expression string
	program    cel.Program
}

// NewCELPolicy compiles expression once. A blank expression yields a policy
// that allows every request.
func NewCELPolicy(expression string) (*CELPolicy, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return &CELPolicy{}, nil
	}

	env, err := cel.NewEnv(
		cel.Variable(Variable, cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("error compiling policy %q: %w", expression, issues.Err())
	}
	if !ast.OutputType().IsExactType(types.BoolType) && !ast.OutputType().IsExactType(types.DynType) {
		return nil, fmt.Errorf("policy %q must evaluate to a boolean, got %s", expression, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("error building policy program: %w", err)
	}
	return &CELPolicy{expression: expression, program: program}, nil
}

// Expression returns the compiled source, or "" for the allow-all policy.
func (p *CELPolicy) Expression() string { return p.expression }

// Allow implements ports.RequestPolicy.
func (p *CELPolicy) Allow(ctx context.Context, req remotecall.Request) error {
	if p.program == nil {
		return nil
	}

	result, _, err := p.program.ContextEval(ctx, map[string]interface{}{
		Variable: req.Summary(),
	})
	if err != nil {
		return remotecall.NewPolicyDeniedError(p.expression).WithContext(map[string]interface{}{
			"reason": err.Error(),
		})
	}

	allowed, ok := result.Value().(bool)
	if !ok || !allowed {
		return remotecall.NewPolicyDeniedError(p.expression)
	}
	return nil
}

var _ ports.RequestPolicy = (*CELPolicy)(nil)
