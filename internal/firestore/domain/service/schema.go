package service

import (
	"fmt"
	"sync"
	"time"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/shared/errors"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"
)

// Rule is one CEL condition a document must satisfy. The expression sees the document
// as `data`, its path as `path` and its id as `id`.
type Rule struct {
	Field   string
	Expr    string
	Message string
}

// Schema validates document bodies before they are written.
type Schema struct {
	rules    []Rule
	programs []cel.Program
}

var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error

	programsMu sync.RWMutex
	programs   = map[string]cel.Program{}
)

func schemaEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Declarations(
				decls.NewVar("data", decls.NewMapType(decls.String, decls.Dyn)),
				decls.NewVar("path", decls.String),
				decls.NewVar("id", decls.String),
			),
		)
	})
	return celEnv, celEnvErr
}

// NewSchema compiles the rules. Programs are cached per expression across schemas.
func NewSchema(rules ...Rule) (*Schema, error) {
	s := &Schema{rules: rules, programs: make([]cel.Program, len(rules))}
	for i, rule := range rules {
		program, err := compileRule(rule.Expr)
		if err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("invalid schema rule %q", rule.Expr)).
				WithCause(err).
				WithKind(errors.ErrSchemaViolation)
		}
		s.programs[i] = program
	}
	return s, nil
}

// MustSchema is NewSchema for rules known at init time.
func MustSchema(rules ...Rule) *Schema {
	s, err := NewSchema(rules...)
	if err != nil {
		panic(err)
	}
	return s
}

func compileRule(expr string) (cel.Program, error) {
	programsMu.RLock()
	program, ok := programs[expr]
	programsMu.RUnlock()
	if ok {
		return program, nil
	}

	env, err := schemaEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}
	program, err = env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	programsMu.Lock()
	programs[expr] = program
	programsMu.Unlock()
	return program, nil
}

// Validate evaluates every rule and reports all failures at once. data is a document
// body in application form.
func (s *Schema) Validate(path string, data map[string]any) error {
	if s == nil {
		return nil
	}
	id := ""
	if ref, err := model.PathToRef[any](path); err == nil {
		id = ref.ID
	}
	vars := map[string]any{
		"data": celValue(data),
		"path": path,
		"id":   id,
	}

	failures := errors.NewValidationErrors()
	for i, program := range s.programs {
		rule := s.rules[i]
		out, _, err := program.Eval(vars)
		if err != nil {
			failures.Add(rule.Field, fmt.Sprintf("%s: %v", ruleMessage(rule), err), rule.Expr)
			continue
		}
		if ok, isBool := out.Value().(bool); !isBool || !ok {
			failures.Add(rule.Field, ruleMessage(rule), rule.Expr)
		}
	}
	if failures.HasErrors() {
		return failures.ToAppError()
	}
	return nil
}

func ruleMessage(r Rule) string {
	if r.Message != "" {
		return r.Message
	}
	return fmt.Sprintf("rule %q failed", r.Expr)
}

// celValue maps application values onto types CEL understands. References become their
// path and anything CEL cannot represent becomes null.
func celValue(v any) any {
	switch t := v.(type) {
	case nil, bool, string, int64, float64, []byte, time.Time:
		return t
	case int:
		return int64(t)
	case model.Reference:
		return t.Path()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = celValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = celValue(item)
		}
		return out
	}
	return nil
}
