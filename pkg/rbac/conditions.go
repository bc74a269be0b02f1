package rbac

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/sirupsen/logrus"
)

// evaluator applies conditions to an evaluation context. Evaluation can
// never abort a decision: unknown operators, type mismatches, missing
// fields, bad patterns, unregistered functions and failing expressions
// all evaluate to false.
type evaluator struct {
	logger *logrus.Logger

	mu       sync.RWMutex
	funcs    map[string]PredicateFunc
	programs map[string]*vm.Program
	patterns map[string]*regexp.Regexp
}

func newEvaluator(logger *logrus.Logger) *evaluator {
	return &evaluator{
		logger:   logger,
		funcs:    make(map[string]PredicateFunc),
		programs: make(map[string]*vm.Program),
		patterns: make(map[string]*regexp.Regexp),
	}
}

func (e *evaluator) registerFunction(name string, fn PredicateFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.funcs[name] = fn
}

// evaluate returns whether the condition holds for the context
func (e *evaluator) evaluate(cond *Condition, ec *EvalContext) bool {
	switch cond.Type {
	case ConditionUser:
		subject, found := lookupPath(ec.userView(), cond.Field)
		return e.compare(cond, subject, found)
	case ConditionResource:
		subject, found := lookupPath(ec.resourceView(), cond.Field)
		return e.compare(cond, subject, found)
	case ConditionContext:
		subject, found := lookupPath(ec.contextView(), cond.Field)
		return e.compare(cond, subject, found)
	case ConditionFunction:
		return e.evaluateFunction(cond, ec)
	case ConditionExpression:
		return e.evaluateExpression(cond, ec)
	default:
		e.logger.Debugf("condition type %q unknown, denying", cond.Type)
		return false
	}
}

// compare applies the condition's operator to the looked-up subject.
// A missing field satisfies only the negative operators: "status ne
// published" holds for a record with no status at all.
func (e *evaluator) compare(cond *Condition, subject interface{}, found bool) bool {
	if !found {
		return cond.Operator == OperatorNe || cond.Operator == OperatorNin
	}

	switch cond.Operator {
	case OperatorEq:
		return looseEqual(subject, cond.Value)
	case OperatorNe:
		return !looseEqual(subject, cond.Value)
	case OperatorGt:
		cmp, ok := compareOrdered(subject, cond.Value)
		return ok && cmp > 0
	case OperatorGte:
		cmp, ok := compareOrdered(subject, cond.Value)
		return ok && cmp >= 0
	case OperatorLt:
		cmp, ok := compareOrdered(subject, cond.Value)
		return ok && cmp < 0
	case OperatorLte:
		cmp, ok := compareOrdered(subject, cond.Value)
		return ok && cmp <= 0
	case OperatorIn:
		return valueInList(subject, cond.Value)
	case OperatorNin:
		return !valueInList(subject, cond.Value)
	case OperatorContains:
		return containsValue(subject, cond.Value)
	case OperatorRegex:
		return e.matchPattern(subject, cond.Value)
	default:
		e.logger.Debugf("operator %q unknown, denying", cond.Operator)
		return false
	}
}

func (e *evaluator) evaluateFunction(cond *Condition, ec *EvalContext) bool {
	fn := cond.Func
	if fn == nil && cond.Function != "" {
		e.mu.RLock()
		fn = e.funcs[cond.Function]
		e.mu.RUnlock()
	}
	if fn == nil {
		e.logger.Debugf("function condition %q has no predicate, denying", cond.Function)
		return false
	}
	return e.callPredicate(fn, ec)
}

// callPredicate guards registered predicates: a panicking predicate
// denies instead of crashing the decision path.
func (e *evaluator) callPredicate(fn PredicateFunc, ec *EvalContext) (allowed bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warnf("condition predicate panicked: %v", r)
			allowed = false
		}
	}()
	return fn(ec)
}

func (e *evaluator) evaluateExpression(cond *Condition, ec *EvalContext) bool {
	prog, err := e.compileExpression(cond.Expression)
	if err != nil {
		e.logger.Debugf("expression %q does not compile: %v", cond.Expression, err)
		return false
	}
	env := ec.contextView()
	env["env"] = ec.Env
	out, err := expr.Run(prog, env)
	if err != nil {
		e.logger.Debugf("expression %q failed: %v", cond.Expression, err)
		return false
	}
	allowed, ok := out.(bool)
	return ok && allowed
}

func (e *evaluator) compileExpression(src string) (*vm.Program, error) {
	e.mu.RLock()
	prog, ok := e.programs[src]
	e.mu.RUnlock()
	if ok {
		return prog, nil
	}

	prog, err := expr.Compile(src, expr.AsBool())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs[src] = prog
	e.mu.Unlock()
	return prog, nil
}

func (e *evaluator) matchPattern(subject, pattern interface{}) bool {
	s, ok := subject.(string)
	if !ok {
		return false
	}
	p, ok := pattern.(string)
	if !ok {
		return false
	}

	e.mu.RLock()
	re, ok := e.patterns[p]
	e.mu.RUnlock()
	if !ok {
		var err error
		re, err = regexp.Compile(p)
		if err != nil {
			e.logger.Debugf("regex %q does not compile: %v", p, err)
			return false
		}
		e.mu.Lock()
		e.patterns[p] = re
		e.mu.Unlock()
	}
	return re.MatchString(s)
}

// userView exposes the user to user-scoped conditions: attribute bag keys
// at the top level plus the typed id and roles fields, which win on
// collision.
func (ec *EvalContext) userView() map[string]interface{} {
	if ec.User == nil {
		return map[string]interface{}{}
	}
	view := make(map[string]interface{}, len(ec.User.Attributes)+2)
	for k, v := range ec.User.Attributes {
		view[k] = v
	}
	view["id"] = ec.User.ID
	view["roles"] = ec.User.Roles
	return view
}

// resourceView exposes the resource to resource-scoped conditions
func (ec *EvalContext) resourceView() map[string]interface{} {
	view := make(map[string]interface{}, len(ec.Resource.Attributes)+2)
	for k, v := range ec.Resource.Attributes {
		view[k] = v
	}
	view["type"] = ec.Resource.Type
	view["id"] = ec.Resource.ID
	return view
}

// contextView merges the whole evaluation context for context-scoped
// conditions and expressions: ambient Env keys at the top level, then the
// user, action and resource entries, which win on collision. Dot paths
// such as "user.department" or "resource.status" traverse into the
// nested views.
func (ec *EvalContext) contextView() map[string]interface{} {
	view := make(map[string]interface{}, len(ec.Env)+3)
	for k, v := range ec.Env {
		view[k] = v
	}
	view["user"] = ec.userView()
	view["action"] = ec.Action
	view["resource"] = ec.resourceView()
	return view
}

// lookupPath resolves a dot-separated path against nested maps. The
// second return reports whether the full path resolved.
func lookupPath(root map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	var current interface{} = root
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// looseEqual compares two values the way a decision sees them after a
// JSON round trip: numbers compare numerically across int/float types,
// everything else by deep equality.
func looseEqual(a, b interface{}) bool {
	af, aok := toFloat64(a)
	bf, bok := toFloat64(b)
	if aok && bok {
		return af == bf
	}
	if aok != bok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// compareOrdered orders two values when both are numeric or both are
// strings. The second return is false for anything else, which the
// caller treats as a failed comparison.
func compareOrdered(a, b interface{}) (int, bool) {
	af, aok := toFloat64(a)
	bf, bok := toFloat64(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// valueInList reports whether subject appears in the condition's array
// value. Non-slice values never match.
func valueInList(subject, list interface{}) bool {
	switch l := list.(type) {
	case []interface{}:
		for _, item := range l {
			if looseEqual(subject, item) {
				return true
			}
		}
		return false
	case []string:
		s, ok := subject.(string)
		if !ok {
			return false
		}
		for _, item := range l {
			if item == s {
				return true
			}
		}
		return false
	}

	rv := reflect.ValueOf(list)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if looseEqual(subject, rv.Index(i).Interface()) {
			return true
		}
	}
	return false
}

// containsValue tests the subject side: substring when the subject is a
// string, element membership when the subject is a slice.
func containsValue(subject, value interface{}) bool {
	if s, ok := subject.(string); ok {
		sub, ok := value.(string)
		return ok && strings.Contains(s, sub)
	}

	rv := reflect.ValueOf(subject)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if looseEqual(rv.Index(i).Interface(), value) {
			return true
		}
	}
	return false
}
