package navigator

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"reflect"
	"strconv"
	"strings"
)

// EvalCondition evaluates a branch or trigger condition against vars. An
// empty condition always holds. A condition consisting of a single unknown
// word is compared with vars["status"], so "success" reads as
// status == "success".
func EvalCondition(cond string, vars map[string]any) (bool, error) {
	src := normalizeCondition(cond)
	if src == "" {
		return true, nil
	}
	expr, err := parser.ParseExpr(src)
	if err != nil {
		return false, fmt.Errorf("parse condition %q: %w", cond, err)
	}
	if id, ok := expr.(*ast.Ident); ok && !isKeyword(id.Name) {
		if _, known := vars[id.Name]; !known {
			return equal(vars["status"], id.Name), nil
		}
	}
	v, err := eval(expr, vars)
	if err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", cond, err)
	}
	return truthy(v), nil
}

func normalizeCondition(cond string) string {
	s := strings.TrimSpace(cond)
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		s = strings.TrimSpace(s[2 : len(s)-1])
	}
	s = strings.ReplaceAll(s, "===", "==")
	s = strings.ReplaceAll(s, "!==", "!=")
	return requote(s)
}

// requote turns single-quoted string literals into Go string literals.
func requote(s string) string {
	if !strings.Contains(s, "'") {
		return s
	}
	var b strings.Builder
	inDouble := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && inDouble && i+1 < len(s):
			b.WriteByte(c)
			i++
			b.WriteByte(s[i])
		case c == '"':
			inDouble = !inDouble
			b.WriteByte(c)
		case c == '\'' && !inDouble:
			end := strings.IndexByte(s[i+1:], '\'')
			if end < 0 {
				b.WriteString(s[i:])
				return b.String()
			}
			b.WriteString(strconv.Quote(s[i+1 : i+1+end]))
			i += end + 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isKeyword(name string) bool {
	switch name {
	case "true", "false", "nil", "null", "undefined":
		return true
	}
	return false
}

func eval(e ast.Expr, vars map[string]any) (any, error) {
	switch n := e.(type) {
	case *ast.ParenExpr:
		return eval(n.X, vars)
	case *ast.BasicLit:
		return literal(n)
	case *ast.Ident:
		switch n.Name {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "nil", "null", "undefined":
			return nil, nil
		}
		return vars[n.Name], nil
	case *ast.SelectorExpr:
		base, err := eval(n.X, vars)
		if err != nil {
			return nil, err
		}
		return field(base, n.Sel.Name), nil
	case *ast.IndexExpr:
		base, err := eval(n.X, vars)
		if err != nil {
			return nil, err
		}
		idx, err := eval(n.Index, vars)
		if err != nil {
			return nil, err
		}
		return index(base, idx), nil
	case *ast.CallExpr:
		return call(n, vars)
	case *ast.UnaryExpr:
		x, err := eval(n.X, vars)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case token.NOT:
			return !truthy(x), nil
		case token.SUB:
			f, ok := number(x)
			if !ok {
				return nil, fmt.Errorf("cannot negate %T", x)
			}
			return -f, nil
		}
		return nil, fmt.Errorf("unsupported unary operator %s", n.Op)
	case *ast.BinaryExpr:
		return binary(n, vars)
	}
	return nil, fmt.Errorf("unsupported expression %T", e)
}

func literal(n *ast.BasicLit) (any, error) {
	switch n.Kind {
	case token.INT, token.FLOAT:
		return strconv.ParseFloat(n.Value, 64)
	case token.STRING:
		return strconv.Unquote(n.Value)
	case token.CHAR:
		s, err := strconv.Unquote(n.Value)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unsupported literal %s", n.Value)
}

func binary(n *ast.BinaryExpr, vars map[string]any) (any, error) {
	x, err := eval(n.X, vars)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case token.LAND:
		if !truthy(x) {
			return false, nil
		}
		y, err := eval(n.Y, vars)
		return truthy(y), err
	case token.LOR:
		if truthy(x) {
			return true, nil
		}
		y, err := eval(n.Y, vars)
		return truthy(y), err
	}

	y, err := eval(n.Y, vars)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case token.EQL:
		return equal(x, y), nil
	case token.NEQ:
		return !equal(x, y), nil
	case token.LSS, token.LEQ, token.GTR, token.GEQ:
		c, ok := compare(x, y)
		if !ok {
			return false, nil
		}
		switch n.Op {
		case token.LSS:
			return c < 0, nil
		case token.LEQ:
			return c <= 0, nil
		case token.GTR:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	case token.ADD:
		if xs, ok := x.(string); ok {
			return xs + fmt.Sprint(y), nil
		}
		fallthrough
	case token.SUB, token.MUL, token.QUO:
		a, aok := number(x)
		b, bok := number(y)
		if !aok || !bok {
			return nil, fmt.Errorf("operator %s needs numbers, got %T and %T", n.Op, x, y)
		}
		switch n.Op {
		case token.ADD:
			return a + b, nil
		case token.SUB:
			return a - b, nil
		case token.MUL:
			return a * b, nil
		default:
			if b == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return a / b, nil
		}
	}
	return nil, fmt.Errorf("unsupported operator %s", n.Op)
}

func call(n *ast.CallExpr, vars map[string]any) (any, error) {
	fn, ok := n.Fun.(*ast.Ident)
	if !ok || len(n.Args) != 1 {
		return nil, fmt.Errorf("unsupported call")
	}
	arg, err := eval(n.Args[0], vars)
	if err != nil {
		return nil, err
	}
	switch fn.Name {
	case "len":
		if arg == nil {
			return float64(0), nil
		}
		rv := reflect.ValueOf(arg)
		switch rv.Kind() {
		case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
			return float64(rv.Len()), nil
		}
		return float64(0), nil
	case "exists":
		return arg != nil, nil
	}
	return nil, fmt.Errorf("unknown function %s", fn.Name)
}

func field(base any, name string) any {
	if m, ok := base.(map[string]any); ok {
		return m[name]
	}
	return nil
}

func index(base, idx any) any {
	switch b := base.(type) {
	case map[string]any:
		if k, ok := idx.(string); ok {
			return b[k]
		}
	case []any:
		if f, ok := number(idx); ok {
			i := int(f)
			if i >= 0 && i < len(b) {
				return b[i]
			}
		}
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func equal(x, y any) bool {
	if x == nil || y == nil {
		return x == nil && y == nil
	}
	if a, ok := number(x); ok {
		if b, ok := number(y); ok {
			return a == b
		}
	}
	switch a := x.(type) {
	case string:
		b, ok := y.(string)
		return ok && a == b
	case bool:
		b, ok := y.(bool)
		return ok && a == b
	}
	return reflect.DeepEqual(x, y)
}

func compare(x, y any) (int, bool) {
	if a, ok := number(x); ok {
		if b, ok := number(y); ok {
			switch {
			case a < b:
				return -1, true
			case a > b:
				return 1, true
			}
			return 0, true
		}
	}
	if a, ok := x.(string); ok {
		if b, ok := y.(string); ok {
			return strings.Compare(a, b), true
		}
	}
	return 0, false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if f, ok := number(v); ok {
		return f != 0
	}
	return true
}
