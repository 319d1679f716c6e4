package expr

import (
	"github.com/hupe1980/blockidx/types"
)

// Fold performs bottom-up constant folding of boolean connectives using SQL
// three-valued logic. FALSE dominates and/and_filters, TRUE dominates or, NULL
// propagates otherwise. Equalities between two non-NULL constants and casts of
// boolean or NULL constants are folded as well. The input tree is not mutated.
func Fold(e Expr) Expr {
	switch n := e.(type) {
	case *FunctionCall:
		args := make([]Expr, len(n.Args))
		changed := false
		for i, a := range n.Args {
			args[i] = Fold(a)
			if args[i] != a {
				changed = true
			}
		}
		call := n
		if changed {
			cp := *n
			cp.Args = args
			call = &cp
		}
		return foldCall(call)

	case *Cast:
		inner := Fold(n.Expr)
		if c, ok := inner.(*Constant); ok && castable(c, n.DestType) {
			return &Constant{Span: n.Span, Scalar: c.Scalar, Type: n.DestType}
		}
		if inner == n.Expr {
			return n
		}
		cp := *n
		cp.Expr = inner
		return &cp

	default:
		return e
	}
}

func castable(c *Constant, dest types.DataType) bool {
	if c.Scalar.IsNull() {
		return dest.IsNullable()
	}
	return c.Scalar.Kind == types.KindBoolean && dest.Kind == types.KindBoolean
}

func foldCall(n *FunctionCall) Expr {
	switch n.Name {
	case FuncAnd, FuncAndFilters:
		return foldJunction(n, false)
	case FuncOr:
		return foldJunction(n, true)
	case FuncNot:
		if len(n.Args) != 1 {
			return n
		}
		switch {
		case IsConstTrue(n.Args[0]):
			return &Constant{Span: n.Span, Scalar: types.NewBool(false), Type: n.ReturnType}
		case IsConstFalse(n.Args[0]):
			return &Constant{Span: n.Span, Scalar: types.NewBool(true), Type: n.ReturnType}
		case IsConstNull(n.Args[0]):
			return nullConst(n)
		}
		return n
	case FuncXor:
		if len(n.Args) != 2 {
			return n
		}
		if IsConstNull(n.Args[0]) || IsConstNull(n.Args[1]) {
			return nullConst(n)
		}
		l, lok := boolConst(n.Args[0])
		r, rok := boolConst(n.Args[1])
		if lok && rok {
			return &Constant{Span: n.Span, Scalar: types.NewBool(l != r), Type: n.ReturnType}
		}
		return n
	case FuncEq:
		if len(n.Args) != 2 {
			return n
		}
		l, lok := n.Args[0].(*Constant)
		r, rok := n.Args[1].(*Constant)
		if !lok || !rok {
			return n
		}
		if l.Scalar.IsNull() || r.Scalar.IsNull() {
			return nullConst(n)
		}
		return &Constant{Span: n.Span, Scalar: types.NewBool(l.Scalar.Key() == r.Scalar.Key()), Type: n.ReturnType}
	default:
		return n
	}
}

// foldJunction folds and (dominant=false) or or (dominant=true).
func foldJunction(n *FunctionCall, dominant bool) Expr {
	var (
		rest    []Expr
		sawNull bool
	)
	for _, a := range n.Args {
		if v, ok := boolConst(a); ok {
			if v == dominant {
				return &Constant{Span: n.Span, Scalar: types.NewBool(dominant), Type: n.ReturnType}
			}
			continue
		}
		if IsConstNull(a) {
			sawNull = true
			continue
		}
		rest = append(rest, a)
	}

	switch {
	case len(rest) == 0 && sawNull:
		return nullConst(n)
	case len(rest) == 0:
		return &Constant{Span: n.Span, Scalar: types.NewBool(!dominant), Type: n.ReturnType}
	case sawNull:
		// x AND NULL is not x; keep the call with the neutral constants removed.
		cp := *n
		cp.Args = append(rest, nullConst(n))
		return &cp
	case len(rest) == 1:
		return rest[0]
	case len(rest) == len(n.Args):
		return n
	default:
		cp := *n
		cp.Args = rest
		return &cp
	}
}

func boolConst(e Expr) (bool, bool) {
	c, ok := e.(*Constant)
	if !ok || c.Scalar.Kind != types.KindBoolean {
		return false, false
	}
	return c.Scalar.Bool, true
}

func nullConst(n *FunctionCall) *Constant {
	return &Constant{Span: n.Span, Scalar: types.NullScalar(), Type: types.Nullable(n.ReturnType)}
}
