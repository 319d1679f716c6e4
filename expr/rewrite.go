package expr

import (
	"github.com/hupe1980/blockidx/types"
)

// VisitFunc is called for every eq(column, constant) found by RewriteColumnEqConstant.
// It returns the replacement node, or nil to leave the equality untouched.
type VisitFunc func(span Span, column string, scalar types.Scalar, columnType, returnType types.DataType) (Expr, error)

// RewriteColumnEqConstant walks e and offers every eq(ColumnRef, Constant) and
// eq(Constant, ColumnRef) to visit. The input tree is never mutated: nodes on a rewritten
// path are copied and untouched subtrees are shared. Other node shapes are passed
// through, descending into casts and function arguments.
func RewriteColumnEqConstant(e Expr, visit VisitFunc) (Expr, error) {
	out, _, err := rewrite(e, visit)
	return out, err
}

func rewrite(e Expr, visit VisitFunc) (Expr, bool, error) {
	switch n := e.(type) {
	case *FunctionCall:
		if n.Name == FuncEq && len(n.Args) == 2 {
			if col, c, ok := columnEqConstant(n.Args[0], n.Args[1]); ok {
				repl, err := visit(n.Span, col.ID, c.Scalar, col.Type, n.ReturnType)
				if err != nil {
					return nil, false, err
				}
				if repl != nil {
					return repl, true, nil
				}
				return n, false, nil
			}
		}

		var args []Expr
		for i, arg := range n.Args {
			newArg, changed, err := rewrite(arg, visit)
			if err != nil {
				return nil, false, err
			}
			if !changed {
				continue
			}
			if args == nil {
				args = make([]Expr, len(n.Args))
				copy(args, n.Args)
			}
			args[i] = newArg
		}
		if args == nil {
			return n, false, nil
		}
		cp := *n
		cp.Args = args
		return &cp, true, nil

	case *Cast:
		inner, changed, err := rewrite(n.Expr, visit)
		if err != nil || !changed {
			return n, false, err
		}
		cp := *n
		cp.Expr = inner
		return &cp, true, nil

	default:
		return e, false, nil
	}
}

func columnEqConstant(a, b Expr) (*ColumnRef, *Constant, bool) {
	if col, ok := a.(*ColumnRef); ok {
		if c, ok := b.(*Constant); ok {
			return col, c, true
		}
	}
	if c, ok := a.(*Constant); ok {
		if col, ok := b.(*ColumnRef); ok {
			return col, c, true
		}
	}
	return nil, nil, false
}
