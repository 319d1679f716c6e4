// Package expr defines the typed scalar expression trees that block filter indexes
// evaluate, together with a copy-on-write rewriter and a boolean constant folder.
package expr

import (
	"fmt"
	"strings"

	"github.com/hupe1980/blockidx/types"
)

// Function names understood by the folder and the equality rewriter.
const (
	FuncEq         = "eq"
	FuncAnd        = "and"
	FuncOr         = "or"
	FuncNot        = "not"
	FuncXor        = "xor"
	FuncAndFilters = "and_filters"
)

// Span is an optional source location carried through rewrites.
type Span struct {
	Start int
	End   int
}

// Expr is a node of a typed expression tree. Nodes are immutable once built.
type Expr interface {
	// Position returns the source span of the node.
	Position() Span
	// DataType returns the result type of the node.
	DataType() types.DataType
	String() string

	node()
}

// FunctionCall applies a named function to its arguments.
type FunctionCall struct {
	Span       Span
	Name       string
	Args       []Expr
	ReturnType types.DataType
}

// ColumnRef references a column by name.
type ColumnRef struct {
	Span Span
	ID   string
	Type types.DataType
}

// Constant is a typed literal.
type Constant struct {
	Span   Span
	Scalar types.Scalar
	Type   types.DataType
}

// Cast converts Expr to DestType.
type Cast struct {
	Span     Span
	Expr     Expr
	DestType types.DataType
}

func (e *FunctionCall) Position() Span            { return e.Span }
func (e *FunctionCall) DataType() types.DataType { return e.ReturnType }
func (e *FunctionCall) node()                    {}

func (e *FunctionCall) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(args, ", "))
}

func (e *ColumnRef) Position() Span            { return e.Span }
func (e *ColumnRef) DataType() types.DataType { return e.Type }
func (e *ColumnRef) String() string           { return e.ID }
func (e *ColumnRef) node()                    {}

func (e *Constant) Position() Span            { return e.Span }
func (e *Constant) DataType() types.DataType { return e.Type }
func (e *Constant) String() string           { return e.Scalar.String() }
func (e *Constant) node()                    {}

func (e *Cast) Position() Span            { return e.Span }
func (e *Cast) DataType() types.DataType { return e.DestType }
func (e *Cast) String() string           { return fmt.Sprintf("CAST(%s AS %s)", e.Expr, e.DestType) }
func (e *Cast) node()                    {}

// Col returns a column reference.
func Col(id string, t types.DataType) *ColumnRef {
	return &ColumnRef{ID: id, Type: t}
}

// Lit returns a constant typed after its scalar. NULL literals get the Null type.
func Lit(s types.Scalar) *Constant {
	return &Constant{Scalar: s, Type: s.DataType()}
}

// Bool returns a boolean constant of the given type.
func Bool(v bool, t types.DataType) *Constant {
	return &Constant{Scalar: types.NewBool(v), Type: t}
}

// Call returns a function call node.
func Call(name string, ret types.DataType, args ...Expr) *FunctionCall {
	return &FunctionCall{Name: name, Args: args, ReturnType: ret}
}

// CastTo wraps e in a cast to t.
func CastTo(e Expr, t types.DataType) *Cast {
	return &Cast{Expr: e, DestType: t}
}

// Eq returns eq(l, r). The result is a nullable boolean when either side is nullable.
func Eq(l, r Expr) *FunctionCall {
	return Call(FuncEq, boolResult(l, r), l, r)
}

// And returns and(args...).
func And(args ...Expr) *FunctionCall { return Call(FuncAnd, boolResult(args...), args...) }

// Or returns or(args...).
func Or(args ...Expr) *FunctionCall { return Call(FuncOr, boolResult(args...), args...) }

// Xor returns xor(l, r).
func Xor(l, r Expr) *FunctionCall { return Call(FuncXor, boolResult(l, r), l, r) }

// Not returns not(e).
func Not(e Expr) *FunctionCall { return Call(FuncNot, boolResult(e), e) }

// AndFilters returns and_filters(args...), the conjunction of pushed down filters.
func AndFilters(args ...Expr) *FunctionCall {
	return Call(FuncAndFilters, boolResult(args...), args...)
}

func boolResult(args ...Expr) types.DataType {
	for _, a := range args {
		if a.DataType().IsNullable() {
			return types.Nullable(types.Boolean)
		}
	}
	return types.Boolean
}

// IsConstFalse reports whether e is the boolean constant false.
func IsConstFalse(e Expr) bool {
	c, ok := e.(*Constant)
	return ok && c.Scalar.Kind == types.KindBoolean && !c.Scalar.Bool
}

// IsConstTrue reports whether e is the boolean constant true.
func IsConstTrue(e Expr) bool {
	c, ok := e.(*Constant)
	return ok && c.Scalar.Kind == types.KindBoolean && c.Scalar.Bool
}

// IsConstNull reports whether e is the NULL constant.
func IsConstNull(e Expr) bool {
	c, ok := e.(*Constant)
	return ok && c.Scalar.IsNull()
}
