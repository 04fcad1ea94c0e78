// Package reconciliation compares physical counts with the ledger and turns
// accepted discrepancies into compensating count adjustments.
package reconciliation

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
)

// Facts are the inputs of a severity decision.
type Facts struct {
	TheoreticalQuantity types.Quantity
	PhysicalQuantity    types.Quantity
	DeltaQuantity       types.Quantity
	DeltaValue          types.Money
	// Ratio = |delta| / max(theoretical, 1).
	Ratio decimal.Decimal
}

// Policy decides whether a non-zero discrepancy is significant.
type Policy interface {
	Significant(f Facts) (bool, error)
}

// Thresholds is the default policy.
type Thresholds struct {
	// Ratio is the relative delta from which a discrepancy is significant.
	Ratio decimal.Decimal
	// Value is the absolute monetary delta from which a discrepancy is significant.
	// Zero disables the monetary rule.
	Value types.Money
}

// DefaultThresholds returns a 10% ratio with no monetary rule.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Ratio: decimal.NewFromFloat(0.10),
		Value: types.Zero(),
	}
}

// Significant implements Policy.
func (t Thresholds) Significant(f Facts) (bool, error) {
	if f.Ratio.GreaterThanOrEqual(t.Ratio) {
		return true, nil
	}
	if t.Value.IsPositive() && f.DeltaValue.Abs().GreaterThanOrEqual(t.Value) {
		return true, nil
	}
	return false, nil
}

// ExpressionPolicy evaluates a CEL expression returning bool. Available variables:
// delta_quantity, theoretical_quantity, physical_quantity, delta_value, ratio,
// ratio_threshold, value_threshold (all double).
type ExpressionPolicy struct {
	expr       string
	program    cel.Program
	thresholds Thresholds
}

// NewExpressionPolicy compiles expr. The thresholds are exposed to the expression.
func NewExpressionPolicy(expr string, thresholds Thresholds) (*ExpressionPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("delta_quantity", cel.DoubleType),
		cel.Variable("theoretical_quantity", cel.DoubleType),
		cel.Variable("physical_quantity", cel.DoubleType),
		cel.Variable("delta_value", cel.DoubleType),
		cel.Variable("ratio", cel.DoubleType),
		cel.Variable("ratio_threshold", cel.DoubleType),
		cel.Variable("value_threshold", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, apperror.NewValidation("invalid severity expression").
			WithDetail("expression", expr).
			WithCause(iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build cel program: %w", err)
	}

	p := &ExpressionPolicy{expr: expr, program: prg, thresholds: thresholds}
	// A probe evaluation catches expressions that do not yield bool.
	if _, err := p.Significant(Facts{Ratio: decimal.Zero, DeltaValue: types.Zero()}); err != nil {
		return nil, err
	}
	return p, nil
}

// Significant implements Policy.
func (p *ExpressionPolicy) Significant(f Facts) (bool, error) {
	out, _, err := p.program.Eval(map[string]any{
		"delta_quantity":       f.DeltaQuantity.Decimal().InexactFloat64(),
		"theoretical_quantity": f.TheoreticalQuantity.Decimal().InexactFloat64(),
		"physical_quantity":    f.PhysicalQuantity.Decimal().InexactFloat64(),
		"delta_value":          f.DeltaValue.InexactFloat64(),
		"ratio":                f.Ratio.InexactFloat64(),
		"ratio_threshold":      p.thresholds.Ratio.InexactFloat64(),
		"value_threshold":      p.thresholds.Value.InexactFloat64(),
	})
	if err != nil {
		return false, apperror.NewValidation("severity expression failed").
			WithDetail("expression", p.expr).
			WithCause(err)
	}
	significant, ok := out.Value().(bool)
	if !ok {
		return false, apperror.NewValidation("severity expression must return bool").
			WithDetail("expression", p.expr)
	}
	return significant, nil
}

// String returns the source expression.
func (p *ExpressionPolicy) String() string { return p.expr }
