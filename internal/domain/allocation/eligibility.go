package allocation

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"stockflow/internal/core/apperror"
	"stockflow/internal/domain/batch"
)

// EligibilityRule is an operator-supplied CEL predicate that filters candidate
// batches before the strategy runs, e.g.
//
//	batch.supplier != "Acme" && !batch.expired
//
// Fields: product_code, supplier, remaining, received, price, days_to_expiry
// (-1 without expiry), expired.
type EligibilityRule struct {
	expr string
	prg  cel.Program
}

// celBatch is the typed view of a batch the rule sees as `batch`.
type celBatch struct {
	ProductCode  string  `cel:"product_code"`
	Supplier     string  `cel:"supplier"`
	Remaining    int64   `cel:"remaining"`
	Received     int64   `cel:"received"`
	Price        float64 `cel:"price"`
	DaysToExpiry int64   `cel:"days_to_expiry"`
	Expired      bool    `cel:"expired"`
}

var celBatchType = reflect.TypeOf(celBatch{})

// CompileEligibility compiles expr. An empty expression yields a nil rule,
// which admits every batch.
func CompileEligibility(expr string) (*EligibilityRule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		ext.NativeTypes(celBatchType, ext.ParseStructTags(true)),
		cel.Variable("batch", cel.ObjectType("allocation.celBatch")),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, apperror.NewValidationField("eligibility", "invalid eligibility rule").
			WithDetail("expression", expr).
			WithCause(iss.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) {
		return nil, apperror.NewValidationField("eligibility", "eligibility rule must evaluate to a boolean").
			WithDetail("expression", expr).
			WithDetail("type", out.String())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build cel program: %w", err)
	}

	return &EligibilityRule{expr: expr, prg: prg}, nil
}

// String returns the source expression.
func (r *EligibilityRule) String() string {
	if r == nil {
		return ""
	}
	return r.expr
}

// Allows evaluates the rule for one batch.
func (r *EligibilityRule) Allows(b batch.Batch, now time.Time) (bool, error) {
	if r == nil {
		return true, nil
	}

	price, _ := b.PurchasePrice.Float64()
	out, _, err := r.prg.Eval(map[string]any{
		"batch": &celBatch{
			ProductCode:  b.ProductCode,
			Supplier:     b.Supplier,
			Remaining:    int64(b.RemainingQuantity),
			Received:     int64(b.ReceivedQuantity),
			Price:        price,
			DaysToExpiry: int64(b.DaysUntilExpiry(now)),
			Expired:      b.IsExpired(now),
		},
	})
	if err != nil {
		return false, fmt.Errorf("evaluate eligibility for %s: %w", b.Label(), err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return false, apperror.NewValidationField("eligibility", "eligibility rule must evaluate to a boolean").
			WithDetail("expression", r.expr).
			WithDetail("got", fmt.Sprintf("%T", out.Value()))
	}
	return allowed, nil
}

// Filter keeps the batches the rule admits.
func (r *EligibilityRule) Filter(batches []batch.Batch, now time.Time) ([]batch.Batch, error) {
	if r == nil {
		return batches, nil
	}
	kept := make([]batch.Batch, 0, len(batches))
	for _, b := range batches {
		ok, err := r.Allows(b, now)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, b)
		}
	}
	return kept, nil
}
