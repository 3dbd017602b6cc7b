package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
	"stockflow/internal/domain/batch"
)

func TestCompileEligibility_EmptyAdmitsAll(t *testing.T) {
	rule, err := CompileEligibility("  ")
	require.NoError(t, err)
	assert.Nil(t, rule)

	in := []batch.Batch{mkBatch(1, "2024-12-01", "")}
	out, err := rule.Filter(in, testNow)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCompileEligibility_InvalidExpression(t *testing.T) {
	_, err := CompileEligibility("batch.supplier ==")
	require.Error(t, err)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestEligibility_FiltersBySupplierAndExpiry(t *testing.T) {
	rule, err := CompileEligibility(`batch.supplier != "Acme" && batch.days_to_expiry != 0`)
	require.NoError(t, err)
	assert.Contains(t, rule.String(), "Acme")

	acme := mkBatch(10, "2024-12-01", "2025-03-01")
	acme.Supplier = "Acme"
	expiresToday := mkBatch(10, "2024-12-01", "2025-01-01")
	ok := mkBatch(10, "2024-12-01", "")
	ok.Supplier = "Fresh Farms"

	out, err := rule.Filter([]batch.Batch{acme, expiresToday, ok}, testNow)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, ok.ID, out[0].ID)
}

func TestCompileEligibility_RejectsNonBooleanRule(t *testing.T) {
	for _, expr := range []string{`batch.remaining`, `batch.supplier`, `batch.price * 2.0`} {
		_, err := CompileEligibility(expr)
		require.Error(t, err, expr)
		assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
		assert.Contains(t, err.Error(), "must evaluate to a boolean")
	}
}

func TestCompileEligibility_RejectsUnknownField(t *testing.T) {
	_, err := CompileEligibility(`batch.colour == "red"`)
	require.Error(t, err)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestEligibility_TypedFields(t *testing.T) {
	rule, err := CompileEligibility(`batch.remaining >= 5 && batch.price < 2.0 && batch.days_to_expiry != 0`)
	require.NoError(t, err)

	ok, err := rule.Allows(mkBatch(6, "2024-12-01", "2025-01-20"), testNow)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rule.Allows(mkBatch(3, "2024-12-01", ""), testNow)
	require.NoError(t, err)
	assert.False(t, ok)
}
