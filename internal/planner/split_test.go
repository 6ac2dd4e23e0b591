package planner

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kg(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestSplitWithinLimit(t *testing.T) {
	pieces := Split(kg(1500), kg(2000))
	require.Len(t, pieces, 1)
	assert.True(t, pieces[0].QuantityKg.Equal(kg(1500)))
	assert.Empty(t, pieces[0].Label)
}

func TestSplitExactMultiple(t *testing.T) {
	pieces := Split(kg(4000), kg(2000))
	require.Len(t, pieces, 2)
	assert.Equal(t, "T1", pieces[0].Label)
	assert.Equal(t, "T2", pieces[1].Label)
	for _, p := range pieces {
		assert.True(t, p.QuantityKg.Equal(kg(2000)))
	}
}

func TestSplitRemainderOnLastPiece(t *testing.T) {
	pieces := Split(kg(5000), kg(2000))
	require.Len(t, pieces, 3)
	assert.True(t, pieces[0].QuantityKg.Equal(kg(2000)))
	assert.True(t, pieces[1].QuantityKg.Equal(kg(2000)))
	assert.True(t, pieces[2].QuantityKg.Equal(kg(1000)))
	assert.Equal(t, []string{"T1", "T2", "T3"}, []string{pieces[0].Label, pieces[1].Label, pieces[2].Label})
}

func TestSplitConservation(t *testing.T) {
	limit := kg(700)
	for _, q := range []float64{0.5, 699.99, 700, 700.01, 1234.56, 10000, 99999.9} {
		total := kg(q)
		pieces := Split(total, limit)
		sum := decimal.Zero
		for _, p := range pieces {
			assert.True(t, p.QuantityKg.IsPositive(), "quantity %v produced a non-positive piece", q)
			assert.True(t, p.QuantityKg.LessThanOrEqual(limit))
			sum = sum.Add(p.QuantityKg)
		}
		assert.True(t, sum.Equal(total), "quantity %v: pieces sum to %s", q, sum)
		want := int(total.Div(limit).Ceil().IntPart())
		if total.LessThanOrEqual(limit) {
			want = 1
		}
		assert.Len(t, pieces, want)
	}
}
