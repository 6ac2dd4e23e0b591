package planner

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Piece is one sub-batch of an order's quantity after splitting.
type Piece struct {
	QuantityKg decimal.Decimal
	Label      string
}

// Split decomposes a quantity into pieces no larger than limit. A
// quantity within the limit yields a single unlabeled piece; otherwise
// pieces are labeled T1..Tn and the last piece absorbs the remainder, so
// the sum of pieces always equals the input exactly.
func Split(quantity, limit decimal.Decimal) []Piece {
	if quantity.LessThanOrEqual(limit) {
		return []Piece{{QuantityKg: quantity}}
	}
	parts := int(quantity.Div(limit).Ceil().IntPart())
	pieces := make([]Piece, 0, parts)
	remaining := quantity
	for i := 1; i <= parts; i++ {
		q := limit
		if remaining.LessThan(limit) {
			q = remaining
		}
		pieces = append(pieces, Piece{QuantityKg: q, Label: fmt.Sprintf("T%d", i)})
		remaining = remaining.Sub(q)
	}
	return pieces
}
