package planner

import (
	"github.com/shopspring/decimal"

	"batchline/internal/domain"
)

// SelectReactor picks a reactor for a sub-batch quantity. Reactors must
// be active and sorted ascending by capacity; the first one that fits
// wins (best fit: smallest reactor that still holds the batch). When none
// is large enough the largest reactor is used anyway and overflow is
// reported true, so a capacity overrun is placed rather than dropped but
// stays visible to reviewers. ok is false only when no reactor is
// available at all.
func SelectReactor(reactors []domain.Reactor, quantity decimal.Decimal) (chosen domain.Reactor, overflow, ok bool) {
	if len(reactors) == 0 {
		return domain.Reactor{}, false, false
	}
	for _, re := range reactors {
		if re.CapacityKg.GreaterThanOrEqual(quantity) {
			return re, false, true
		}
	}
	return reactors[len(reactors)-1], true, true
}
