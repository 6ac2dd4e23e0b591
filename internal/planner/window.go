package planner

import (
	"time"

	"batchline/internal/config"
)

// Window is the permissible start-date range for one sub-batch.
type Window struct {
	Earliest time.Time
	Latest   time.Time
}

// Empty reports whether no start date can satisfy the constraints.
func (w Window) Empty() bool {
	return w.Earliest.After(w.Latest)
}

// Contains reports whether day lies within the window.
func (w Window) Contains(day time.Time) bool {
	return !day.Before(w.Earliest) && !day.After(w.Latest)
}

// ComputeWindow derives the window from the order date (today when
// unknown), the deadline, and the planning policy:
//
//	earliest = max(today, orderDate+minLead, deadline-maxWindow)
//	latest   = deadline - buffer
//
// All inputs must be normalized days.
func ComputeWindow(today time.Time, orderDate *time.Time, deadline time.Time, pol config.Planning) Window {
	placed := today
	if orderDate != nil {
		placed = *orderDate
	}
	earliest := placed.AddDate(0, 0, pol.MinLeadDays)
	if earliest.Before(today) {
		earliest = today
	}
	if opens := deadline.AddDate(0, 0, -pol.MaxWindowDays); earliest.Before(opens) {
		earliest = opens
	}
	return Window{
		Earliest: earliest,
		Latest:   deadline.AddDate(0, 0, -pol.BufferDays),
	}
}
