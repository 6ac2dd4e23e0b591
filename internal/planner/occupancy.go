package planner

import (
	"time"

	"batchline/internal/domain"
)

// Slot is one assignable unit of reactor time.
type Slot struct {
	Day       string
	ReactorID string
	Shift     string
}

func slotOn(day time.Time, reactorID, shift string) Slot {
	return Slot{Day: day.Format(DayLayout), ReactorID: reactorID, Shift: shift}
}

// Occupancy is the set of taken slots for one scheduling run. It is a
// point-in-time snapshot: seeded once from planned orders, then mutated
// in memory as the run reserves slots. Reservations become durable only
// when the owning order commits; a failed commit simply leaves a slot
// unused for the remainder of the run.
type Occupancy map[Slot]struct{}

// Seed builds the occupancy set from orders currently holding
// assignments.
func Seed(planned []domain.Order) Occupancy {
	occ := make(Occupancy, len(planned))
	for _, o := range planned {
		if !o.Planned() {
			continue
		}
		occ.Reserve(Slot{Day: *o.PlanDate, ReactorID: *o.ReactorID, Shift: *o.Shift})
	}
	return occ
}

func (o Occupancy) Free(s Slot) bool {
	_, taken := o[s]
	return !taken
}

func (o Occupancy) Reserve(s Slot) {
	o[s] = struct{}{}
}
