package planner

// maxScanDays bounds the day-scanning loop so slot search terminates even
// on pathological inputs (inverted windows, fully blocked calendars).
const maxScanDays = 100

// FindSlot scans calendar days from the window's earliest date looking
// for the first free (day, shift) on the given reactor, trying shifts in
// policy order and skipping non-working days. The winning slot is
// reserved immediately so later fragments in the same run cannot take it.
func FindSlot(w Window, reactorID string, shifts []string, holidays map[string]bool, occ Occupancy) (Slot, bool) {
	if w.Empty() {
		return Slot{}, false
	}
	day := w.Earliest
	for i := 0; i < maxScanDays; i++ {
		if day.After(w.Latest) {
			return Slot{}, false
		}
		if IsWorkingDay(day, holidays) {
			for _, shift := range shifts {
				s := slotOn(day, reactorID, shift)
				if occ.Free(s) {
					occ.Reserve(s)
					return s, true
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return Slot{}, false
}
