package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"batchline/internal/events"
	"batchline/internal/repo"
)

// AssignmentEdit is one reviewed assignment as the review UI wants it
// persisted: possibly the slot the run chose, possibly a human override.
type AssignmentEdit struct {
	OrderID   string `json:"order_id"`
	PlanDate  string `json:"plan_date" format:"date"`
	ReactorID string `json:"reactor_id"`
	Shift     string `json:"shift"`
}

// Collision describes one rejected slot: the edit that wanted it and who
// already holds it ("stored" for a row in the database, otherwise the
// sibling edit's order id).
type Collision struct {
	OrderID string `json:"order_id"`
	Slot    Slot   `json:"slot"`
	Against string `json:"against"`
}

// SlotConflictError rejects a whole confirm batch: no edit is persisted
// while any collision remains.
type SlotConflictError struct {
	Collisions []Collision
}

func (e *SlotConflictError) Error() string {
	parts := make([]string, 0, len(e.Collisions))
	for _, c := range e.Collisions {
		parts = append(parts, fmt.Sprintf("%s wants %s/%s/%s held by %s",
			c.OrderID, c.Slot.Day, c.Slot.ReactorID, c.Slot.Shift, c.Against))
	}
	return "slot conflict: " + strings.Join(parts, "; ")
}

// Confirm persists a reviewed (possibly edited) assignment set. The run's
// occupancy index went stale the moment the run ended, so every edit is
// re-validated live: against planned rows currently in storage (excluding
// the edited set itself) and against sibling edits in the same batch.
// Calendar rules are re-checked too, since a human may have typed any
// date. All edits persist in one transaction or none do.
func (e Engine) Confirm(ctx context.Context, edits []AssignmentEdit, actorID string) error {
	if len(edits) == 0 {
		return errors.New("no assignments to confirm")
	}
	pol := e.Config.Planning
	holidays, err := e.Repo.HolidaySet(ctx)
	if err != nil {
		return fmt.Errorf("load holidays: %w", err)
	}

	editedIDs := make([]string, 0, len(edits))
	for _, ed := range edits {
		editedIDs = append(editedIDs, ed.OrderID)
	}

	var collisions []Collision
	seen := map[Slot]string{}
	for _, ed := range edits {
		day, err := ParseDay(ed.PlanDate)
		if err != nil {
			return fmt.Errorf("order %s: invalid plan date %q", ed.OrderID, ed.PlanDate)
		}
		if !IsWorkingDay(day, holidays) {
			return fmt.Errorf("order %s: %s is not a working day", ed.OrderID, ed.PlanDate)
		}
		if !validShift(pol.Shifts, ed.Shift) {
			return fmt.Errorf("order %s: unknown shift %q", ed.OrderID, ed.Shift)
		}
		if _, err := e.Repo.GetReactor(ctx, ed.ReactorID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("order %s: unknown reactor %q", ed.OrderID, ed.ReactorID)
			}
			return err
		}
		slot := Slot{Day: day.Format(DayLayout), ReactorID: ed.ReactorID, Shift: ed.Shift}
		if holder, dup := seen[slot]; dup {
			collisions = append(collisions, Collision{OrderID: ed.OrderID, Slot: slot, Against: holder})
			continue
		}
		seen[slot] = ed.OrderID
		taken, err := e.Repo.SlotTaken(ctx, slot.Day, slot.ReactorID, slot.Shift, editedIDs)
		if err != nil {
			return err
		}
		if taken {
			collisions = append(collisions, Collision{OrderID: ed.OrderID, Slot: slot, Against: "stored"})
		}
	}
	if len(collisions) > 0 {
		e.Log.Warn("confirm rejected", zap.Int("collisions", len(collisions)))
		return &SlotConflictError{Collisions: collisions}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	// Blank the edited slots first so swaps within the set do not trip
	// the unique slot index on an intermediate state.
	if err := e.Repo.ClearAssignmentsTx(ctx, tx, editedIDs); err != nil {
		return err
	}
	now := e.now().UTC().Format(time.RFC3339)
	for _, ed := range edits {
		if err := e.Repo.UpdateAssignmentTx(ctx, tx, ed.OrderID, ed.PlanDate, ed.ReactorID, ed.Shift, now); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("order %s is no longer planned", ed.OrderID)
			}
			return err
		}
	}
	if err := e.Events.Append(ctx, tx, "plan.confirmed", "plan", "", actorID, events.EventPayload{
		"orders": len(edits),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func validShift(shifts []string, s string) bool {
	for _, v := range shifts {
		if v == s {
			return true
		}
	}
	return false
}
