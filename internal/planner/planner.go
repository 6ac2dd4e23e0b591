package planner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"batchline/internal/config"
	"batchline/internal/domain"
	"batchline/internal/events"
	"batchline/internal/repo"
)

// Engine runs scheduling passes over the order book. A run is a single
// logical unit of work: orders are processed sequentially because slot
// reservation mutates shared state later orders must observe.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Log    *zap.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config, log *zap.Logger) Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Log:    log,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ErrConcurrentModification marks an order whose source row vanished
// between loading and commit: another run or process already claimed it.
var ErrConcurrentModification = errors.New("order concurrently modified")

type RunOptions struct {
	// OrderIDs restricts the run to a subset of orders; empty means every
	// eligible pending order.
	OrderIDs []string
	ActorID  string
}

type RunReport struct {
	PlannedCount int               `json:"planned_count"`
	SplitCount   int               `json:"split_count"`
	SkippedCount int               `json:"skipped_count"`
	Assignments  []domain.Fragment `json:"assignments"`
}

// fragment is the transient per-piece outcome before materialization.
type fragment struct {
	piece    Piece
	resolved bool
	slot     Slot
	overflow bool
}

// Run executes one scheduling pass: load inputs, process eligible orders
// most-urgent-first, commit each order's fragments atomically. Failures
// are local to one order; the report always reflects best-effort partial
// progress.
func (e Engine) Run(ctx context.Context, opts RunOptions) (RunReport, error) {
	var report RunReport
	if e.Config == nil {
		return report, errors.New("config not loaded")
	}
	pol := e.Config.Planning

	reactors, err := e.Repo.ListReactors(ctx, true)
	if err != nil {
		return report, fmt.Errorf("load reactors: %w", err)
	}
	holidays, err := e.Repo.HolidaySet(ctx)
	if err != nil {
		return report, fmt.Errorf("load holidays: %w", err)
	}
	planned, err := e.Repo.PlannedOrders(ctx)
	if err != nil {
		return report, fmt.Errorf("load planned orders: %w", err)
	}
	// EligibleOrders already sorts by deadline then id: earliest deadline
	// gets first pick of scarce slots, ties stay deterministic.
	orders, err := e.Repo.EligibleOrders(ctx, opts.OrderIDs)
	if err != nil {
		return report, fmt.Errorf("load pending orders: %w", err)
	}

	occ := Seed(planned)
	today := Day(e.now())
	limit := pol.BatchLimit()

	for _, order := range orders {
		deadline, err := ParseDay(*order.Deadline)
		if err != nil {
			e.Log.Warn("order skipped: bad deadline",
				zap.String("order_id", order.ID), zap.Error(err))
			e.appendSkipEvent(ctx, opts.ActorID, order.ID, "bad_deadline")
			report.SkippedCount++
			continue
		}
		var orderDate *time.Time
		if order.OrderDate != nil {
			d, err := ParseDay(*order.OrderDate)
			if err != nil {
				e.Log.Warn("order has bad order date, using today",
					zap.String("order_id", order.ID), zap.Error(err))
			} else {
				orderDate = &d
			}
		}
		window := ComputeWindow(today, orderDate, deadline, pol)

		pieces := Split(order.QuantityKg, limit)
		frags := make([]fragment, 0, len(pieces))
		resolved := 0
		for _, piece := range pieces {
			f := fragment{piece: piece}
			if !window.Empty() {
				if re, overflow, ok := SelectReactor(reactors, piece.QuantityKg); ok {
					if slot, found := FindSlot(window, re.ID, pol.Shifts, holidays, occ); found {
						f.resolved = true
						f.slot = slot
						f.overflow = overflow
						resolved++
					}
				}
			}
			frags = append(frags, f)
		}

		split := len(frags) > 1
		if resolved == 0 && !split {
			// A single indivisible order that could not be placed stays
			// untouched; no churn.
			continue
		}

		rows, plannedFrags := e.materialize(order, frags)
		if err := e.commitOrder(ctx, order, rows, split, opts.ActorID); err != nil {
			reason := "commit_failed"
			if errors.Is(err, ErrConcurrentModification) {
				reason = "concurrent_modification"
				e.Log.Warn("order skipped: lost commit race",
					zap.String("order_id", order.ID))
			} else {
				e.Log.Warn("order skipped: commit failed",
					zap.String("order_id", order.ID), zap.Error(err))
			}
			e.appendSkipEvent(ctx, opts.ActorID, order.ID, reason)
			report.SkippedCount++
			continue
		}
		report.PlannedCount += len(plannedFrags)
		if split {
			report.SplitCount += len(frags) - 1
		}
		report.Assignments = append(report.Assignments, plannedFrags...)
	}

	e.appendRunEvent(ctx, opts.ActorID, report)
	e.Log.Info("plan run completed",
		zap.Int("planned", report.PlannedCount),
		zap.Int("split", report.SplitCount),
		zap.Int("skipped", report.SkippedCount))
	return report, nil
}

// materialize turns fragments into the order rows that will replace the
// source row: planned rows for resolved fragments, pending rows (keeping
// the original demand metadata) for unresolved ones.
func (e Engine) materialize(source domain.Order, frags []fragment) ([]domain.Order, []domain.Fragment) {
	now := e.now().UTC().Format(time.RFC3339)
	rows := make([]domain.Order, 0, len(frags))
	var plannedFrags []domain.Fragment
	for _, f := range frags {
		row := domain.Order{
			ID:                 uuid.New().String(),
			ArticleCode:        source.ArticleCode,
			ArticleDescription: source.ArticleDescription,
			ClientName:         source.ClientName,
			OrderReference:     source.OrderReference,
			QuantityKg:         f.piece.QuantityKg,
			OrderedKg:          source.OrderedKg,
			ServedKg:           source.ServedKg,
			PendingKg:          f.piece.QuantityKg,
			OrderDate:          source.OrderDate,
			Deadline:           source.Deadline,
			Status:             domain.StatusPending,
			ExternalID:         source.ExternalID,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if f.piece.Label != "" {
			label := f.piece.Label
			row.BatchLabel = &label
		}
		if f.resolved {
			row.Status = domain.StatusPlanned
			day, reactorID, shift := f.slot.Day, f.slot.ReactorID, f.slot.Shift
			row.PlanDate = &day
			row.ReactorID = &reactorID
			row.Shift = &shift
			row.Overflow = f.overflow
			plannedFrags = append(plannedFrags, domain.Fragment{
				OrderID:     row.ID,
				SourceID:    source.ID,
				ArticleCode: row.ArticleCode,
				ClientName:  row.ClientName,
				QuantityKg:  row.QuantityKg,
				BatchLabel:  f.piece.Label,
				Deadline:    row.Deadline,
				PlanDate:    day,
				ReactorID:   reactorID,
				Shift:       shift,
				Overflow:    f.overflow,
			})
		}
		rows = append(rows, row)
	}
	return rows, plannedFrags
}

// commitOrder atomically replaces the source order with its fragment
// rows. The delete must match exactly one existing row; anything else
// aborts this order's transaction only.
func (e Engine) commitOrder(ctx context.Context, source domain.Order, rows []domain.Order, split bool, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteOrderTx(ctx, tx, source.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrConcurrentModification, source.ID)
		}
		return fmt.Errorf("delete source order: %w", err)
	}
	for _, row := range rows {
		if err := e.Repo.InsertOrderTx(ctx, tx, row); err != nil {
			return fmt.Errorf("insert fragment %s: %w", row.ID, err)
		}
	}
	if split {
		if err := e.Events.Append(ctx, tx, "order.split", "order", source.ID, actorID, events.EventPayload{
			"parts": len(rows),
		}); err != nil {
			return err
		}
	}
	for _, row := range rows {
		if row.Status != domain.StatusPlanned {
			continue
		}
		if err := e.Events.Append(ctx, tx, "order.planned", "order", row.ID, actorID, events.EventPayload{
			"source_id": source.ID,
			"plan_date": *row.PlanDate,
			"reactor":   *row.ReactorID,
			"shift":     *row.Shift,
			"overflow":  row.Overflow,
		}); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// appendSkipEvent records a skip in its own transaction; the order's own
// transaction is already rolled back by the time a skip is known.
func (e Engine) appendSkipEvent(ctx context.Context, actorID, orderID, reason string) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		e.Log.Warn("skip event not recorded", zap.Error(err))
		return
	}
	defer tx.Rollback()
	err = e.Events.Append(ctx, tx, "order.skipped", "order", orderID, actorID, events.EventPayload{
		"reason": reason,
	})
	if err == nil {
		err = tx.Commit()
	}
	if err != nil {
		e.Log.Warn("skip event not recorded", zap.Error(err))
	}
}

func (e Engine) appendRunEvent(ctx context.Context, actorID string, report RunReport) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		e.Log.Warn("run event not recorded", zap.Error(err))
		return
	}
	defer tx.Rollback()
	err = e.Events.Append(ctx, tx, "plan.run.completed", "plan", "", actorID, events.EventPayload{
		"planned": report.PlannedCount,
		"split":   report.SplitCount,
		"skipped": report.SkippedCount,
	})
	if err == nil {
		err = tx.Commit()
	}
	if err != nil {
		e.Log.Warn("run event not recorded", zap.Error(err))
	}
}
