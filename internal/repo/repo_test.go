package repo_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"batchline/internal/db"
	"batchline/internal/domain"
	"batchline/internal/migrate"
	"batchline/internal/repo"
)

func newTestRepo(t *testing.T) (repo.Repo, *sql.DB) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}, conn
}

func ptr(s string) *string { return &s }

func testOrder(id string) domain.Order {
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC).Format(time.RFC3339)
	return domain.Order{
		ID:          id,
		ArticleCode: "ART-1",
		ClientName:  "acme",
		QuantityKg:  decimal.RequireFromString("1234.5"),
		OrderedKg:   decimal.RequireFromString("1234.5"),
		ServedKg:    decimal.Zero,
		PendingKg:   decimal.RequireFromString("1234.5"),
		Deadline:    ptr("2025-03-01"),
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestOrderRoundTrip(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	want := testOrder("o1")
	want.OrderDate = ptr("2024-12-20")
	want.ExternalID = ptr("ERP-42")
	if err := r.InsertOrder(ctx, want); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.GetOrder(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.QuantityKg.Equal(want.QuantityKg) {
		t.Fatalf("quantity %s != %s", got.QuantityKg, want.QuantityKg)
	}
	if got.Deadline == nil || *got.Deadline != "2025-03-01" {
		t.Fatalf("deadline: %v", got.Deadline)
	}
	if got.ExternalID == nil || *got.ExternalID != "ERP-42" {
		t.Fatalf("external id: %v", got.ExternalID)
	}
	if got.PlanDate != nil || got.BatchLabel != nil || got.Overflow {
		t.Fatalf("pending order must carry no assignment: %+v", got)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	r, _ := newTestRepo(t)
	if _, err := r.GetOrder(context.Background(), "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteOrderTxRequiresExactlyOneRow(t *testing.T) {
	r, conn := newTestRepo(t)
	ctx := context.Background()
	if err := r.InsertOrder(ctx, testOrder("o1")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := r.DeleteOrderTx(ctx, tx, "o1"); err != nil {
		t.Fatalf("delete existing: %v", err)
	}
	if err := r.DeleteOrderTx(ctx, tx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing row, got %v", err)
	}
}

func TestEligibleOrdersPriorityAndScope(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	late := testOrder("zz-late")
	late.Deadline = ptr("2025-04-01")
	early := testOrder("aa-early")
	early.Deadline = ptr("2025-02-01")
	noDeadline := testOrder("no-deadline")
	noDeadline.Deadline = nil
	done := testOrder("done")
	done.Status = domain.StatusProduced
	for _, o := range []domain.Order{late, early, noDeadline, done} {
		if err := r.InsertOrder(ctx, o); err != nil {
			t.Fatalf("insert %s: %v", o.ID, err)
		}
	}

	got, err := r.EligibleOrders(ctx, nil)
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(got) != 2 || got[0].ID != "aa-early" || got[1].ID != "zz-late" {
		t.Fatalf("unexpected eligible set: %+v", got)
	}

	scoped, err := r.EligibleOrders(ctx, []string{"zz-late"})
	if err != nil {
		t.Fatalf("eligible scoped: %v", err)
	}
	if len(scoped) != 1 || scoped[0].ID != "zz-late" {
		t.Fatalf("unexpected scoped set: %+v", scoped)
	}
}

func TestSlotTaken(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	o := testOrder("planned-1")
	o.Status = domain.StatusPlanned
	o.PlanDate = ptr("2025-02-03")
	o.ReactorID = ptr("r1")
	o.Shift = ptr("morning")
	if err := r.InsertOrder(ctx, o); err != nil {
		t.Fatalf("insert: %v", err)
	}

	taken, err := r.SlotTaken(ctx, "2025-02-03", "r1", "morning", nil)
	if err != nil || !taken {
		t.Fatalf("slot should be taken: %v %v", taken, err)
	}
	taken, err = r.SlotTaken(ctx, "2025-02-03", "r1", "afternoon", nil)
	if err != nil || taken {
		t.Fatalf("other shift should be free: %v %v", taken, err)
	}
	// The holder itself can be excluded, e.g. while re-validating its own
	// edited assignment.
	taken, err = r.SlotTaken(ctx, "2025-02-03", "r1", "morning", []string{"planned-1"})
	if err != nil || taken {
		t.Fatalf("excluded holder must not count: %v %v", taken, err)
	}
}

func TestSlotUniqueIndexBlocksDoubleInsert(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	mk := func(id string) domain.Order {
		o := testOrder(id)
		o.Status = domain.StatusPlanned
		o.PlanDate = ptr("2025-02-03")
		o.ReactorID = ptr("r1")
		o.Shift = ptr("morning")
		return o
	}
	if err := r.InsertOrder(ctx, mk("a")); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := r.InsertOrder(ctx, mk("b")); err == nil {
		t.Fatalf("second planned row on the same slot must be rejected")
	}
}

func TestListOrdersFilters(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	a := testOrder("a")
	b := testOrder("b")
	b.ClientName = "globex"
	c := testOrder("c")
	c.Status = domain.StatusPlanned
	c.PlanDate = ptr("2025-02-03")
	c.ReactorID = ptr("r1")
	c.Shift = ptr("morning")
	for _, o := range []domain.Order{a, b, c} {
		if err := r.InsertOrder(ctx, o); err != nil {
			t.Fatalf("insert %s: %v", o.ID, err)
		}
	}

	pending, err := r.ListOrders(ctx, repo.OrderFilters{Status: domain.StatusPending})
	if err != nil || len(pending) != 2 {
		t.Fatalf("pending filter: %v (%d)", err, len(pending))
	}
	byClient, err := r.ListOrders(ctx, repo.OrderFilters{Client: "globex"})
	if err != nil || len(byClient) != 1 || byClient[0].ID != "b" {
		t.Fatalf("client filter: %v %+v", err, byClient)
	}
	limited, err := r.ListOrders(ctx, repo.OrderFilters{Limit: 1})
	if err != nil || len(limited) != 1 {
		t.Fatalf("limit: %v (%d)", err, len(limited))
	}

	counts, err := r.CountOrdersByStatus(ctx)
	if err != nil || counts[domain.StatusPending] != 2 || counts[domain.StatusPlanned] != 1 {
		t.Fatalf("counts: %v %v", err, counts)
	}
}

func TestReactorsAndHolidays(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Format(time.RFC3339)

	for _, re := range []domain.Reactor{
		{ID: "big", Name: "Big", CapacityKg: decimal.NewFromInt(5000), Active: true, CreatedAt: now},
		{ID: "small", Name: "Small", CapacityKg: decimal.NewFromInt(800), Active: true, CreatedAt: now},
		{ID: "idle", Name: "Idle", CapacityKg: decimal.NewFromInt(2000), Active: false, CreatedAt: now},
	} {
		if err := r.InsertReactor(ctx, re); err != nil {
			t.Fatalf("insert reactor %s: %v", re.ID, err)
		}
	}
	active, err := r.ListReactors(ctx, true)
	if err != nil {
		t.Fatalf("list reactors: %v", err)
	}
	// Capacity ascending so best-fit selection can take the first match.
	if len(active) != 2 || active[0].ID != "small" || active[1].ID != "big" {
		t.Fatalf("unexpected active reactors: %+v", active)
	}
	if err := r.SetReactorActive(ctx, "idle", true); err != nil {
		t.Fatalf("activate: %v", err)
	}
	all, err := r.ListReactors(ctx, true)
	if err != nil || len(all) != 3 {
		t.Fatalf("after activate: %v (%d)", err, len(all))
	}

	if err := r.UpsertHoliday(ctx, domain.Holiday{Day: "2025-12-25", Description: "christmas"}); err != nil {
		t.Fatalf("upsert holiday: %v", err)
	}
	// Upsert replaces the description in place.
	if err := r.UpsertHoliday(ctx, domain.Holiday{Day: "2025-12-25", Description: "xmas"}); err != nil {
		t.Fatalf("upsert holiday again: %v", err)
	}
	hs, err := r.ListHolidays(ctx)
	if err != nil || len(hs) != 1 || hs[0].Description != "xmas" {
		t.Fatalf("holidays: %v %+v", err, hs)
	}
	set, err := r.HolidaySet(ctx)
	if err != nil || !set["2025-12-25"] {
		t.Fatalf("holiday set: %v %v", err, set)
	}
	if err := r.DeleteHoliday(ctx, "2025-12-25"); err != nil {
		t.Fatalf("delete holiday: %v", err)
	}
	if err := r.DeleteHoliday(ctx, "2025-12-25"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
