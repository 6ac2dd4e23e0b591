package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"batchline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const orderColumns = `id,article_code,article_description,client_name,order_reference,quantity_kg,ordered_kg,served_kg,pending_kg,order_date,deadline,status,plan_date,reactor_id,shift,batch_label,overflow,external_id,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(sc rowScanner) (domain.Order, error) {
	var o domain.Order
	var desc, client, ref, orderDate, deadline, planDate, reactorID, shift, batchLabel, externalID sql.NullString
	var qty, ordered, served, pending string
	var overflow int
	err := sc.Scan(&o.ID, &o.ArticleCode, &desc, &client, &ref, &qty, &ordered, &served, &pending,
		&orderDate, &deadline, &o.Status, &planDate, &reactorID, &shift, &batchLabel, &overflow,
		&externalID, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	if o.QuantityKg, err = decimal.NewFromString(qty); err != nil {
		return o, fmt.Errorf("order %s quantity_kg: %w", o.ID, err)
	}
	if o.OrderedKg, err = decimal.NewFromString(ordered); err != nil {
		return o, fmt.Errorf("order %s ordered_kg: %w", o.ID, err)
	}
	if o.ServedKg, err = decimal.NewFromString(served); err != nil {
		return o, fmt.Errorf("order %s served_kg: %w", o.ID, err)
	}
	if o.PendingKg, err = decimal.NewFromString(pending); err != nil {
		return o, fmt.Errorf("order %s pending_kg: %w", o.ID, err)
	}
	if desc.Valid {
		o.ArticleDescription = desc.String
	}
	if client.Valid {
		o.ClientName = client.String
	}
	if ref.Valid {
		o.OrderReference = ref.String
	}
	o.OrderDate = nullStringPtr(orderDate)
	o.Deadline = nullStringPtr(deadline)
	o.PlanDate = nullStringPtr(planDate)
	o.ReactorID = nullStringPtr(reactorID)
	o.Shift = nullStringPtr(shift)
	o.BatchLabel = nullStringPtr(batchLabel)
	o.Overflow = overflow != 0
	o.ExternalID = nullStringPtr(externalID)
	return o, nil
}

func (r Repo) InsertOrder(ctx context.Context, o domain.Order) error {
	return insertOrder(ctx, r.DB.ExecContext, o)
}

func (r Repo) InsertOrderTx(ctx context.Context, tx *sql.Tx, o domain.Order) error {
	return insertOrder(ctx, tx.ExecContext, o)
}

type execFunc func(ctx context.Context, query string, args ...any) (sql.Result, error)

func insertOrder(ctx context.Context, exec execFunc, o domain.Order) error {
	_, err := exec(ctx, `INSERT INTO orders(`+orderColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.ArticleCode, nullable(o.ArticleDescription), nullable(o.ClientName), nullable(o.OrderReference),
		o.QuantityKg.String(), o.OrderedKg.String(), o.ServedKg.String(), o.PendingKg.String(),
		nullableStringPtr(o.OrderDate), nullableStringPtr(o.Deadline), o.Status,
		nullableStringPtr(o.PlanDate), nullableStringPtr(o.ReactorID), nullableStringPtr(o.Shift),
		nullableStringPtr(o.BatchLabel), boolInt(o.Overflow), nullableStringPtr(o.ExternalID),
		o.CreatedAt, o.UpdatedAt)
	return err
}

func (r Repo) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return scanOrder(r.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=?`, id))
}

// DeleteOrderTx removes one order row. ErrNotFound means the row was
// concurrently modified or deleted; the caller must abort its transaction.
func (r Repo) DeleteOrderTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteOrder(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM orders WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type OrderFilters struct {
	Status  string
	IDs     []string
	Client  string
	Article string
	Limit   int
}

func (r Repo) ListOrders(ctx context.Context, f OrderFilters) ([]domain.Order, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if len(f.IDs) > 0 {
		clauses = append(clauses, "id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if f.Client != "" {
		clauses = append(clauses, "client_name=?")
		args = append(args, f.Client)
	}
	if f.Article != "" {
		clauses = append(clauses, "article_code=?")
		args = append(args, f.Article)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + orderColumns + ` FROM orders ` + where + ` ORDER BY deadline IS NULL, deadline ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.queryOrders(ctx, query, args...)
}

// EligibleOrders returns pending orders with a deadline, most urgent
// first, optionally restricted to an id set. This is the priority order
// the scheduling run processes them in.
func (r Repo) EligibleOrders(ctx context.Context, ids []string) ([]domain.Order, error) {
	clauses := []string{"status=?", "deadline IS NOT NULL"}
	args := []any{domain.StatusPending}
	if len(ids) > 0 {
		clauses = append(clauses, "id IN ("+placeholders(len(ids))+")")
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY deadline ASC, id ASC`
	return r.queryOrders(ctx, query, args...)
}

// PlannedOrders returns all orders carrying an assignment, used to seed
// the run's occupancy index and for confirm-time collision checks.
func (r Repo) PlannedOrders(ctx context.Context) ([]domain.Order, error) {
	return r.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE status=? ORDER BY plan_date ASC, reactor_id ASC, shift ASC`, domain.StatusPlanned)
}

func (r Repo) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// ClearAssignmentsTx blanks the slots of the edited set inside the
// caller's transaction. Required before rewriting slots: the unique slot
// index is checked per statement, so a swap between two edited rows
// would otherwise fail on the intermediate state.
func (r Repo) ClearAssignmentsTx(ctx context.Context, tx *sql.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{domain.StatusPlanned}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := tx.ExecContext(ctx, `UPDATE orders SET plan_date=NULL, reactor_id=NULL, shift=NULL WHERE status=? AND id IN (`+placeholders(len(ids))+`)`, args...)
	return err
}

// UpdateAssignmentTx rewrites one planned order's slot during confirm.
func (r Repo) UpdateAssignmentTx(ctx context.Context, tx *sql.Tx, id, planDate, reactorID, shift, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE orders SET plan_date=?, reactor_id=?, shift=?, updated_at=? WHERE id=? AND status=?`,
		planDate, reactorID, shift, updatedAt, id, domain.StatusPlanned)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SlotTaken reports whether any planned order outside the excluded id set
// already occupies the slot.
func (r Repo) SlotTaken(ctx context.Context, day, reactorID, shift string, excludeIDs []string) (bool, error) {
	clauses := []string{"status=?", "plan_date=?", "reactor_id=?", "shift=?"}
	args := []any{domain.StatusPlanned, day, reactorID, shift}
	if len(excludeIDs) > 0 {
		clauses = append(clauses, "id NOT IN ("+placeholders(len(excludeIDs))+")")
		for _, id := range excludeIDs {
			args = append(args, id)
		}
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT 1 FROM orders WHERE `+strings.Join(clauses, " AND ")+` LIMIT 1`, args...)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}

func (r Repo) CountOrdersByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
